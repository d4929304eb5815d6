package metadata

import (
	"fmt"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// LeafPolicy — формат листа дерева метаданных.
//
// Плоский лист — сами метаданные (с полем deleted при логическом удалении).
// Архивный лист — {"current": {...}, "histories": [...], "deleted": true?}.
type LeafPolicy interface {
	// Archive сообщает, хранит ли политика историю версий.
	Archive() bool
	// Decode строит Record из листа документа.
	Decode(keys []string, leaf map[string]any) (*model.Record, error)
	// Encode строит лист документа из Record.
	Encode(rec *model.Record) map[string]any
	// Replace возвращает запись после публикации md поверх prev (prev может быть nil).
	Replace(prev *model.Record, keys []string, md model.Metadata) *model.Record
}

// PlainLeaf — лист без истории: каждая публикация заменяет метаданные.
type PlainLeaf struct{}

func (PlainLeaf) Archive() bool { return false }

func (PlainLeaf) Decode(keys []string, leaf map[string]any) (*model.Record, error) {
	md := model.Metadata(leaf).Clone()
	deleted, _ := md[model.FieldDeleted].(bool)
	delete(md, model.FieldDeleted)
	return &model.Record{Keys: keys, Current: md, Deleted: deleted}, nil
}

func (PlainLeaf) Encode(rec *model.Record) map[string]any {
	leaf := map[string]any(rec.Current.Clone())
	if rec.Deleted {
		leaf[model.FieldDeleted] = true
	}
	return leaf
}

func (PlainLeaf) Replace(_ *model.Record, keys []string, md model.Metadata) *model.Record {
	return &model.Record{Keys: keys, Current: md}
}

// ArchiveLeaf — лист с историей: предыдущая текущая версия уходит в начало histories.
type ArchiveLeaf struct{}

func (ArchiveLeaf) Archive() bool { return true }

func (ArchiveLeaf) Decode(keys []string, leaf map[string]any) (*model.Record, error) {
	cur, ok := leaf[model.FieldCurrent].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("повреждён архивный лист %s: нет поля current", model.KeyString(keys))
	}
	rec := &model.Record{Keys: keys, Current: model.Metadata(cur).Clone()}
	rec.Deleted, _ = leaf[model.FieldDeleted].(bool)

	if raw, ok := leaf[model.FieldHistories].([]any); ok {
		rec.Histories = make([]model.Metadata, 0, len(raw))
		for _, h := range raw {
			hm, ok := h.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("повреждён архивный лист %s: элемент histories имеет тип %T", model.KeyString(keys), h)
			}
			rec.Histories = append(rec.Histories, model.Metadata(hm).Clone())
		}
	}
	return rec, nil
}

func (ArchiveLeaf) Encode(rec *model.Record) map[string]any {
	histories := make([]any, len(rec.Histories))
	for i, h := range rec.Histories {
		histories[i] = map[string]any(h.Clone())
	}
	leaf := map[string]any{
		model.FieldCurrent:   map[string]any(rec.Current.Clone()),
		model.FieldHistories: histories,
	}
	if rec.Deleted {
		leaf[model.FieldDeleted] = true
	}
	return leaf
}

func (ArchiveLeaf) Replace(prev *model.Record, keys []string, md model.Metadata) *model.Record {
	rec := &model.Record{Keys: keys, Current: md}
	if prev != nil {
		rec.Histories = make([]model.Metadata, 0, 1+len(prev.Histories))
		rec.Histories = append(rec.Histories, prev.Current)
		rec.Histories = append(rec.Histories, prev.Histories...)
	}
	return rec
}

// PolicyFor возвращает политику листа по признаку архивирования.
func PolicyFor(archive bool) LeafPolicy {
	if archive {
		return ArchiveLeaf{}
	}
	return PlainLeaf{}
}
