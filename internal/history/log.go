package history

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/metadata"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/resource"
)

// LogOptions — параметры журнала истории.
type LogOptions struct {
	// Archive и LogicalDelete журналом не поддерживаются; true даёт ErrOperationNotSupport.
	Archive       bool
	LogicalDelete bool
	Recorder      *metadata.MetaRecorder
	Logger        *slog.Logger
}

// Log — журнал истории в одном документе [[id, metadata], ...],
// отсортированном по возрастанию id. Для одного ключа id — строка,
// для нескольких — список строк; сравнение покортежное.
type Log struct {
	res      *resource.Resource
	keys     model.KeySet
	recorder *metadata.MetaRecorder
	logger   *slog.Logger
}

var _ metadata.Store = (*Log)(nil)

type entry struct {
	id []string
	md model.Metadata
}

func checkUnsupported(archive, logicalDelete bool) error {
	if archive {
		return fmt.Errorf("%w: журнал истории не поддерживает архивирование", model.ErrOperationNotSupport)
	}
	if logicalDelete {
		return fmt.Errorf("%w: журнал истории не поддерживает логическое удаление", model.ErrOperationNotSupport)
	}
	return nil
}

// NewLog создаёт журнал для документа path.
func NewLog(s storage.Storage, path string, keys model.KeySet, opts LogOptions) (*Log, error) {
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	if err := checkUnsupported(opts.Archive, opts.LogicalDelete); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		res:      resource.New(s, path),
		keys:     keys,
		recorder: opts.Recorder,
		logger:   logger.With(slog.String("component", "history_log")),
	}, nil
}

func (l *Log) KeySet() model.KeySet { return l.keys }
func (l *Log) Archive() bool        { return false }
func (l *Log) LogicalDelete() bool  { return false }

// Path возвращает путь документа.
func (l *Log) Path() string { return l.res.Path() }

func (l *Log) load() ([]entry, error) {
	raw, err := l.res.Document()
	if err != nil {
		if errors.Is(err, model.ErrResourceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("повреждён журнал истории %s: ожидался список, получен %T", l.res.Path(), raw)
	}

	entries := make([]entry, 0, len(list))
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("повреждён журнал истории %s: некорректная запись %v", l.res.Path(), item)
		}
		id, err := decodeID(pair[0])
		if err != nil {
			return nil, fmt.Errorf("повреждён журнал истории %s: %w", l.res.Path(), err)
		}
		md, ok := pair[1].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("повреждён журнал истории %s: метаданные %v не объект", l.res.Path(), id)
		}
		entries = append(entries, entry{id: id, md: md})
	}
	return entries, nil
}

func decodeID(v any) ([]string, error) {
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []any:
		id := make([]string, len(x))
		for i, part := range x {
			s, ok := part.(string)
			if !ok {
				return nil, fmt.Errorf("элемент идентификатора %v не строка", part)
			}
			id[i] = s
		}
		return id, nil
	default:
		return nil, fmt.Errorf("некорректный идентификатор %v", v)
	}
}

func (l *Log) encodeID(id []string) any {
	if len(l.keys) == 1 {
		return id[0]
	}
	out := make([]any, len(id))
	for i, s := range id {
		out[i] = s
	}
	return out
}

func (l *Log) save(entries []entry) error {
	if len(entries) == 0 {
		if err := l.res.Delete(); err != nil {
			return fmt.Errorf("ошибка удаления журнала истории %s: %w", l.res.Path(), err)
		}
		return nil
	}
	list := make([]any, len(entries))
	for i, e := range entries {
		list[i] = []any{l.encodeID(e.id), map[string]any(e.md)}
	}
	if err := l.res.UpdateJSON(list); err != nil {
		return fmt.Errorf("ошибка записи журнала истории %s: %w", l.res.Path(), err)
	}
	return nil
}

func findIn(entries []entry, id []string, policy Policy) int {
	return FindIndex(len(entries), func(i int) int { return model.CompareKeys(entries[i].id, id) }, policy)
}

func toRecord(e entry) *model.Record {
	return &model.Record{Keys: slices.Clone(e.id), Current: e.md.Clone()}
}

// checkAppend проверяет, что id строго больше last.
// Меньший id, уже присутствующий в журнале, — ErrResourceAlreadyExist,
// отсутствующий — ErrInvalidResource.
func checkAppend(id, last []string, exists func() (bool, error)) error {
	if last == nil {
		return nil
	}
	c := model.CompareKeys(id, last)
	if c > 0 {
		return nil
	}
	if c == 0 {
		return fmt.Errorf("%w: %s", model.ErrResourceAlreadyExist, model.KeyString(id))
	}
	found, err := exists()
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: %s", model.ErrResourceAlreadyExist, model.KeyString(id))
	}
	return fmt.Errorf("%w: идентификатор %s меньше последнего %s", model.ErrInvalidResource, model.KeyString(id), model.KeyString(last))
}

// CheckAppend проверяет, можно ли добавить запись с id, ничего не изменяя.
func (l *Log) CheckAppend(id []string) error {
	if err := l.keys.CheckKeys(id); err != nil {
		return err
	}
	entries, err := l.load()
	if err != nil {
		return err
	}
	var last []string
	if len(entries) > 0 {
		last = entries[len(entries)-1].id
	}
	return checkAppend(id, last, func() (bool, error) { return findIn(entries, id, Equal) >= 0, nil })
}

// Append добавляет запись в конец журнала.
func (l *Log) Append(md model.Metadata) (*model.Record, error) {
	id, err := md.Keys(l.keys)
	if err != nil {
		return nil, err
	}
	if l.recorder != nil {
		if err := l.recorder.Ensure(); err != nil {
			return nil, err
		}
	}

	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	var last []string
	if len(entries) > 0 {
		last = entries[len(entries)-1].id
	}
	if err := checkAppend(id, last, func() (bool, error) { return findIn(entries, id, Equal) >= 0, nil }); err != nil {
		return nil, err
	}

	e := entry{id: id, md: md.Clone()}
	delete(e.md, model.FieldDeleted)
	if err := l.save(append(entries, e)); err != nil {
		return nil, err
	}
	return toRecord(e), nil
}

// Put — Append в форме metadata.Store; запись всегда создаётся.
func (l *Log) Put(md model.Metadata) (*model.Record, bool, error) {
	rec, err := l.Append(md)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// FindIndex ищет позицию id в журнале.
func (l *Log) FindIndex(id []string, policy Policy) (int, error) {
	entries, err := l.load()
	if err != nil {
		return -1, err
	}
	return findIn(entries, id, policy), nil
}

// At возвращает запись по позиции.
func (l *Log) At(i int) (*model.Record, error) {
	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(entries) {
		return nil, fmt.Errorf("%w: позиция %d вне журнала", model.ErrResourceNotFound, i)
	}
	return toRecord(entries[i]), nil
}

// rangeBounds возвращает полуинтервал позиций [start, end) для границ диапазона.
func rangeBounds(entries []entry, minID, maxID []string, minIncluded, maxIncluded bool) (int, int) {
	start, end := 0, len(entries)
	if minID != nil {
		policy := Greater
		if minIncluded {
			policy = GreaterOrEqual
		}
		if start = findIn(entries, minID, policy); start < 0 {
			return 0, 0
		}
	}
	if maxID != nil {
		policy := Less
		if maxIncluded {
			policy = LessOrEqual
		}
		i := findIn(entries, maxID, policy)
		if i < 0 {
			return 0, 0
		}
		end = i + 1
	}
	if start > end {
		return 0, 0
	}
	return start, end
}

// RangeQuery возвращает записи с id в диапазоне; nil-граница открыта.
func (l *Log) RangeQuery(minID, maxID []string, minIncluded, maxIncluded bool) (iter.Seq[*model.Record], error) {
	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	start, end := rangeBounds(entries, minID, maxID, minIncluded, maxIncluded)
	return entriesSeq(entries[start:end]), nil
}

func entriesSeq(entries []entry) iter.Seq[*model.Record] {
	return func(yield func(*model.Record) bool) {
		for _, e := range entries {
			if !yield(toRecord(e)) {
				return
			}
		}
	}
}

// LastResourceID возвращает id последней записи или nil для пустого журнала.
func (l *Log) LastResourceID() ([]string, error) {
	entries, err := l.load()
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return slices.Clone(entries[len(entries)-1].id), nil
}

// FirstResourceID возвращает id первой записи или nil для пустого журнала.
func (l *Log) FirstResourceID() ([]string, error) {
	entries, err := l.load()
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return slices.Clone(entries[0].id), nil
}

// Len возвращает количество записей.
func (l *Log) Len() (int, error) {
	entries, err := l.load()
	return len(entries), err
}

// Get возвращает запись по id. Записи журнала не бывают логически удалены.
func (l *Log) Get(keys []string, status model.StatusFilter) (*model.Record, error) {
	if err := l.keys.CheckKeys(keys); err != nil {
		return nil, err
	}
	if !status.Match(false) {
		return nil, fmt.Errorf("%w: %s", model.ErrResourceNotFound, model.KeyString(keys))
	}
	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	i := findIn(entries, keys, Equal)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrResourceNotFound, model.KeyString(keys))
	}
	return toRecord(entries[i]), nil
}

// Remove физически удаляет запись. Опустевший журнал удаляется из хранилища.
func (l *Log) Remove(keys []string, _ bool) (*model.Record, error) {
	rec, _, err := l.remove(keys)
	return rec, err
}

func (l *Log) remove(keys []string) (*model.Record, bool, error) {
	if err := l.keys.CheckKeys(keys); err != nil {
		return nil, false, err
	}
	entries, err := l.load()
	if err != nil {
		return nil, false, err
	}
	i := findIn(entries, keys, Equal)
	if i < 0 {
		return nil, false, nil
	}
	rec := toRecord(entries[i])
	entries = slices.Delete(entries, i, i+1)
	if err := l.save(entries); err != nil {
		return nil, false, err
	}
	return rec, len(entries) == 0, nil
}

// removeBefore удаляет записи с id строго меньше boundary.
// Возвращает число удалённых записей и признак опустевшего журнала.
func (l *Log) removeBefore(boundary []string) (int, bool, error) {
	entries, err := l.load()
	if err != nil {
		return 0, false, err
	}
	n := FindIndex(len(entries), func(i int) int { return model.CompareKeys(entries[i].id, boundary) }, GreaterOrEqual)
	if n < 0 {
		n = len(entries)
	}
	if n == 0 {
		return 0, len(entries) == 0, nil
	}
	rest := entries[n:]
	if err := l.save(rest); err != nil {
		return 0, false, err
	}
	return n, len(rest) == 0, nil
}

// Iterate обходит записи, id которых начинается с prefix, по возрастанию id.
func (l *Log) Iterate(prefix []string, status model.StatusFilter, throwOnMissing bool) (iter.Seq[*model.Record], error) {
	if len(prefix) > len(l.keys) {
		return nil, fmt.Errorf("%w: префикс %v длиннее набора ключей %v", model.ErrInvalidResource, prefix, []string(l.keys))
	}
	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	if !status.Match(false) {
		return entriesSeq(nil), nil
	}

	matched := entries
	if len(prefix) > 0 {
		// записи с префиксом образуют непрерывный отрезок
		start := FindIndex(len(entries), func(i int) int { return model.CompareKeys(entries[i].id, prefix) }, GreaterOrEqual)
		end := start
		for start >= 0 && end < len(entries) && hasPrefix(entries[end].id, prefix) {
			end++
		}
		if start < 0 || end == start {
			if throwOnMissing {
				return nil, fmt.Errorf("%w: %s", model.ErrResourceNotFound, model.KeyString(prefix))
			}
			return entriesSeq(nil), nil
		}
		matched = entries[start:end]
	}
	return entriesSeq(matched), nil
}

func hasPrefix(id, prefix []string) bool {
	return len(id) >= len(prefix) && slices.Equal(id[:len(prefix)], prefix)
}
