package metadata

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/resource"
)

// TreeOptions — параметры дерева метаданных.
type TreeOptions struct {
	// Archive — хранить историю версий
	Archive bool
	// LogicalDelete — удаление без permanent только помечает лист
	LogicalDelete bool
	// Recorder — запись meta_metadata.json при первой мутации (может быть nil)
	Recorder *MetaRecorder
	Logger   *slog.Logger
}

// Tree — дерево метаданных в одном JSON-документе.
type Tree struct {
	res           *resource.Resource
	keys          model.KeySet
	policy        LeafPolicy
	logicalDelete bool
	recorder      *MetaRecorder
	logger        *slog.Logger
}

var _ Store = (*Tree)(nil)

// NewTree создаёт дерево для документа path.
func NewTree(s storage.Storage, path string, keys model.KeySet, opts TreeOptions) (*Tree, error) {
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tree{
		res:           resource.New(s, path),
		keys:          keys,
		policy:        PolicyFor(opts.Archive),
		logicalDelete: opts.LogicalDelete,
		recorder:      opts.Recorder,
		logger:        logger.With(slog.String("component", "metadata_tree")),
	}, nil
}

func (t *Tree) KeySet() model.KeySet { return t.keys }
func (t *Tree) Archive() bool        { return t.policy.Archive() }
func (t *Tree) LogicalDelete() bool  { return t.logicalDelete }

// Path возвращает путь документа.
func (t *Tree) Path() string { return t.res.Path() }

// Document возвращает документ целиком. Отсутствующий документ — пустое дерево.
func (t *Tree) Document() (map[string]any, error) {
	raw, err := t.res.Document()
	if err != nil {
		if errors.Is(err, model.ErrResourceNotFound) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("повреждён документ метаданных %s: ожидался объект, получен %T", t.res.Path(), raw)
	}
	return doc, nil
}

func (t *Tree) save(doc map[string]any) error {
	if len(doc) == 0 {
		if err := t.res.Delete(); err != nil {
			return fmt.Errorf("ошибка удаления документа метаданных %s: %w", t.res.Path(), err)
		}
		return nil
	}
	if err := t.res.UpdateJSON(doc); err != nil {
		return fmt.Errorf("ошибка записи документа метаданных %s: %w", t.res.Path(), err)
	}
	return nil
}

// leaf возвращает лист по полному пути или nil.
func (t *Tree) leaf(doc map[string]any, keys []string) (*model.Record, error) {
	n, err := descend(doc, keys)
	if err != nil || n == nil {
		return nil, err
	}
	return t.policy.Decode(keys, n)
}

// Get возвращает лист по ключам с учётом фильтра статуса.
func (t *Tree) Get(keys []string, status model.StatusFilter) (*model.Record, error) {
	if err := t.keys.CheckKeys(keys); err != nil {
		return nil, err
	}
	doc, err := t.Document()
	if err != nil {
		return nil, err
	}
	rec, err := t.leaf(doc, keys)
	if err != nil {
		return nil, err
	}
	if rec == nil || !status.Match(rec.Deleted) {
		return nil, notFound(keys)
	}
	return rec, nil
}

// Put публикует метаданные. Промежуточные узлы создаются при необходимости,
// признак логического удаления снимается.
func (t *Tree) Put(md model.Metadata) (*model.Record, bool, error) {
	keys, err := md.Keys(t.keys)
	if err != nil {
		return nil, false, err
	}
	if t.recorder != nil {
		if err := t.recorder.Ensure(); err != nil {
			return nil, false, err
		}
	}

	doc, err := t.Document()
	if err != nil {
		return nil, false, err
	}
	prev, err := t.leaf(doc, keys)
	if err != nil {
		return nil, false, err
	}

	current := md.Clone()
	delete(current, model.FieldDeleted)
	rec := t.policy.Replace(prev, keys, current)

	parent, err := ensure(doc, keys[:len(keys)-1])
	if err != nil {
		return nil, false, err
	}
	parent[keys[len(keys)-1]] = t.policy.Encode(rec)

	if err := t.save(doc); err != nil {
		return nil, false, err
	}
	return rec, prev == nil, nil
}

// Remove удаляет лист.
//
// При включённом логическом удалении и permanent=false лист помечается deleted;
// повторная пометка возвращает nil. Физическое удаление убирает лист и опустевших
// предков; опустевший документ удаляется из хранилища.
func (t *Tree) Remove(keys []string, permanent bool) (*model.Record, error) {
	rec, _, err := t.remove(keys, permanent)
	return rec, err
}

// remove дополнительно сообщает, стал ли документ пустым.
func (t *Tree) remove(keys []string, permanent bool) (*model.Record, bool, error) {
	if err := t.keys.CheckKeys(keys); err != nil {
		return nil, false, err
	}
	doc, err := t.Document()
	if err != nil {
		return nil, false, err
	}
	rec, err := t.leaf(doc, keys)
	if err != nil || rec == nil {
		return nil, false, err
	}

	if t.logicalDelete && !permanent {
		if rec.Deleted {
			return nil, false, nil
		}
		rec.Deleted = true
		parent, _ := descend(doc, keys[:len(keys)-1])
		parent[keys[len(keys)-1]] = t.policy.Encode(rec)
		return rec, false, t.save(doc)
	}

	prune(doc, keys)
	if err := t.save(doc); err != nil {
		return nil, false, err
	}
	return rec, len(doc) == 0, nil
}

// Iterate обходит листья с префиксом ключей prefix в порядке сортировки ключей.
// Документ читается один раз при вызове; последовательность можно прервать.
func (t *Tree) Iterate(prefix []string, status model.StatusFilter, throwOnMissing bool) (iter.Seq[*model.Record], error) {
	if len(prefix) > len(t.keys) {
		return nil, fmt.Errorf("%w: префикс %v длиннее набора ключей %v", model.ErrInvalidResource, prefix, []string(t.keys))
	}
	doc, err := t.Document()
	if err != nil {
		return nil, err
	}
	start, err := descend(doc, prefix)
	if err != nil {
		return nil, err
	}
	if start == nil || (len(prefix) == 0 && len(doc) == 0) {
		if throwOnMissing && len(prefix) > 0 {
			return nil, notFound(prefix)
		}
		return emptySeq, nil
	}

	return func(yield func(*model.Record) bool) {
		_, err := walkLeaves(start, len(t.keys)-len(prefix), append([]string(nil), prefix...), func(keys []string, leaf map[string]any) bool {
			rec, err := t.policy.Decode(keys, leaf)
			if err != nil {
				t.logger.Warn("Пропущен повреждённый лист метаданных",
					slog.String("keys", model.KeyString(keys)),
					slog.String("error", err.Error()),
				)
				return true
			}
			if !status.Match(rec.Deleted) {
				return true
			}
			return yield(rec)
		})
		if err != nil {
			t.logger.Warn("Обход дерева метаданных прерван",
				slog.String("path", t.res.Path()),
				slog.String("error", err.Error()),
			)
		}
	}, nil
}

// IsEmpty сообщает, что документ отсутствует или пуст.
func (t *Tree) IsEmpty() (bool, error) {
	doc, err := t.Document()
	if err != nil {
		return false, err
	}
	return len(doc) == 0, nil
}
