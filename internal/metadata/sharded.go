package metadata

import (
	"fmt"
	"iter"
	"log/slog"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/index"
)

// ShardedOptions — параметры шардированного дерева.
type ShardedOptions struct {
	// IndexMetaname — имя документа индекса (по умолчанию _metadata_index)
	IndexMetaname string
	// ShardFunc — имя функции шардирования из реестра
	ShardFunc     string
	Archive       bool
	LogicalDelete bool
	Recorder      *MetaRecorder
	Logger        *slog.Logger
}

// ShardedTree — дерево метаданных, разбитое на шарды по первому ключу.
// Шард с именем name хранится в {base}/{name}.json и присутствует
// в индексе, пока его документ не пуст.
type ShardedTree struct {
	storage       storage.Storage
	base          string
	keys          model.KeySet
	index         *index.Index
	indexName     string
	shardFunc     ShardFunc
	shardFuncName string
	archive       bool
	logicalDelete bool
	recorder      *MetaRecorder
	logger        *slog.Logger
}

var _ Store = (*ShardedTree)(nil)

// NewShardedTree создаёт шардированное дерево с корнем base.
func NewShardedTree(s storage.Storage, base string, keys model.KeySet, opts ShardedOptions) (*ShardedTree, error) {
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	fn, err := ResolveShardFunc(opts.ShardFunc)
	if err != nil {
		return nil, err
	}
	indexName := opts.IndexMetaname
	if indexName == "" {
		indexName = DefaultIndexMetaname
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ShardedTree{
		storage:       s,
		base:          base,
		keys:          keys,
		index:         index.New(s, DocumentPath(base, indexName)),
		indexName:     indexName,
		shardFunc:     fn,
		shardFuncName: opts.ShardFunc,
		archive:       opts.Archive,
		logicalDelete: opts.LogicalDelete,
		recorder:      opts.Recorder,
		logger:        logger,
	}, nil
}

func (t *ShardedTree) KeySet() model.KeySet { return t.keys }
func (t *ShardedTree) Archive() bool        { return t.archive }
func (t *ShardedTree) LogicalDelete() bool  { return t.logicalDelete }

// Index возвращает индекс шардов.
func (t *ShardedTree) Index() *index.Index { return t.index }

// ShardFuncName возвращает имя функции шардирования.
func (t *ShardedTree) ShardFuncName() string { return t.shardFuncName }

// ShardName возвращает имя шарда для первого ключа.
func (t *ShardedTree) ShardName(firstKey string) string {
	return t.shardFunc(firstKey)
}

// Shard возвращает дерево шарда name.
func (t *ShardedTree) Shard(name string) *Tree {
	return t.shardAt(DocumentPath(t.base, name))
}

func (t *ShardedTree) shardAt(path string) *Tree {
	// ключи уже проверены в конструкторе
	tree, _ := NewTree(t.storage, path, t.keys, TreeOptions{
		Archive:       t.archive,
		LogicalDelete: t.logicalDelete,
		Logger:        t.logger,
	})
	return tree
}

func (t *ShardedTree) route(keys []string) (string, *Tree, error) {
	if len(keys) == 0 || keys[0] == "" {
		return "", nil, fmt.Errorf("%w: не задан первый ключ ресурса", model.ErrInvalidResource)
	}
	name := t.shardFunc(keys[0])
	if err := CheckShardName(name, t.indexName); err != nil {
		return "", nil, fmt.Errorf("ключ %s: %w", keys[0], err)
	}
	return name, t.Shard(name), nil
}

// Get возвращает лист из шарда первого ключа.
func (t *ShardedTree) Get(keys []string, status model.StatusFilter) (*model.Record, error) {
	if err := t.keys.CheckKeys(keys); err != nil {
		return nil, err
	}
	_, shard, err := t.route(keys)
	if err != nil {
		return nil, err
	}
	return shard.Get(keys, status)
}

// Put публикует метаданные в шард и добавляет шард в индекс при создании листа.
func (t *ShardedTree) Put(md model.Metadata) (*model.Record, bool, error) {
	keys, err := md.Keys(t.keys)
	if err != nil {
		return nil, false, err
	}
	if t.recorder != nil {
		if err := t.recorder.Ensure(); err != nil {
			return nil, false, err
		}
	}
	name, shard, err := t.route(keys)
	if err != nil {
		return nil, false, err
	}
	rec, created, err := shard.Put(md)
	if err != nil {
		return nil, false, err
	}
	if created {
		if _, err := t.index.Add(name, shard.Path()); err != nil {
			return nil, false, err
		}
	}
	return rec, created, nil
}

// Remove удаляет лист; опустевший шард удаляется из индекса.
func (t *ShardedTree) Remove(keys []string, permanent bool) (*model.Record, error) {
	if err := t.keys.CheckKeys(keys); err != nil {
		return nil, err
	}
	name, shard, err := t.route(keys)
	if err != nil {
		return nil, err
	}
	rec, empty, err := shard.remove(keys, permanent)
	if err != nil {
		return nil, err
	}
	if empty {
		if _, err := t.index.Remove(name); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Iterate с префиксом обходит один шард; без префикса — все шарды в порядке индекса.
// Документы шардов читаются при вызове.
func (t *ShardedTree) Iterate(prefix []string, status model.StatusFilter, throwOnMissing bool) (iter.Seq[*model.Record], error) {
	if len(prefix) > 0 {
		_, shard, err := t.route(prefix)
		if err != nil {
			return nil, err
		}
		return shard.Iterate(prefix, status, throwOnMissing)
	}

	entries, err := t.index.Entries()
	if err != nil {
		return nil, err
	}
	seqs := make([]iter.Seq[*model.Record], 0, len(entries))
	for _, e := range entries {
		seq, err := t.shardAt(e.Path).Iterate(nil, status, false)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения шарда %s: %w", e.Name, err)
		}
		seqs = append(seqs, seq)
	}
	return concat(seqs), nil
}

func concat(seqs []iter.Seq[*model.Record]) iter.Seq[*model.Record] {
	return func(yield func(*model.Record) bool) {
		for _, seq := range seqs {
			for rec := range seq {
				if !yield(rec) {
					return
				}
			}
		}
	}
}
