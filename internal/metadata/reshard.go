package metadata

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/bigkaa/goartstore/data-storage/internal/storage/index"
)

// ReshardPlan — новое размещение шардов: документы и порядок индекса.
// Общий для дерева и журнала истории.
type ReshardPlan[D any] struct {
	Names []string
	Docs  map[string]D
}

// Add кладёт значение в шард name, запоминая порядок первого появления.
func (p *ReshardPlan[D]) Add(name string, merge func(doc D, ok bool) D) {
	if p.Docs == nil {
		p.Docs = make(map[string]D)
	}
	doc, ok := p.Docs[name]
	if !ok {
		p.Names = append(p.Names, name)
	}
	p.Docs[name] = merge(doc, ok)
}

// Commit записывает документы новых шардов, удаляет документы шардов,
// которых больше нет, и перезаписывает индекс.
// Сначала пишутся новые документы: сбой посередине оставляет старый индекс рабочим.
func Commit[D any](idx *index.Index, old []index.Entry, plan ReshardPlan[D], pathOf func(name string) string, write func(path string, doc D) error, remove func(path string) error) error {
	entries := make([]index.Entry, 0, len(plan.Names))
	for _, name := range plan.Names {
		p := pathOf(name)
		if err := write(p, plan.Docs[name]); err != nil {
			return fmt.Errorf("ошибка записи шарда %s: %w", name, err)
		}
		entries = append(entries, index.Entry{Name: name, Path: p})
	}
	if err := idx.Replace(entries); err != nil {
		return err
	}
	for _, e := range old {
		if slices.ContainsFunc(entries, func(n index.Entry) bool { return n.Path == e.Path }) {
			continue
		}
		if err := remove(e.Path); err != nil {
			return fmt.Errorf("ошибка удаления шарда %s: %w", e.Name, err)
		}
	}
	return nil
}

// Reshard перераспределяет метаданные по шардам функции fnName
// и возвращает дерево с новой функцией. meta_metadata.json обновляет вызывающая сторона.
func (t *ShardedTree) Reshard(fnName string) (*ShardedTree, error) {
	fn, err := ResolveShardFunc(fnName)
	if err != nil {
		return nil, err
	}
	old, err := t.index.Entries()
	if err != nil {
		return nil, err
	}

	var plan ReshardPlan[map[string]any]
	for _, e := range old {
		doc, err := t.shardAt(e.Path).Document()
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения шарда %s: %w", e.Name, err)
		}
		firstKeys := make([]string, 0, len(doc))
		for k := range doc {
			firstKeys = append(firstKeys, k)
		}
		slices.Sort(firstKeys)
		for _, k := range firstKeys {
			name := fn(k)
			if err := CheckShardName(name, t.indexName); err != nil {
				return nil, fmt.Errorf("ключ %s: %w", k, err)
			}
			plan.Add(name, func(d map[string]any, ok bool) map[string]any {
				if !ok {
					d = make(map[string]any)
				}
				d[k] = doc[k]
				return d
			})
		}
	}
	slices.Sort(plan.Names)

	err = Commit(t.index, old, plan,
		func(name string) string { return DocumentPath(t.base, name) },
		func(p string, doc map[string]any) error { return t.shardAt(p).save(doc) },
		func(p string) error { return t.storage.Delete(p) },
	)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Метаданные перераспределены по шардам",
		slog.String("from", t.shardFuncName),
		slog.String("to", fnName),
		slog.Int("shards", len(plan.Names)),
	)

	next := *t
	next.shardFunc = fn
	next.shardFuncName = fnName
	return &next, nil
}
