package history

import (
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/data-storage/internal/metadata"
)

// Reshard перераспределяет записи по шардам функции fnName и возвращает
// журнал с новой функцией. Записи обходятся по возрастанию id, поэтому
// шарды попадают в индекс в хронологическом порядке.
func (l *ShardedLog) Reshard(fnName string) (*ShardedLog, error) {
	fn, err := metadata.ResolveShardFunc(fnName)
	if err != nil {
		return nil, err
	}
	old, err := l.index.Entries()
	if err != nil {
		return nil, err
	}

	var plan metadata.ReshardPlan[[]entry]
	for _, e := range old {
		entries, err := l.shardAt(e.Path).load()
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения шарда %s: %w", e.Name, err)
		}
		for _, en := range entries {
			name := fn(en.id[0])
			if err := metadata.CheckShardName(name, l.indexName); err != nil {
				return nil, fmt.Errorf("ключ %s: %w", en.id[0], err)
			}
			plan.Add(name, func(d []entry, _ bool) []entry { return append(d, en) })
		}
	}

	err = metadata.Commit(l.index, old, plan,
		func(name string) string { return metadata.DocumentPath(l.base, name) },
		func(p string, entries []entry) error { return l.shardAt(p).save(entries) },
		func(p string) error { return l.storage.Delete(p) },
	)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Журнал истории перераспределён по шардам",
		slog.String("from", l.shardFuncName),
		slog.String("to", fnName),
		slog.Int("shards", len(plan.Names)),
	)

	next := *l
	next.shardFunc = fn
	next.shardFuncName = fnName
	return &next, nil
}
