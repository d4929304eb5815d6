package history

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/metadata"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/index"
)

// EarliestFunc возвращает границу хранения для только что добавленного id:
// записи строго меньше границы удаляются. nil — не чистить.
type EarliestFunc func(lastID []string) []string

// ShardedLogOptions — параметры шардированного журнала.
type ShardedLogOptions struct {
	IndexMetaname string
	// ShardFunc — имя функции шардирования из реестра metadata
	ShardFunc string
	// Earliest включает автоочистку после каждого добавления
	Earliest      EarliestFunc
	Archive       bool
	LogicalDelete bool
	Recorder      *metadata.MetaRecorder
	Logger        *slog.Logger
}

// ShardedLog — журнал истории, разбитый на шарды по первому ключу.
// Так как id возрастают, шарды появляются в индексе в порядке возрастания,
// и индекс одновременно задаёт хронологию шардов.
type ShardedLog struct {
	storage       storage.Storage
	base          string
	keys          model.KeySet
	index         *index.Index
	indexName     string
	shardFunc     metadata.ShardFunc
	shardFuncName string
	earliest      EarliestFunc
	recorder      *metadata.MetaRecorder
	logger        *slog.Logger
}

var _ metadata.Store = (*ShardedLog)(nil)

// NewShardedLog создаёт шардированный журнал с корнем base.
func NewShardedLog(s storage.Storage, base string, keys model.KeySet, opts ShardedLogOptions) (*ShardedLog, error) {
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	if err := checkUnsupported(opts.Archive, opts.LogicalDelete); err != nil {
		return nil, err
	}
	fn, err := metadata.ResolveShardFunc(opts.ShardFunc)
	if err != nil {
		return nil, err
	}
	indexName := opts.IndexMetaname
	if indexName == "" {
		indexName = metadata.DefaultIndexMetaname
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ShardedLog{
		storage:       s,
		base:          base,
		keys:          keys,
		index:         index.New(s, metadata.DocumentPath(base, indexName)),
		indexName:     indexName,
		shardFunc:     fn,
		shardFuncName: opts.ShardFunc,
		earliest:      opts.Earliest,
		recorder:      opts.Recorder,
		logger:        logger.With(slog.String("component", "sharded_history_log")),
	}, nil
}

func (l *ShardedLog) KeySet() model.KeySet { return l.keys }
func (l *ShardedLog) Archive() bool        { return false }
func (l *ShardedLog) LogicalDelete() bool  { return false }

// Index возвращает индекс шардов.
func (l *ShardedLog) Index() *index.Index { return l.index }

// ShardFuncName возвращает имя функции шардирования.
func (l *ShardedLog) ShardFuncName() string { return l.shardFuncName }

// Shard возвращает журнал шарда name.
func (l *ShardedLog) Shard(name string) *Log {
	return l.shardAt(metadata.DocumentPath(l.base, name))
}

func (l *ShardedLog) shardAt(path string) *Log {
	log, _ := NewLog(l.storage, path, l.keys, LogOptions{Logger: l.logger})
	return log
}

func (l *ShardedLog) route(keys []string) (string, *Log, error) {
	if len(keys) == 0 || keys[0] == "" {
		return "", nil, fmt.Errorf("%w: не задан первый ключ ресурса", model.ErrInvalidResource)
	}
	name := l.shardFunc(keys[0])
	if err := metadata.CheckShardName(name, l.indexName); err != nil {
		return "", nil, fmt.Errorf("ключ %s: %w", keys[0], err)
	}
	return name, l.Shard(name), nil
}

func (l *ShardedLog) shards() ([]*Log, error) {
	entries, err := l.index.Entries()
	if err != nil {
		return nil, err
	}
	logs := make([]*Log, len(entries))
	for i, e := range entries {
		logs[i] = l.shardAt(e.Path)
	}
	return logs, nil
}

// LastResourceID возвращает id последней записи последнего шарда.
func (l *ShardedLog) LastResourceID() ([]string, error) {
	entries, err := l.index.Entries()
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return l.shardAt(entries[len(entries)-1].Path).LastResourceID()
}

// CheckAppend проверяет, можно ли добавить запись с id, ничего не изменяя.
func (l *ShardedLog) CheckAppend(id []string) error {
	if err := l.keys.CheckKeys(id); err != nil {
		return err
	}
	_, shard, err := l.route(id)
	if err != nil {
		return err
	}
	return l.checkAppend(id, shard)
}

func (l *ShardedLog) checkAppend(id []string, shard *Log) error {
	last, err := l.LastResourceID()
	if err != nil {
		return err
	}
	return checkAppend(id, last, func() (bool, error) {
		i, err := shard.FindIndex(id, Equal)
		return i >= 0, err
	})
}

// Append добавляет запись, сохраняя строгое возрастание id по всем шардам,
// и запускает автоочистку, если задан Earliest.
func (l *ShardedLog) Append(md model.Metadata) (*model.Record, error) {
	id, err := md.Keys(l.keys)
	if err != nil {
		return nil, err
	}
	if l.recorder != nil {
		if err := l.recorder.Ensure(); err != nil {
			return nil, err
		}
	}
	name, shard, err := l.route(id)
	if err != nil {
		return nil, err
	}
	if err := l.checkAppend(id, shard); err != nil {
		return nil, err
	}

	rec, err := shard.Append(md)
	if err != nil {
		return nil, err
	}
	if _, err := l.index.Add(name, shard.Path()); err != nil {
		return nil, err
	}

	if l.earliest != nil {
		if boundary := l.earliest(id); boundary != nil {
			if _, err := l.AutoClean(boundary); err != nil {
				l.logger.Warn("Ошибка автоочистки журнала истории",
					slog.String("boundary", model.KeyString(boundary)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return rec, nil
}

// Put — Append в форме metadata.Store.
func (l *ShardedLog) Put(md model.Metadata) (*model.Record, bool, error) {
	rec, err := l.Append(md)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// AutoClean удаляет записи с id строго меньше earliestID.
// Шарды, целиком лежащие до границы, удаляются вместе с записью индекса.
// Возвращает количество удалённых записей.
func (l *ShardedLog) AutoClean(earliestID []string) (int, error) {
	entries, err := l.index.Entries()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		n, empty, err := l.shardAt(e.Path).removeBefore(earliestID)
		if err != nil {
			return removed, fmt.Errorf("ошибка очистки шарда %s: %w", e.Name, err)
		}
		removed += n
		if !empty {
			// следующие шарды целиком после границы
			break
		}
		if _, err := l.index.Remove(e.Name); err != nil {
			return removed, err
		}
	}
	if removed > 0 {
		l.logger.Info("Журнал истории очищен",
			slog.String("boundary", model.KeyString(earliestID)),
			slog.Int("removed", removed),
		)
	}
	return removed, nil
}

// FindIndex ищет позицию id по всем шардам: возвращает имя шарда и позицию
// внутри него, либо "", -1, если подходящей записи нет.
// Шарды просматриваются в хронологическом порядке индекса, для Less и
// LessOrEqual — с конца.
func (l *ShardedLog) FindIndex(id []string, policy Policy) (string, int, error) {
	entries, err := l.index.Entries()
	if err != nil {
		return "", -1, err
	}
	if policy == Less || policy == LessOrEqual {
		slices.Reverse(entries)
	}
	for _, e := range entries {
		i, err := l.shardAt(e.Path).FindIndex(id, policy)
		if err != nil {
			return "", -1, fmt.Errorf("ошибка поиска в шарде %s: %w", e.Name, err)
		}
		if i >= 0 {
			return e.Name, i, nil
		}
	}
	return "", -1, nil
}

// RangeQuery возвращает записи в диапазоне по всем шардам в порядке индекса.
func (l *ShardedLog) RangeQuery(minID, maxID []string, minIncluded, maxIncluded bool) (iter.Seq[*model.Record], error) {
	logs, err := l.shards()
	if err != nil {
		return nil, err
	}
	var all []*model.Record
	for _, log := range logs {
		seq, err := log.RangeQuery(minID, maxID, minIncluded, maxIncluded)
		if err != nil {
			return nil, err
		}
		for rec := range seq {
			all = append(all, rec)
		}
	}
	return recordSeq(all), nil
}

func recordSeq(recs []*model.Record) iter.Seq[*model.Record] {
	return func(yield func(*model.Record) bool) {
		for _, r := range recs {
			if !yield(r) {
				return
			}
		}
	}
}

// Get возвращает запись из шарда первого ключа.
func (l *ShardedLog) Get(keys []string, status model.StatusFilter) (*model.Record, error) {
	if err := l.keys.CheckKeys(keys); err != nil {
		return nil, err
	}
	_, shard, err := l.route(keys)
	if err != nil {
		return nil, err
	}
	return shard.Get(keys, status)
}

// Remove физически удаляет запись; опустевший шард удаляется из индекса.
func (l *ShardedLog) Remove(keys []string, _ bool) (*model.Record, error) {
	if err := l.keys.CheckKeys(keys); err != nil {
		return nil, err
	}
	name, shard, err := l.route(keys)
	if err != nil {
		return nil, err
	}
	rec, empty, err := shard.remove(keys)
	if err != nil {
		return nil, err
	}
	if empty {
		if _, err := l.index.Remove(name); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Iterate с префиксом обходит шард первого ключа; без префикса — все шарды.
func (l *ShardedLog) Iterate(prefix []string, status model.StatusFilter, throwOnMissing bool) (iter.Seq[*model.Record], error) {
	if len(prefix) > 0 {
		_, shard, err := l.route(prefix)
		if err != nil {
			return nil, err
		}
		return shard.Iterate(prefix, status, throwOnMissing)
	}
	logs, err := l.shards()
	if err != nil {
		return nil, err
	}
	var all []*model.Record
	for _, log := range logs {
		seq, err := log.Iterate(nil, status, false)
		if err != nil {
			return nil, err
		}
		for rec := range seq {
			all = append(all, rec)
		}
	}
	return recordSeq(all), nil
}
