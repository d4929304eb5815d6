package repository

import (
	"fmt"
	"iter"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/history"
	"github.com/bigkaa/goartstore/data-storage/internal/metadata"
)

// Reshard перераспределяет метаданные шардированного репозитория по функции fnName,
// перезаписывает meta_metadata.json и возвращает репозиторий с новой функцией.
// Исходный repo после вызова использовать нельзя.
func Reshard(repo *Repository, fnName string) (*Repository, error) {
	if !repo.kind.Indexed() {
		return nil, fmt.Errorf("%w: репозиторий %s не шардирован", model.ErrOperationNotSupport, repo.name)
	}
	if fnName == repo.opts.ShardFunc {
		return repo, nil
	}

	var err error
	switch st := repo.store.(type) {
	case *metadata.ShardedTree:
		_, err = st.Reshard(fnName)
	case *history.ShardedLog:
		_, err = st.Reshard(fnName)
	default:
		err = fmt.Errorf("%w: хранилище метаданных %T не шардировано", model.ErrOperationNotSupport, repo.store)
	}
	observe("reshard", err)
	if err != nil {
		return nil, err
	}

	opts := repo.opts
	opts.ShardFunc = fnName
	return New(repo.storage, repo.name, repo.kind, opts)
}

// historyStore — общая часть журналов истории.
type historyStore interface {
	LastResourceID() ([]string, error)
	RangeQuery(minID, maxID []string, minIncluded, maxIncluded bool) (iter.Seq[*model.Record], error)
}

func (r *Repository) history() (historyStore, error) {
	hs, ok := r.store.(historyStore)
	if !ok {
		return nil, fmt.Errorf("%w: %s не является журналом истории", model.ErrOperationNotSupport, r.kind)
	}
	return hs, nil
}

// LastResourceID возвращает id последней записи журнала истории или nil для пустого.
func (r *Repository) LastResourceID() ([]string, error) {
	hs, err := r.history()
	if err != nil {
		return nil, err
	}
	return hs.LastResourceID()
}

// ResourcesInRange возвращает записи журнала истории с id в диапазоне; nil-граница открыта.
func (r *Repository) ResourcesInRange(minID, maxID []string, minIncluded, maxIncluded bool) (iter.Seq[*model.Record], error) {
	hs, err := r.history()
	if err != nil {
		return nil, err
	}
	return hs.RangeQuery(minID, maxID, minIncluded, maxIncluded)
}
