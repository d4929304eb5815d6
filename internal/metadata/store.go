// Пакет metadata — хранилища метаданных ресурсов поверх Storage.
//
// Tree — одно JSON-дерево глубины len(keys); ShardedTree — набор деревьев
// за индексом шардов. Оба реализуют Store; журналы истории (пакет history)
// реализуют тот же интерфейс.
//
// Каждая мутация — полное чтение, изменение и запись одного документа.
// Сравнения-с-обменом нет: одновременные писатели из разных процессов
// теряют изменения друг друга (побеждает последний). Последовательности,
// требующие межпроцессной согласованности, оборачиваются в lock.Locker.
package metadata

import (
	"fmt"
	"iter"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
)

// DefaultMetaname — имя документа метаданных по умолчанию.
const DefaultMetaname = "metadata"

// DefaultIndexMetaname — имя документа индекса шардов по умолчанию.
const DefaultIndexMetaname = "_metadata_index"

// Store — хранилище метаданных ресурсов.
type Store interface {
	// KeySet возвращает набор ключевых полей.
	KeySet() model.KeySet
	// Archive сообщает, хранится ли история версий.
	Archive() bool
	// LogicalDelete сообщает, включено ли логическое удаление.
	LogicalDelete() bool
	// Get возвращает лист по полному набору ключей.
	// Отсутствие или несоответствие фильтру — model.ErrResourceNotFound.
	Get(keys []string, status model.StatusFilter) (*model.Record, error)
	// Put публикует метаданные. created — лист создан впервые.
	Put(md model.Metadata) (rec *model.Record, created bool, err error)
	// Remove удаляет лист. Возвращает nil, если удалять нечего.
	Remove(keys []string, permanent bool) (*model.Record, error)
	// Iterate обходит листья с данным префиксом ключей.
	// Отсутствующий префикс — model.ErrResourceNotFound при throwOnMissing,
	// иначе пустая последовательность.
	Iterate(prefix []string, status model.StatusFilter, throwOnMissing bool) (iter.Seq[*model.Record], error)
}

// Lookup возвращает версию ресурса: "" и "current" — текущая версия,
// иначе — версия с данным resource_file.
func Lookup(s Store, keys []string, version string, status model.StatusFilter) (model.Metadata, error) {
	rec, err := s.Get(keys, status)
	if err != nil {
		return nil, err
	}
	md, ok := rec.Version(version)
	if !ok {
		return nil, fmt.Errorf("%w: версия %s ресурса %s", model.ErrResourceNotFound, version, model.KeyString(keys))
	}
	return md, nil
}

// DocumentPath возвращает путь документа метаданных {base}/{metaname}.json.
func DocumentPath(base, metaname string) string {
	return storage.Join(base, metaname+".json")
}

func notFound(keys []string) error {
	return fmt.Errorf("%w: %s", model.ErrResourceNotFound, model.KeyString(keys))
}

func emptySeq(yield func(*model.Record) bool) {}

func sliceSeq(recs []*model.Record) iter.Seq[*model.Record] {
	return func(yield func(*model.Record) bool) {
		for _, r := range recs {
			if !yield(r) {
				return
			}
		}
	}
}
