// Пакет index — индекс шардов метаданных.
//
// Документ индекса — JSON-список пар [[shard_name, shard_path], ...]
// в порядке появления шардов. Инвариант: шард присутствует в индексе
// тогда и только тогда, когда его документ метаданных не пуст.
// Индекс без записей удаляется из хранилища.
//
// Каждая операция читает документ заново: индекс не держит состояние
// между вызовами и видит изменения других процессов.
package index

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/resource"
)

// Entry — запись индекса.
type Entry struct {
	Name string
	Path string
}

// Index — индекс шардов, хранящийся в одном документе.
type Index struct {
	res *resource.Resource
}

// New создаёт индекс для документа path.
func New(s storage.Storage, path string) *Index {
	return &Index{res: resource.New(s, path)}
}

// Path возвращает путь документа индекса.
func (idx *Index) Path() string {
	return idx.res.Path()
}

// Entries возвращает записи индекса в порядке добавления.
// Отсутствующий документ — пустой индекс.
func (idx *Index) Entries() ([]Entry, error) {
	var pairs [][]string
	if err := idx.res.Decode(&pairs); err != nil {
		if errors.Is(err, model.ErrResourceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения индекса шардов %s: %w", idx.res.Path(), err)
	}

	entries := make([]Entry, 0, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("некорректная запись индекса шардов %s: %v", idx.res.Path(), p)
		}
		entries = append(entries, Entry{Name: p[0], Path: p[1]})
	}
	return entries, nil
}

// Lookup ищет запись по имени шарда.
func (idx *Index) Lookup(name string) (Entry, bool, error) {
	entries, err := idx.Entries()
	if err != nil {
		return Entry{}, false, err
	}
	i := slices.IndexFunc(entries, func(e Entry) bool { return e.Name == name })
	if i < 0 {
		return Entry{}, false, nil
	}
	return entries[i], true, nil
}

// Add добавляет шард в конец индекса, если его там нет.
// Возвращает true, если индекс изменён.
func (idx *Index) Add(name, path string) (bool, error) {
	entries, err := idx.Entries()
	if err != nil {
		return false, err
	}
	if slices.ContainsFunc(entries, func(e Entry) bool { return e.Name == name }) {
		return false, nil
	}
	return true, idx.Replace(append(entries, Entry{Name: name, Path: path}))
}

// Remove удаляет шард из индекса. Пустой индекс удаляется из хранилища.
// Возвращает true, если шард был в индексе.
func (idx *Index) Remove(name string) (bool, error) {
	entries, err := idx.Entries()
	if err != nil {
		return false, err
	}
	n := len(entries)
	entries = slices.DeleteFunc(entries, func(e Entry) bool { return e.Name == name })
	if len(entries) == n {
		return false, nil
	}
	return true, idx.Replace(entries)
}

// Replace перезаписывает индекс целиком.
func (idx *Index) Replace(entries []Entry) error {
	if len(entries) == 0 {
		if err := idx.res.Delete(); err != nil {
			return fmt.Errorf("ошибка удаления индекса шардов %s: %w", idx.res.Path(), err)
		}
		return nil
	}

	pairs := make([]any, len(entries))
	for i, e := range entries {
		pairs[i] = []any{e.Name, e.Path}
	}
	if err := idx.res.UpdateJSON(pairs); err != nil {
		return fmt.Errorf("ошибка записи индекса шардов %s: %w", idx.res.Path(), err)
	}
	return nil
}
