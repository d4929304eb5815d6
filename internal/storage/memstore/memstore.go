// Пакет memstore — потокобезопасный Storage в памяти.
// Используется в тестах и встраивающими приложениями, которым не нужна персистентность.
package memstore

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/filestore"
)

// MemStore — объекты в памяти.
// sync.RWMutex: конкурентное чтение, эксклюзивная запись.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte // путь → содержимое
}

var _ storage.Storage = (*MemStore)(nil)

// New создаёт пустое хранилище.
func New() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

// GetBytes возвращает копию объекта.
func (m *MemStore) GetBytes(p string) ([]byte, error) {
	key, err := storage.Clean(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrResourceNotFound, p)
	}
	return bytes.Clone(data), nil
}

// PutBytes сохраняет копию данных.
func (m *MemStore) PutBytes(p string, data []byte, overwrite bool) error {
	key, err := storage.Clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[key]; exists && !overwrite {
		return fmt.Errorf("%w: %s", model.ErrResourceAlreadyExist, p)
	}
	m.objects[key] = bytes.Clone(data)
	return nil
}

// Delete удаляет объект; отсутствие объекта не ошибка.
func (m *MemStore) Delete(p string) error {
	key, err := storage.Clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Download записывает объект в локальный файл.
func (m *MemStore) Download(p, localFile string) error {
	data, err := m.GetBytes(p)
	if err != nil {
		return err
	}
	return filestore.CopyToFile(bytes.NewReader(data), localFile)
}

// List возвращает отсортированные пути с данным префиксом.
func (m *MemStore) List(prefix string) ([]string, error) {
	prefix = strings.TrimPrefix(prefix, "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	var paths []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			paths = append(paths, key)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Check всегда успешен.
func (m *MemStore) Check() error {
	return nil
}

// Len возвращает количество объектов.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
