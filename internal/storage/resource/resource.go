// Пакет resource — один объект хранилища, привязанный к одному пути.
// Добавляет к байтовым операциям Storage чтение и запись JSON-документов
// с помеченными датами (model.MarshalDocument).
package resource

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
)

// Resource — объект по пути Path в хранилище.
type Resource struct {
	storage storage.Storage
	path    string
}

// New создаёт Resource.
func New(s storage.Storage, path string) *Resource {
	return &Resource{storage: s, path: path}
}

// Path возвращает путь объекта.
func (r *Resource) Path() string {
	return r.path
}

// Storage возвращает хранилище объекта.
func (r *Resource) Storage() storage.Storage {
	return r.storage
}

// Bytes читает содержимое. Отсутствие объекта — model.ErrResourceNotFound.
func (r *Resource) Bytes() ([]byte, error) {
	return r.storage.GetBytes(r.path)
}

// Text читает содержимое как строку.
func (r *Resource) Text() (string, error) {
	data, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Document читает JSON-документ как дерево значений с восстановленными датами.
// Пустой объект — пустой документ (nil).
func (r *Resource) Document() (any, error) {
	data, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	doc, err := model.UnmarshalDocument(data)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения документа %s: %w", r.path, err)
	}
	return doc, nil
}

// Decode читает JSON-документ в v. Пустой объект оставляет v без изменений.
func (r *Resource) Decode(v any) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ошибка десериализации документа %s: %w", r.path, err)
	}
	return nil
}

// Update перезаписывает содержимое.
func (r *Resource) Update(data []byte) error {
	return r.storage.PutBytes(r.path, data, true)
}

// Create записывает содержимое, только если объекта ещё нет.
func (r *Resource) Create(data []byte) error {
	return r.storage.PutBytes(r.path, data, false)
}

// UpdateJSON сериализует v (отсортированные ключи, отступ 4) и перезаписывает объект.
func (r *Resource) UpdateJSON(v any) error {
	data, err := model.MarshalDocument(v)
	if err != nil {
		return err
	}
	return r.Update(data)
}

// Delete удаляет объект. Отсутствие объекта не ошибка.
func (r *Resource) Delete() error {
	return r.storage.Delete(r.path)
}

// Download сохраняет объект в локальный файл.
func (r *Resource) Download(localFile string) error {
	return r.storage.Download(r.path, localFile)
}

// Exists проверяет существование объекта.
func (r *Resource) Exists() (bool, error) {
	_, err := r.storage.GetBytes(r.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, model.ErrResourceNotFound) {
		return false, nil
	}
	return false, err
}
