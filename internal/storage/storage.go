// Пакет storage — байтовое хранилище, поверх которого строятся
// метаданные и payload ресурсов.
//
// Пути — slash-разделённые относительные пути в пространстве имён
// хранилища ("repo/data/r1"). Реализации: filestore (локальная ФС),
// memstore (память), cache (LRU-декоратор над любым Storage).
package storage

import (
	"fmt"
	"path"
	"strings"
)

// Storage — операции байтового хранилища.
//
// Повторы сетевых операций и таймауты — ответственность реализации.
type Storage interface {
	// GetBytes возвращает содержимое объекта.
	// Отсутствующий объект — ошибка, соответствующая model.ErrResourceNotFound.
	GetBytes(p string) ([]byte, error)
	// PutBytes записывает объект. При overwrite=false запись атомарна
	// по принципу create-if-absent: существующий объект даёт model.ErrResourceAlreadyExist.
	PutBytes(p string, data []byte, overwrite bool) error
	// Delete удаляет объект. Отсутствие объекта не является ошибкой.
	Delete(p string) error
	// Download сохраняет объект в локальный файл, создавая родительские директории.
	Download(p, localFile string) error
	// List возвращает отсортированные пути объектов с данным префиксом.
	List(prefix string) ([]string, error)
}

// HealthChecker — хранилище, умеющее проверить свою доступность.
type HealthChecker interface {
	Check() error
}

// Join собирает путь из частей, пропуская пустые и убирая ведущий "/".
func Join(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return path.Join(nonEmpty...)
}

// Clean нормализует путь и проверяет, что он не выходит за корень хранилища.
func Clean(p string) (string, error) {
	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("пустой путь объекта: %q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("путь объекта выходит за корень хранилища: %q", p)
		}
	}
	return cleaned, nil
}
