// Пакет filestore — Storage поверх локальной файловой системы.
// Объекты — обычные файлы под корневой директорией; запись атомарна
// (temp → fsync → rename), create-if-absent реализован через hard link.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
)

// tmpMarker — часть имени временного файла; такие файлы не попадают в List.
const tmpMarker = ".tmp-"

// FileStore — хранилище объектов на диске.
type FileStore struct {
	// root — корневая директория хранилища (DS_STORAGE_ROOT)
	root string
}

var _ storage.Storage = (*FileStore)(nil)

// New создаёт FileStore. Создаёт корневую директорию, если её нет.
func New(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать корневую директорию %s: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения абсолютного пути %s: %w", root, err)
	}
	return &FileStore{root: abs}, nil
}

// Root возвращает корневую директорию.
func (s *FileStore) Root() string {
	return s.root
}

// fullPath переводит путь объекта в путь на диске.
func (s *FileStore) fullPath(p string) (string, error) {
	cleaned, err := storage.Clean(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// GetBytes читает объект целиком.
func (s *FileStore) GetBytes(p string) ([]byte, error) {
	full, err := s.fullPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrResourceNotFound, p)
		}
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", p, err)
	}
	return data, nil
}

// PutBytes записывает объект.
//
// Паттерн: temp файл → запись → fsync → rename (overwrite) или link (create-if-absent).
// При ошибке temp файл удаляется.
func (s *FileStore) PutBytes(p string, data []byte, overwrite bool) error {
	full, err := s.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию для %s: %w", p, err)
	}

	tmpPath := full + tmpMarker + uuid.New().String()[:8]
	if err := writeSynced(tmpPath, data); err != nil {
		return err
	}

	if overwrite {
		if err := os.Rename(tmpPath, full); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("ошибка атомарного переименования: %w", err)
		}
		return nil
	}

	// link не заменяет существующий файл — атомарная проверка существования
	err = os.Link(tmpPath, full)
	os.Remove(tmpPath)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", model.ErrResourceAlreadyExist, p)
		}
		return fmt.Errorf("ошибка создания файла %s: %w", p, err)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	return nil
}

// Delete удаляет объект и опустевшие родительские директории до корня.
// Возвращает nil, если объект уже не существует.
func (s *FileStore) Delete(p string) error {
	full, err := s.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", p, err)
	}
	s.pruneEmptyDirs(filepath.Dir(full))
	return nil
}

// pruneEmptyDirs удаляет пустые директории вверх по дереву, не трогая корень.
func (s *FileStore) pruneEmptyDirs(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root+string(filepath.Separator)) {
		// os.Remove не удаляет непустую директорию
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Download копирует объект в локальный файл.
func (s *FileStore) Download(p, localFile string) error {
	full, err := s.fullPath(p)
	if err != nil {
		return err
	}
	src, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", model.ErrResourceNotFound, p)
		}
		return fmt.Errorf("ошибка открытия файла %s: %w", p, err)
	}
	defer src.Close()

	return CopyToFile(src, localFile)
}

// CopyToFile атомарно записывает поток в локальный файл, создавая директории.
func CopyToFile(r io.Reader, localFile string) error {
	if err := os.MkdirAll(filepath.Dir(localFile), 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", filepath.Dir(localFile), err)
	}
	tmpPath := localFile + tmpMarker + uuid.New().String()[:8]
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, localFile); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// List возвращает отсортированные пути объектов, начинающиеся с prefix.
// Временные файлы незавершённых записей пропускаются.
func (s *FileStore) List(prefix string) ([]string, error) {
	prefix = strings.TrimPrefix(prefix, "/")

	// Обходим только поддерево, в котором могут лежать совпадения
	start := s.root
	if dir := prefixDir(prefix); dir != "" {
		full, err := s.fullPath(dir)
		if err != nil {
			return nil, err
		}
		start = full
	}

	var paths []string
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.Contains(d.Name(), tmpMarker) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода директории %s: %w", start, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// prefixDir возвращает директорию, содержащую все пути с данным префиксом.
func prefixDir(prefix string) string {
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		return prefix[:i]
	}
	return ""
}

// Check проверяет, что корневая директория доступна.
func (s *FileStore) Check() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("корневая директория недоступна: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s не является директорией", s.root)
	}
	return nil
}
