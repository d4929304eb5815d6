package metadata

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/resource"
)

// MetaMetadataName — имя документа с описанием типа репозитория.
const MetaMetadataName = "meta_metadata.json"

// MetaDocument — содержимое meta_metadata.json: тег варианта репозитория
// и параметры, по которым его можно восстановить.
type MetaDocument struct {
	Class  string
	Kwargs map[string]any
}

func (d MetaDocument) toMap() map[string]any {
	kwargs := d.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return map[string]any{"class": d.Class, "kwargs": kwargs}
}

// MetaRecorder записывает meta_metadata.json при первой мутации
// метаданных. Документ перезаписывается, только если его содержимое изменилось.
type MetaRecorder struct {
	res *resource.Resource
	doc MetaDocument

	mu   sync.Mutex
	done bool
}

// NewMetaRecorder создаёт MetaRecorder для документа path.
func NewMetaRecorder(s storage.Storage, path string, doc MetaDocument) *MetaRecorder {
	return &MetaRecorder{res: resource.New(s, path), doc: doc}
}

// Document возвращает записываемое описание.
func (m *MetaRecorder) Document() MetaDocument {
	return m.doc
}

// Ensure записывает документ, если в хранилище другое содержимое.
// После первого успешного вызова ничего не делает.
func (m *MetaRecorder) Ensure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}

	want := m.doc.toMap()
	existing, err := m.res.Document()
	if err != nil && !errors.Is(err, model.ErrResourceNotFound) {
		return fmt.Errorf("ошибка чтения %s: %w", m.res.Path(), err)
	}
	if cur, ok := existing.(map[string]any); !ok || !model.Metadata(cur).Equal(want) {
		if err := m.res.UpdateJSON(want); err != nil {
			return fmt.Errorf("ошибка записи %s: %w", m.res.Path(), err)
		}
	}
	m.done = true
	return nil
}

// ReadMetaDocument читает meta_metadata.json.
// Отсутствие документа — ошибка, соответствующая model.ErrResourceNotFound.
func ReadMetaDocument(s storage.Storage, path string) (*MetaDocument, error) {
	raw, err := resource.New(s, path).Document()
	if err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("некорректный документ %s: ожидался объект", path)
	}
	class, _ := m["class"].(string)
	if class == "" {
		return nil, fmt.Errorf("некорректный документ %s: нет поля class", path)
	}
	kwargs, _ := m["kwargs"].(map[string]any)
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return &MetaDocument{Class: class, Kwargs: kwargs}, nil
}
