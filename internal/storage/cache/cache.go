// Пакет cache — LRU-кэш документов поверх произвольного Storage.
// Обёртка над hashicorp/golang-lru/v2/expirable.
//
// Кэшируются только пути, прошедшие фильтр (по умолчанию — JSON-документы
// метаданных). Запись и удаление через кэш обновляют или инвалидируют запись.
// Изменения, сделанные другими процессами, становятся видны не позже TTL.
// Одновременные промахи по одному пути читают хранилище один раз (singleflight).
// Прочитанный документ попадает в кэш, только если за время чтения через
// кэш не было записи или удаления: иначе он мог бы затереть более новую версию.
package cache

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/data-storage/internal/storage"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш документов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша документов.",
	})
)

// JSONDocuments — фильтр по умолчанию: кэшируются только *.json.
func JSONDocuments(p string) bool {
	return strings.HasSuffix(p, ".json")
}

// Store — Storage с LRU-кэшем чтения.
type Store struct {
	inner     storage.Storage
	lru       *expirable.LRU[string, []byte]
	cacheable func(string) bool
	loads     singleflight.Group

	// mu делает атомарными смену generation и изменение lru при записи
	mu sync.Mutex
	// generation увеличивается при каждой записи и удалении через кэш
	generation atomic.Uint64
}

// loaded — результат чтения из хранилища и generation на момент его начала.
type loaded struct {
	data []byte
	gen  uint64
}

var _ storage.Storage = (*Store)(nil)

// New создаёт кэширующий Storage.
// maxSize — максимальное количество документов, ttl — время жизни записи.
// cacheable == nil означает JSONDocuments.
func New(inner storage.Storage, maxSize int, ttl time.Duration, cacheable func(string) bool) *Store {
	if cacheable == nil {
		cacheable = JSONDocuments
	}
	return &Store{
		inner:     inner,
		lru:       expirable.NewLRU[string, []byte](maxSize, nil, ttl),
		cacheable: cacheable,
	}
}

// GetBytes возвращает документ из кэша или читает его из нижележащего хранилища.
func (s *Store) GetBytes(p string) ([]byte, error) {
	if !s.cacheable(p) {
		return s.inner.GetBytes(p)
	}
	if data, ok := s.lru.Get(p); ok {
		cacheHitsTotal.Inc()
		return bytes.Clone(data), nil
	}
	cacheMissesTotal.Inc()

	start := s.generation.Load()
	v, err, _ := s.loads.Do(p, func() (any, error) {
		gen := s.generation.Load()
		if data, ok := s.lru.Get(p); ok {
			return loaded{data: data, gen: gen}, nil
		}
		data, err := s.inner.GetBytes(p)
		if err != nil {
			return loaded{gen: gen}, err
		}
		s.mu.Lock()
		if s.generation.Load() == gen {
			s.lru.Add(p, data)
		}
		s.mu.Unlock()
		return loaded{data: data, gen: gen}, nil
	})
	l := v.(loaded)
	if l.gen < start {
		// присоединились к чтению, начатому до записи, завершившейся раньше нашего вызова
		return s.inner.GetBytes(p)
	}
	if err != nil {
		return nil, err
	}
	// результат общий для всех ожидавших вызовов
	return bytes.Clone(l.data), nil
}

// PutBytes записывает объект и обновляет кэш.
func (s *Store) PutBytes(p string, data []byte, overwrite bool) error {
	err := s.inner.PutBytes(p, data, overwrite)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation.Add(1)
	if err != nil {
		// при конфликте create-if-absent кэш мог устареть
		s.lru.Remove(p)
		return err
	}
	if s.cacheable(p) {
		s.lru.Add(p, bytes.Clone(data))
	}
	return nil
}

// Delete удаляет объект и инвалидирует кэш.
func (s *Store) Delete(p string) error {
	err := s.inner.Delete(p)

	s.mu.Lock()
	s.generation.Add(1)
	s.lru.Remove(p)
	s.mu.Unlock()
	return err
}

// Download не кэшируется.
func (s *Store) Download(p, localFile string) error {
	return s.inner.Download(p, localFile)
}

// List не кэшируется.
func (s *Store) List(prefix string) ([]string, error) {
	return s.inner.List(prefix)
}

// Check делегирует проверку нижележащему хранилищу.
func (s *Store) Check() error {
	if hc, ok := s.inner.(storage.HealthChecker); ok {
		return hc.Check()
	}
	return nil
}

// Purge очищает кэш.
func (s *Store) Purge() {
	s.lru.Purge()
}

// Len возвращает количество документов в кэше.
func (s *Store) Len() int {
	return s.lru.Len()
}
