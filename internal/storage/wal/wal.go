package wal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/data-storage/internal/clock"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
)

// DirName — каталог журнала внутри корня репозитория.
const DirName = ".journal"

// ReferenceSource — источник путей payload, на которые ссылаются метаданные.
type ReferenceSource interface {
	References() (map[string]struct{}, error)
}

// WAL — журнал публикаций.
// Порядок публикации: Begin → запись payload → метаданные → Commit.
// Ошибка между Begin и Commit приводит к Rollback; незавершённые
// записи после рестарта обрабатывает Recover.
type WAL struct {
	storage storage.Storage
	// dir — путь каталога журнала в хранилище
	dir   string
	clock clock.Clock
	// mu — мьютекс для потокобезопасности
	mu     sync.Mutex
	refs   ReferenceSource
	logger *slog.Logger
}

// New создаёт журнал в каталоге {base}/.journal.
func New(s storage.Storage, base string, c clock.Clock, logger *slog.Logger) *WAL {
	if logger == nil {
		logger = slog.Default()
	}
	return &WAL{
		storage: s,
		dir:     storage.Join(base, DirName),
		clock:   clock.OrReal(c),
		logger:  logger.With(slog.String("component", "wal")),
	}
}

// Dir возвращает путь каталога журнала.
func (w *WAL) Dir() string {
	return w.dir
}

// SetReferences задаёт источник ссылок для отката.
// Без источника откат оставляет payload на месте.
func (w *WAL) SetReferences(refs ReferenceSource) {
	w.mu.Lock()
	w.refs = refs
	w.mu.Unlock()
}

// Begin создаёт запись журнала для публикации payload по resourcePath.
func (w *WAL) Begin(resourcePath string) (string, error) {
	entry := &Entry{
		TransactionID: uuid.New().String(),
		Operation:     OpPush,
		ResourcePath:  resourcePath,
		StartedAt:     model.DateTime{Time: model.Normalize(w.clock.Now())},
	}
	if err := w.writeEntry(entry); err != nil {
		return "", fmt.Errorf("не удалось создать запись журнала: %w", err)
	}

	w.logger.Debug("Транзакция журнала начата",
		slog.String("tx_id", entry.TransactionID),
		slog.String("resource_path", entry.ResourcePath),
	)
	return entry.TransactionID, nil
}

// Commit завершает транзакцию: запись журнала удаляется.
func (w *WAL) Commit(txID string) error {
	if err := w.storage.Delete(w.entryPath(txID)); err != nil {
		return fmt.Errorf("не удалось удалить запись журнала %s: %w", txID, err)
	}
	w.logger.Debug("Транзакция журнала завершена", slog.String("tx_id", txID))
	return nil
}

// Rollback отменяет транзакцию: payload удаляется, если на него
// не ссылаются метаданные, затем удаляется запись журнала.
func (w *WAL) Rollback(txID string) error {
	entry, err := w.readEntry(txID)
	if err != nil {
		return fmt.Errorf("не удалось прочитать запись журнала %s: %w", txID, err)
	}
	w.mu.Lock()
	refs := w.refs
	w.mu.Unlock()

	var referenced map[string]struct{}
	if refs != nil {
		if referenced, err = refs.References(); err != nil {
			return fmt.Errorf("ошибка чтения ссылок метаданных: %w", err)
		}
	}
	return w.rollback(entry, referenced, refs != nil)
}

func (w *WAL) rollback(entry *Entry, referenced map[string]struct{}, known bool) error {
	_, inUse := referenced[entry.ResourcePath]
	if known && !inUse {
		if err := w.storage.Delete(entry.ResourcePath); err != nil {
			return fmt.Errorf("не удалось удалить payload %s: %w", entry.ResourcePath, err)
		}
		w.logger.Info("Payload незавершённой публикации удалён",
			slog.String("tx_id", entry.TransactionID),
			slog.String("resource_path", entry.ResourcePath),
		)
	}
	if err := w.storage.Delete(w.entryPath(entry.TransactionID)); err != nil {
		return fmt.Errorf("не удалось удалить запись журнала %s: %w", entry.TransactionID, err)
	}
	return nil
}

// Pending возвращает незавершённые записи журнала.
func (w *WAL) Pending() ([]*Entry, error) {
	paths, err := w.storage.List(w.dir + "/")
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать каталог журнала: %w", err)
	}

	var pending []*Entry
	for _, p := range paths {
		name := path.Base(p)
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		entry, err := w.readEntry(strings.TrimSuffix(name, ".json"))
		if err != nil {
			w.logger.Warn("Не удалось прочитать запись журнала при восстановлении",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
			continue
		}
		pending = append(pending, entry)
	}
	return pending, nil
}

// Recover откатывает все незавершённые записи. Вызывается при старте,
// до обработки запросов. Возвращает число откаченных транзакций.
func (w *WAL) Recover() (int, error) {
	pending, err := w.Pending()
	if err != nil || len(pending) == 0 {
		return 0, err
	}
	w.mu.Lock()
	refs := w.refs
	w.mu.Unlock()
	if refs == nil {
		return 0, errors.New("не задан источник ссылок метаданных для восстановления журнала")
	}
	referenced, err := refs.References()
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения ссылок метаданных: %w", err)
	}

	recovered := 0
	for _, entry := range pending {
		w.logger.Warn("Обнаружена незавершённая транзакция журнала",
			slog.String("tx_id", entry.TransactionID),
			slog.String("resource_path", entry.ResourcePath),
			slog.Time("started_at", entry.StartedAt.Time),
		)
		if err := w.rollback(entry, referenced, true); err != nil {
			return recovered, err
		}
		recovered++
	}
	w.logger.Info("Восстановление журнала завершено", slog.Int("recovered", recovered))
	return recovered, nil
}

func (w *WAL) entryPath(txID string) string {
	return storage.Join(w.dir, entryName(txID))
}

// writeEntry записывает документ журнала. Атомарность записи
// обеспечивает хранилище.
func (w *WAL) writeEntry(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}
	return w.storage.PutBytes(w.entryPath(entry.TransactionID), data, false)
}

// readEntry читает документ журнала.
func (w *WAL) readEntry(txID string) (*Entry, error) {
	data, err := w.storage.GetBytes(w.entryPath(txID))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("ошибка десериализации: %w", err)
	}
	return &entry, nil
}
