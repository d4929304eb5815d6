package consume

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/clock"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/metadata"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/resource"
)

const (
	// ClientsPath — каталог статусов клиентов внутри корня репозитория.
	ClientsPath = "clients"
	// ClientsMetaname — документ метаданных реестра клиентов.
	ClientsMetaname = metadata.ClientsMetaname
	// DefaultHistorySize — размер кольцевого буфера статуса клиента журнала истории.
	DefaultHistorySize = 20
)

// Поля метаданных клиента.
const (
	FieldLastConsumeHost            = "last_consume_host"
	FieldLastConsumePID             = "last_consume_pid"
	FieldLastConsumedResource       = "last_consumed_resource"
	FieldLastConsumedResourceStatus = "last_consumed_resource_status"
	FieldLastConsumeDate            = "last_consume_date"
	FieldLastConsumeFailedMsg       = "last_consume_failed_msg"
)

// Config — параметры реестра клиентов.
type Config struct {
	Clock  clock.Clock
	Logger *slog.Logger
	// Host и PID записываются в метаданные клиента; по умолчанию — текущий процесс
	Host string
	PID  int
}

// Clients — реестр клиентов-потребителей репозитория.
// Метаданные клиентов — дерево {base}/clients_metadata.json,
// статусы — документы {base}/clients/{client_id}.
type Clients struct {
	target  *repository.Repository
	storage storage.Storage
	meta    *metadata.Tree
	clock   clock.Clock
	host    string
	pid     int
	logger  *slog.Logger
}

// NewClients создаёт реестр клиентов репозитория target.
func NewClients(target *repository.Repository, cfg Config) (*Clients, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	meta, err := metadata.NewTree(target.Storage(), metadata.DocumentPath(target.Base(), ClientsMetaname), model.BasicKeys, metadata.TreeOptions{
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	host := cfg.Host
	if host == "" {
		if host, err = os.Hostname(); err != nil {
			host = "unknown"
		}
	}
	pid := cfg.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	return &Clients{
		target:  target,
		storage: target.Storage(),
		meta:    meta,
		clock:   clock.OrReal(cfg.Clock),
		host:    host,
		pid:     pid,
		logger: logger.With(
			slog.String("component", "consume"),
			slog.String("resource", target.Name()),
		),
	}, nil
}

// Target возвращает обрабатываемый репозиторий.
func (c *Clients) Target() *repository.Repository { return c.target }

func (c *Clients) statusPath(clientID string) string {
	return storage.Join(c.target.Base(), ClientsPath, clientID)
}

// List возвращает метаданные всех клиентов в порядке client_id.
func (c *Clients) List() ([]model.Metadata, error) {
	seq, err := c.meta.Iterate(nil, model.StatusAll, false)
	if err != nil {
		return nil, err
	}
	var out []model.Metadata
	for rec := range seq {
		out = append(out, rec.Current)
	}
	return out, nil
}

// Metadata возвращает метаданные клиента.
func (c *Clients) Metadata(clientID string) (model.Metadata, error) {
	rec, err := c.meta.Get([]string{clientID}, model.StatusAll)
	if err != nil {
		return nil, err
	}
	return rec.Current, nil
}

// Exists проверяет, зарегистрирован ли клиент.
func (c *Clients) Exists(clientID string) (bool, error) {
	_, err := c.Metadata(clientID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, model.ErrResourceNotFound) {
		return false, nil
	}
	return false, err
}

// Status возвращает документ статуса клиента или nil, если клиент не зарегистрирован.
func (c *Clients) Status(clientID string) (any, error) {
	md, err := c.Metadata(clientID)
	if err != nil {
		if errors.Is(err, model.ErrResourceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	doc, err := resource.New(c.storage, md.ResourcePath()).Document()
	if err != nil {
		if errors.Is(err, model.ErrResourceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения статуса клиента %s: %w", clientID, err)
	}
	return doc, nil
}

// Delete удаляет клиента вместе со статусом; пустой clientID удаляет всех.
// Возвращает метаданные удалённых клиентов.
func (c *Clients) Delete(clientID string) ([]model.Metadata, error) {
	var ids []string
	if clientID != "" {
		ids = []string{clientID}
	} else {
		all, err := c.List()
		if err != nil {
			return nil, err
		}
		for _, md := range all {
			ids = append(ids, md.String(model.FieldResourceID))
		}
	}

	var deleted []model.Metadata
	for _, id := range ids {
		rec, err := c.meta.Remove([]string{id}, true)
		if err != nil {
			return deleted, err
		}
		if rec == nil {
			continue
		}
		if err := c.storage.Delete(rec.Current.ResourcePath()); err != nil {
			c.logger.Error("Не удалось удалить статус клиента",
				slog.String("client_id", id),
				slog.String("error", err.Error()),
			)
		}
		deleted = append(deleted, rec.Current)
	}
	if len(deleted) > 0 {
		c.logger.Info("Клиенты удалены", slog.Int("count", len(deleted)))
	}
	return deleted, nil
}

// save записывает документ статуса клиента и его метаданные.
func (c *Clients) save(clientID string, doc any, md model.Metadata) error {
	if err := model.CheckKeyValue(model.FieldResourceID, clientID); err != nil {
		return err
	}
	data, err := model.MarshalDocument(doc)
	if err != nil {
		return err
	}
	p := c.statusPath(clientID)
	if err := c.storage.PutBytes(p, data, true); err != nil {
		return fmt.Errorf("ошибка записи статуса клиента %s: %w", clientID, err)
	}
	md = md.Clone()
	md[model.FieldResourceID] = clientID
	md[model.FieldResourceFile] = clientID
	md[model.FieldResourcePath] = p
	md[model.FieldPublishDate] = model.Normalize(c.clock.Now())
	md[FieldLastConsumeHost] = c.host
	md[FieldLastConsumePID] = c.pid
	if _, _, err := c.meta.Put(md); err != nil {
		return fmt.Errorf("ошибка записи метаданных клиента %s: %w", clientID, err)
	}
	return nil
}

// progress — метаданные клиента за текущий проход.
type progress model.Metadata

func (p progress) record(keys []string, label string, failedMsg string, now time.Time) {
	p[FieldLastConsumedResource] = keysToAny(keys)
	p[FieldLastConsumedResourceStatus] = label
	p[FieldLastConsumeDate] = now
	if failedMsg != "" {
		p[FieldLastConsumeFailedMsg] = failedMsg
	} else {
		delete(p, FieldLastConsumeFailedMsg)
	}
}

// Client возвращает клиента, отслеживающего изменения репозитория.
func (c *Clients) Client(clientID string) *Client {
	return &Client{clients: c, id: clientID}
}

// HistoryClient возвращает клиента журнала истории с буфером из size записей
// (DefaultHistorySize при size <= 0).
func (c *Clients) HistoryClient(clientID string, size int) (*HistoryClient, error) {
	if !c.target.Kind().History() {
		return nil, fmt.Errorf("%w: %s не является журналом истории", model.ErrOperationNotSupport, c.target.Kind())
	}
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &HistoryClient{clients: c, id: clientID, size: size}, nil
}

func keysToAny(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func keysFromAny(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	keys := make([]string, len(list))
	for i, x := range list {
		s, ok := x.(string)
		if !ok {
			return nil, false
		}
		keys[i] = s
	}
	return keys, true
}

// removeFile удаляет временный файл payload.
func (c *Clients) removeFile(name string) {
	if name == "" {
		return
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("Не удалось удалить временный файл",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}
}
