package consume

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// Item — ресурс, передаваемый в callback.
type Item struct {
	Status Status
	Keys   []string
	// Metadata — живые метаданные; для физически удалённого ресурса — последний снимок
	Metadata model.Metadata
	// File — локальная копия payload; пусто для физически удалённого ресурса.
	// Файл удаляется после возврата из callback.
	File string
}

// Outcome — успешно обработанный ресурс.
type Outcome struct {
	Status Status
	Keys   []string
}

// Result — итог прохода.
type Result struct {
	Consumed []Outcome
	Failed   []model.ConsumeFailure
}

type options struct {
	resources    [][]string
	filter       func(keys []string) bool
	reconsume    bool
	compare      func(a, b Item) int
	stopIfFailed bool
}

// Option — параметр прохода.
type Option func(*options)

// WithResources ограничивает проход явным списком ресурсов в заданном порядке.
func WithResources(keys ...[]string) Option {
	return func(o *options) { o.resources = keys }
}

// WithFilter отбирает ресурсы по ключам; удаления ищутся только среди отобранных.
func WithFilter(f func(keys []string) bool) Option {
	return func(o *options) { o.filter = f }
}

// Reconsume повторно выдаёт неизменённые ресурсы со статусом NotChanged.
func Reconsume() Option {
	return func(o *options) { o.reconsume = true }
}

// SortBy собирает все ресурсы прохода и обрабатывает их в порядке cmp.
func SortBy(cmp func(a, b Item) int) Option {
	return func(o *options) { o.compare = cmp }
}

// StopIfFailed задаёт, прерывать ли проход на первой ошибке callback-а (по умолчанию да).
func StopIfFailed(stop bool) Option {
	return func(o *options) { o.stopIfFailed = stop }
}

func buildOptions(opts []Option) options {
	o := options{stopIfFailed: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// candidate — ресурс, требующий обработки.
type candidate struct {
	status Status
	keys   []string
	prev   *Record
	live   model.Metadata
}

func (c candidate) item() Item {
	md := c.live
	if md == nil && c.prev != nil {
		md = c.prev.Metadata
	}
	return Item{Status: c.status, Keys: c.keys, Metadata: md}
}

// Client — клиент, отслеживающий новые, изменённые и удалённые ресурсы.
// Статус клиента — дерево записей обработки, вложенное по ключам ресурса.
type Client struct {
	clients *Clients
	id      string
}

// ID возвращает идентификатор клиента.
func (c *Client) ID() string { return c.id }

func (c *Client) loadStatus() (map[string]any, error) {
	doc, err := c.clients.Status(c.id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: статус клиента %s не объект", model.ErrInvalidConsumeStatus, c.id)
	}
	return m, nil
}

// scan классифицирует ресурсы и передаёт требующие обработки в visit.
// visit возвращает false, чтобы прервать обход.
func (c *Client) scan(status map[string]any, o options, visit func(candidate) (bool, error)) error {
	target := c.clients.target
	depth := len(target.KeySet())
	logicalDelete := target.LogicalDelete()

	check := func(keys []string, prev *Record, rec *model.Record) (bool, error) {
		var live model.Metadata
		deleted := false
		if rec != nil {
			live = rec.Current
			deleted = logicalDelete && rec.Deleted
		}
		st, ok := classify(prev, live, deleted, o.reconsume)
		if !ok {
			return true, nil
		}
		return visit(candidate{status: st, keys: keys, prev: prev, live: live})
	}

	if len(o.resources) > 0 {
		for _, keys := range o.resources {
			prev := statusAt(status, keys)
			rec, err := target.Record(keys, model.StatusAll)
			if err != nil {
				if !errors.Is(err, model.ErrResourceNotFound) {
					return err
				}
				if prev == nil {
					c.clients.logger.Warn("Ресурс не существует", slog.String("keys", model.KeyString(keys)))
					continue
				}
				rec = nil
			}
			if next, err := check(keys, prev, rec); err != nil || !next {
				return err
			}
		}
		return nil
	}

	seq, err := target.Resources(nil, model.StatusAll)
	if err != nil {
		return err
	}
	checked := make(map[string]struct{})
	for rec := range seq {
		if o.filter != nil && !o.filter(rec.Keys) {
			continue
		}
		checked[model.KeyString(rec.Keys)] = struct{}{}
		next, err := check(rec.Keys, statusAt(status, rec.Keys), rec)
		if err != nil || !next {
			return err
		}
	}

	// ресурсы из статуса, не найденные при обходе, физически удалены
	var walkErr error
	walkStatus(status, depth, nil, func(keys []string, prev *Record) bool {
		if o.filter != nil && !o.filter(keys) {
			return true
		}
		if _, ok := checked[model.KeyString(keys)]; ok {
			return true
		}
		next, err := check(keys, prev, nil)
		walkErr = err
		return err == nil && next
	})
	return walkErr
}

// IsBehind сообщает, есть ли ресурсы, требующие обработки.
func (c *Client) IsBehind(opts ...Option) (bool, error) {
	o := buildOptions(opts)
	o.reconsume = false
	status, err := c.loadStatus()
	if err != nil {
		return false, err
	}
	behind := false
	err = c.scan(status, o, func(cand candidate) (bool, error) {
		c.clients.logger.Debug("Найден необработанный ресурс",
			slog.String("client_id", c.id),
			slog.String("keys", model.KeyString(cand.keys)),
			slog.String("status", cand.status.String()),
		)
		behind = true
		return false, nil
	})
	return behind, err
}

// Consume вызывает fn для каждого ресурса, требующего обработки,
// и после каждого вызова сохраняет статус клиента.
//
// Ошибка fn записывается в статус ресурса; при StopIfFailed проход прерывается
// и возвращается *model.ConsumeFailedError, иначе ошибки накапливаются в Result.Failed.
func (c *Client) Consume(fn func(Item) error, opts ...Option) (Result, error) {
	o := buildOptions(opts)
	status, err := c.loadStatus()
	if err != nil {
		return Result{}, err
	}
	run := &pass{client: c, status: status, progress: progress{}}

	var stopped bool
	consumeOne := func(cand candidate) (bool, error) {
		failure, err := run.consume(cand, fn)
		if err != nil {
			return false, err
		}
		if failure != nil && o.stopIfFailed {
			stopped = true
			return false, nil
		}
		return true, nil
	}

	if o.compare == nil {
		if err := c.scan(status, o, consumeOne); err != nil {
			return run.result, err
		}
	} else {
		cands, err := c.collect(status, o)
		if err != nil {
			return run.result, err
		}
		for _, cand := range cands {
			next, err := consumeOne(cand)
			if err != nil {
				return run.result, err
			}
			if !next {
				break
			}
		}
	}

	if stopped {
		return run.result, &model.ConsumeFailedError{Failures: slices.Clone(run.result.Failed)}
	}
	return run.result, nil
}

// ConsumeBatch собирает все ресурсы, требующие обработки, и вызывает fn один раз.
// Статус сохраняется только при успехе fn; ошибка fn не сохраняет ничего
// и возвращается как *model.ConsumeFailedError.
func (c *Client) ConsumeBatch(fn func([]Item) error, opts ...Option) (Result, error) {
	o := buildOptions(opts)
	status, err := c.loadStatus()
	if err != nil {
		return Result{}, err
	}
	cands, err := c.collect(status, o)
	if err != nil || len(cands) == 0 {
		return Result{}, err
	}

	items := make([]Item, 0, len(cands))
	defer func() {
		for _, it := range items {
			c.clients.removeFile(it.File)
		}
	}()
	for _, cand := range cands {
		it := cand.item()
		if cand.live != nil {
			file, err := c.clients.target.DownloadMetadata(cand.live, "", false)
			if err != nil {
				return Result{}, err
			}
			it.File = file
		}
		items = append(items, it)
	}

	if err := fn(items); err != nil {
		failures := make([]model.ConsumeFailure, len(cands))
		for i, cand := range cands {
			failures[i] = model.ConsumeFailure{Keys: cand.keys, Status: cand.status.String(), Err: err}
			observeConsume(cand.status, err)
		}
		c.clients.logger.Error("Ошибка пакетной обработки ресурсов",
			slog.String("client_id", c.id),
			slog.Int("count", len(cands)),
			slog.String("error", err.Error()),
		)
		return Result{Failed: failures}, &model.ConsumeFailedError{Failures: failures}
	}

	run := &pass{client: c, status: status, progress: progress{}}
	for _, cand := range cands {
		run.apply(cand, "")
		observeConsume(cand.status, nil)
		run.result.Consumed = append(run.result.Consumed, Outcome{Status: cand.status, Keys: cand.keys})
	}
	if err := run.commit(); err != nil {
		return Result{}, err
	}
	return run.result, nil
}

func (c *Client) collect(status map[string]any, o options) ([]candidate, error) {
	var cands []candidate
	err := c.scan(status, o, func(cand candidate) (bool, error) {
		cands = append(cands, cand)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if o.compare != nil {
		slices.SortStableFunc(cands, func(a, b candidate) int { return o.compare(a.item(), b.item()) })
	}
	return cands, nil
}

// pass — состояние одного прохода клиента.
type pass struct {
	client   *Client
	status   map[string]any
	progress progress
	result   Result
}

// consume обрабатывает один ресурс и сохраняет статус.
// Возвращает неудачу callback-а; error — только ошибки хранилища.
func (p *pass) consume(cand candidate, fn func(Item) error) (*model.ConsumeFailure, error) {
	clients := p.client.clients
	it := cand.item()
	clients.logger.Info("Обработка ресурса",
		slog.String("client_id", p.client.id),
		slog.String("keys", model.KeyString(cand.keys)),
		slog.String("status", cand.status.String()),
	)

	var cbErr error
	if cand.live != nil {
		file, err := clients.target.DownloadMetadata(cand.live, "", false)
		if err != nil {
			cbErr = err
		}
		it.File = file
	}
	if cbErr == nil {
		cbErr = fn(it)
	}
	clients.removeFile(it.File)
	observeConsume(cand.status, cbErr)

	if cbErr == nil {
		p.apply(cand, "")
		if err := p.commit(); err != nil {
			return nil, err
		}
		p.result.Consumed = append(p.result.Consumed, Outcome{Status: cand.status, Keys: cand.keys})
		return nil, nil
	}

	p.apply(cand, cbErr.Error())
	if err := p.commit(); err != nil {
		return nil, err
	}
	failure := model.ConsumeFailure{Keys: cand.keys, Status: cand.status.String(), Err: cbErr}
	p.result.Failed = append(p.result.Failed, failure)
	clients.logger.Error("Ошибка обработки ресурса",
		slog.String("client_id", p.client.id),
		slog.String("keys", model.KeyString(cand.keys)),
		slog.String("status", cand.status.String()),
		slog.String("error", cbErr.Error()),
	)
	return &failure, nil
}

// apply обновляет запись обработки ресурса в статусе клиента.
func (p *pass) apply(cand candidate, failedMsg string) {
	now := model.Normalize(p.client.clients.clock.Now())
	label := cand.status.label()

	if cand.status == PhysicallyDeleted && failedMsg == "" {
		removeStatus(p.status, cand.keys)
		p.progress.record(cand.keys, label, "", now)
		return
	}

	md := cand.live
	if md == nil && cand.prev != nil {
		md = cand.prev.Metadata
	}
	rec := &Record{Metadata: md, Status: label, ConsumeDate: now, FailedMsg: failedMsg}
	setStatus(p.status, cand.keys, rec)
	p.progress.record(cand.keys, label, failedMsg, now)
}

func (p *pass) commit() error {
	return p.client.clients.save(p.client.id, p.status, model.Metadata(p.progress))
}

// statusAt возвращает запись обработки по ключам или nil.
func statusAt(status map[string]any, keys []string) *Record {
	node := status
	for _, k := range keys[:len(keys)-1] {
		next, ok := node[k].(map[string]any)
		if !ok {
			return nil
		}
		node = next
	}
	rec, ok := decodeRecord(node[keys[len(keys)-1]])
	if !ok {
		return nil
	}
	return rec
}

func setStatus(status map[string]any, keys []string, rec *Record) {
	node := status
	for _, k := range keys[:len(keys)-1] {
		next, ok := node[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[k] = next
		}
		node = next
	}
	node[keys[len(keys)-1]] = rec.encode()
}

// removeStatus удаляет запись и опустевшие промежуточные узлы.
func removeStatus(status map[string]any, keys []string) {
	if len(keys) == 1 {
		delete(status, keys[0])
		return
	}
	child, ok := status[keys[0]].(map[string]any)
	if !ok {
		return
	}
	removeStatus(child, keys[1:])
	if len(child) == 0 {
		delete(status, keys[0])
	}
}

// walkStatus обходит записи обработки глубины depth в порядке сортировки ключей.
func walkStatus(node map[string]any, depth int, prefix []string, visit func(keys []string, rec *Record) bool) bool {
	names := make([]string, 0, len(node))
	for k := range node {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		keys := append(slices.Clone(prefix), k)
		if depth == 1 {
			rec, ok := decodeRecord(node[k])
			if !ok {
				continue
			}
			if !visit(keys, rec) {
				return false
			}
			continue
		}
		child, ok := node[k].(map[string]any)
		if !ok {
			continue
		}
		if !walkStatus(child, depth-1, keys, visit) {
			return false
		}
	}
	return true
}
