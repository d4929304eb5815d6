package consume

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// поле ключей в записи кольцевого буфера
const fieldResourceKeys = "resource_keys"

// HistoryRecord — запись обработки в статусе клиента журнала истории.
type HistoryRecord struct {
	Keys []string
	Record
}

// HistoryClient — клиент журнала истории. Записи журнала неизменяемы,
// поэтому клиент хранит только последние size записей обработки
// (и последнюю успешную, если она вышла за размер)
// и читает журнал диапазоном после последнего успешно обработанного id.
type HistoryClient struct {
	clients *Clients
	id      string
	size    int
}

// ID возвращает идентификатор клиента.
func (h *HistoryClient) ID() string { return h.id }

// Records возвращает кольцевой буфер статуса, старые записи первыми.
func (h *HistoryClient) Records() ([]HistoryRecord, error) {
	doc, err := h.clients.Status(h.id)
	if err != nil || doc == nil {
		return nil, err
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: статус клиента %s не список", model.ErrInvalidConsumeStatus, h.id)
	}
	out := make([]HistoryRecord, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: некорректная запись статуса клиента %s", model.ErrInvalidConsumeStatus, h.id)
		}
		keys, ok := keysFromAny(m[fieldResourceKeys])
		rec, ok2 := decodeRecord(m)
		if !ok || !ok2 {
			return nil, fmt.Errorf("%w: некорректная запись статуса клиента %s", model.ErrInvalidConsumeStatus, h.id)
		}
		out = append(out, HistoryRecord{Keys: keys, Record: *rec})
	}
	return out, nil
}

// trim оставляет последние size записей. Если среди них нет успешной,
// перед ними сохраняется последняя успешная: от её id читается журнал.
func trim(records []HistoryRecord, size int) []HistoryRecord {
	if len(records) <= size {
		return records
	}
	window := records[len(records)-size:]
	if slices.ContainsFunc(window, func(r HistoryRecord) bool { return !r.Failed() }) {
		return window
	}
	for i := len(records) - size - 1; i >= 0; i-- {
		if !records[i].Failed() {
			return append([]HistoryRecord{records[i]}, window...)
		}
	}
	return window
}

func (h *HistoryClient) save(records []HistoryRecord, p progress) error {
	records = trim(records, h.size)
	list := make([]any, len(records))
	for i, r := range records {
		m := r.Record.encode()
		m[fieldResourceKeys] = keysToAny(r.Keys)
		list[i] = m
	}
	return h.clients.save(h.id, list, model.Metadata(p))
}

// lastConsumed возвращает id последней успешно обработанной записи
// и незавершённую запись с ошибкой, если она последняя в буфере.
func lastConsumed(records []HistoryRecord) ([]string, *HistoryRecord) {
	var failed *HistoryRecord
	for i := len(records) - 1; i >= 0; i-- {
		if !records[i].Failed() {
			return records[i].Keys, failed
		}
		if failed == nil {
			failed = &records[i]
		}
	}
	return nil, failed
}

// pending возвращает записи журнала после последнего обработанного id.
// Ошибка, записанная не на первом ожидающем id, — model.ErrInvalidConsumeStatus.
func (h *HistoryClient) pending(records []HistoryRecord) ([]*model.Record, error) {
	last, failed := lastConsumed(records)
	seq, err := h.clients.target.ResourcesInRange(last, nil, false, false)
	if err != nil {
		return nil, err
	}
	recs := collectRecords(seq)
	if failed != nil && (len(recs) == 0 || !slices.Equal(recs[0].Keys, failed.Keys)) {
		return nil, fmt.Errorf("%w: ошибка обработки записана для %s, который не является первым необработанным",
			model.ErrInvalidConsumeStatus, model.KeyString(failed.Keys))
	}
	return recs, nil
}

func collectRecords(seq iter.Seq[*model.Record]) []*model.Record {
	var out []*model.Record
	for rec := range seq {
		out = append(out, rec)
	}
	return out
}

// IsBehind сообщает, есть ли необработанные записи журнала.
func (h *HistoryClient) IsBehind() (bool, error) {
	records, err := h.Records()
	if err != nil {
		return false, err
	}
	recs, err := h.pending(records)
	return len(recs) > 0, err
}

// push добавляет запись обработки, заменяя последнюю запись с ошибкой для того же id.
func push(records []HistoryRecord, rec HistoryRecord) []HistoryRecord {
	if n := len(records); n > 0 && records[n-1].Failed() && slices.Equal(records[n-1].Keys, rec.Keys) {
		records[n-1] = rec
		return records
	}
	return append(records, rec)
}

// Consume обрабатывает записи журнала по возрастанию id и сохраняет статус после каждой.
// Первая ошибка fn прерывает проход и возвращается как *model.ConsumeFailedError.
func (h *HistoryClient) Consume(fn func(Item) error) (Result, error) {
	records, err := h.Records()
	if err != nil {
		return Result{}, err
	}
	recs, err := h.pending(records)
	if err != nil {
		return Result{}, err
	}

	var result Result
	p := progress{}
	for _, rec := range recs {
		it := Item{Status: New, Keys: rec.Keys, Metadata: rec.Current}
		file, cbErr := h.clients.target.DownloadMetadata(rec.Current, "", false)
		if cbErr == nil {
			it.File = file
			cbErr = fn(it)
		}
		h.clients.removeFile(file)
		observeConsume(New, cbErr)

		now := model.Normalize(h.clients.clock.Now())
		hr := HistoryRecord{Keys: rec.Keys, Record: Record{Metadata: rec.Current, Status: labelNew, ConsumeDate: now}}
		if cbErr != nil {
			hr.FailedMsg = cbErr.Error()
		}
		records = push(records, hr)
		p.record(rec.Keys, labelNew, hr.FailedMsg, now)
		if err := h.save(records, p); err != nil {
			return result, err
		}
		records = trim(records, h.size)

		if cbErr != nil {
			failure := model.ConsumeFailure{Keys: rec.Keys, Status: New.String(), Err: cbErr}
			result.Failed = append(result.Failed, failure)
			h.clients.logger.Error("Ошибка обработки записи журнала истории",
				slog.String("client_id", h.id),
				slog.String("keys", model.KeyString(rec.Keys)),
				slog.String("error", cbErr.Error()),
			)
			return result, &model.ConsumeFailedError{Failures: []model.ConsumeFailure{failure}}
		}
		result.Consumed = append(result.Consumed, Outcome{Status: New, Keys: rec.Keys})
	}
	return result, nil
}

// ConsumeBatch передаёт все необработанные записи в fn одним вызовом.
// Ошибка fn не сохраняет ничего.
func (h *HistoryClient) ConsumeBatch(fn func([]Item) error) (Result, error) {
	records, err := h.Records()
	if err != nil {
		return Result{}, err
	}
	recs, err := h.pending(records)
	if err != nil || len(recs) == 0 {
		return Result{}, err
	}

	items := make([]Item, 0, len(recs))
	defer func() {
		for _, it := range items {
			h.clients.removeFile(it.File)
		}
	}()
	for _, rec := range recs {
		file, err := h.clients.target.DownloadMetadata(rec.Current, "", false)
		if err != nil {
			return Result{}, err
		}
		items = append(items, Item{Status: New, Keys: rec.Keys, Metadata: rec.Current, File: file})
	}

	if err := fn(items); err != nil {
		failures := make([]model.ConsumeFailure, len(recs))
		for i, rec := range recs {
			failures[i] = model.ConsumeFailure{Keys: rec.Keys, Status: New.String(), Err: err}
		}
		observeConsume(New, err)
		return Result{Failed: failures}, &model.ConsumeFailedError{Failures: failures}
	}

	var result Result
	p := progress{}
	now := model.Normalize(h.clients.clock.Now())
	for _, rec := range recs {
		records = push(records, HistoryRecord{Keys: rec.Keys, Record: Record{Metadata: rec.Current, Status: labelNew, ConsumeDate: now}})
		p.record(rec.Keys, labelNew, "", now)
		observeConsume(New, nil)
		result.Consumed = append(result.Consumed, Outcome{Status: New, Keys: rec.Keys})
	}
	if err := h.save(records, p); err != nil {
		return Result{}, err
	}
	return result, nil
}
