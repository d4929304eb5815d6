// Пакет consume — клиенты-потребители репозитория ресурсов.
//
// Клиент хранит снимок метаданных каждого обработанного ресурса и при следующем
// проходе сравнивает его с живыми метаданными: новые, изменённые и удалённые
// ресурсы передаются в callback, результат фиксируется в статусе клиента.
// Статус клиента — обычный ресурс в пространстве {base}/clients.
package consume

import (
	"fmt"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// Status — результат классификации ресурса.
type Status int

const (
	NotChanged        Status = 0
	New               Status = 1
	Updated           Status = 2
	PhysicallyDeleted Status = -1
	LogicallyDeleted  Status = -2
)

// String возвращает отображаемое имя статуса.
func (s Status) String() string {
	switch s {
	case NotChanged:
		return "non-changed"
	case New:
		return "new"
	case Updated:
		return "updated"
	case PhysicallyDeleted:
		return "physically deleted"
	case LogicallyDeleted:
		return "logically deleted"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Метки статуса, сохраняемые в записи обработки.
const (
	labelNew               = "New"
	labelUpdate            = "Update"
	labelReconsume         = "Reconsume"
	labelPhysicallyDeleted = "Physically Deleted"
	labelLogicallyDeleted  = "Logically Deleted"
)

func (s Status) label() string {
	switch s {
	case New:
		return labelNew
	case Updated:
		return labelUpdate
	case PhysicallyDeleted:
		return labelPhysicallyDeleted
	case LogicallyDeleted:
		return labelLogicallyDeleted
	}
	return labelReconsume
}

// Поля записи обработки.
const (
	fieldResourceMetadata = "resource_metadata"
	fieldResourceStatus   = "resource_status"
	fieldConsumeDate      = "consume_date"
	fieldConsumeFailedMsg = "consume_failed_msg"
)

// Record — запись обработки одного ресурса: последний увиденный снимок и исход.
type Record struct {
	Metadata model.Metadata
	// Status — сохранённая метка (New, Update, Reconsume, ...)
	Status      string
	ConsumeDate time.Time
	// FailedMsg — текст ошибки последней попытки; пусто при успехе
	FailedMsg string
}

// Failed сообщает, завершилась ли последняя попытка ошибкой.
func (r *Record) Failed() bool { return r != nil && r.FailedMsg != "" }

func (r *Record) encode() map[string]any {
	m := map[string]any{
		fieldResourceMetadata: map[string]any(r.Metadata),
		fieldResourceStatus:   r.Status,
		fieldConsumeDate:      r.ConsumeDate,
	}
	if r.FailedMsg != "" {
		m[fieldConsumeFailedMsg] = r.FailedMsg
	}
	return m
}

func decodeRecord(v any) (*Record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	md, ok := m[fieldResourceMetadata].(map[string]any)
	if !ok {
		return nil, false
	}
	rec := &Record{Metadata: md}
	rec.Status, _ = m[fieldResourceStatus].(string)
	rec.ConsumeDate, _ = m[fieldConsumeDate].(time.Time)
	rec.FailedMsg, _ = m[fieldConsumeFailedMsg].(string)
	return rec, true
}

// classify определяет статус ресурса по прежней записи и живым метаданным.
// live == nil — ресурс физически удалён. ok == false — обрабатывать не нужно.
func classify(prev *Record, live model.Metadata, deleted, reconsume bool) (Status, bool) {
	switch {
	case live == nil:
		return PhysicallyDeleted, prev != nil
	case prev == nil:
		return New, !deleted
	case deleted:
		// обработанное логическое удаление повторно не выдаётся
		if prev.Status == labelLogicallyDeleted && !prev.Failed() {
			return 0, false
		}
		return LogicallyDeleted, true
	case prev.Failed():
		switch {
		case prev.Status == labelNew:
			return New, true
		case !live.Equal(prev.Metadata):
			return Updated, true
		case prev.Status == labelUpdate:
			return Updated, true
		}
		return NotChanged, true
	case !live.Equal(prev.Metadata):
		return Updated, true
	case reconsume:
		return NotChanged, true
	}
	return 0, false
}
