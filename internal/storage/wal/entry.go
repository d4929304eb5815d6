// Пакет wal — журнал публикаций (Write-Ahead Log) поверх Storage.
//
// Каждая публикация — отдельный документ {base}/.journal/{tx_id}.json,
// созданный до записи payload и удаляемый после обновления метаданных.
// Оставшиеся после рестарта записи откатываются: payload, на который
// не ссылаются метаданные, удаляется.
package wal

import (
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// OperationType — тип операции, записываемой в журнал.
type OperationType string

const (
	// OpPush — запись payload ресурса
	OpPush OperationType = "push"
)

// Entry — запись журнала. Существует, пока операция не завершена.
type Entry struct {
	// TransactionID — уникальный идентификатор транзакции (UUID v4)
	TransactionID string `json:"transaction_id"`

	// Operation — тип операции
	Operation OperationType `json:"operation"`

	// ResourcePath — путь payload в хранилище
	ResourcePath string `json:"resource_path"`

	// StartedAt — время начала транзакции
	StartedAt model.DateTime `json:"started_at"`
}

// entryName возвращает имя документа журнала для данной транзакции.
func entryName(txID string) string {
	return txID + ".json"
}
