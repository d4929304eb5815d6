package lock

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// lockOperationsTotal — операции с блокировками по типу и результату.
var lockOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ds_lock_operations_total",
		Help: "Общее количество операций с блокировками",
	},
	[]string{"operation", "result"},
)

func observe(operation string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, model.ErrAlreadyLocked):
		result = "locked"
	case errors.Is(err, model.ErrInvalidLockStatus):
		result = "invalid"
	default:
		result = "error"
	}
	lockOperationsTotal.WithLabelValues(operation, result).Inc()
}
