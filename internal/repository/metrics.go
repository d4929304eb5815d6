// metrics.go — Prometheus-метрики операций репозитория.
package repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal — операции репозитория по типу и результату.
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_operations_total",
			Help: "Общее количество операций репозитория ресурсов",
		},
		[]string{"operation", "result"},
	)

	// payloadBytesTotal — объём записанных payload.
	payloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ds_payload_bytes_total",
			Help: "Общий объём опубликованных payload в байтах",
		},
	)
)

func observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}
