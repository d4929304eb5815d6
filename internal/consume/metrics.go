package consume

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// consumeResourcesTotal — обработанные клиентами ресурсы по статусу и результату.
var consumeResourcesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ds_consume_resources_total",
		Help: "Общее количество ресурсов, обработанных клиентами",
	},
	[]string{"status", "result"},
)

func observeConsume(st Status, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	consumeResourcesTotal.WithLabelValues(st.String(), result).Inc()
}
