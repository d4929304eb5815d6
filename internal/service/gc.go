// gc.go — сервис фоновой очистки (Garbage Collection) репозитория.
//
// GC физически удаляет логически удалённые ресурсы (Repository.Purge):
// запись метаданных, текущий payload и payload всех версий истории.
// Без логического удаления в репозитории запуск ничего не делает.
//
// Запускается как горутина с периодическим тикером (DS_GC_INTERVAL),
// выполняется только на leader.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/replica"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
)

// Prometheus метрики GC
var (
	// gcRunsTotal — количество запусков GC.
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_gc_runs_total",
		Help: "Общее количество запусков GC",
	})

	// gcResourcesPurgedTotal — количество физически удалённых ресурсов.
	gcResourcesPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_gc_resources_purged_total",
		Help: "Общее количество ресурсов, физически удалённых GC",
	})

	// gcErrorsTotal — количество запусков, завершившихся ошибкой.
	gcErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_gc_errors_total",
		Help: "Общее количество ошибок GC",
	})

	// gcDurationSeconds — длительность выполнения GC.
	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ds_gc_duration_seconds",
		Help:    "Длительность выполнения GC в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// GCResult — результат одного запуска GC.
type GCResult struct {
	// PurgedCount — количество физически удалённых ресурсов
	PurgedCount int `json:"purged_count"`
	// Purged — ключи удалённых ресурсов
	Purged []string `json:"purged"`
	// Error — текст ошибки, прервавшей очистку
	Error string `json:"error,omitempty"`
	// Duration — длительность выполнения
	Duration time.Duration `json:"-"`
}

// GCService — сервис фоновой очистки репозитория.
type GCService struct {
	repo     *repository.Repository
	writeMu  *sync.Mutex
	roles    replica.RoleProvider
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewGCService создаёт сервис GC.
// writeMu — общий с HTTP-обработчиками мьютекс изменений метаданных.
// roles == nil — экземпляр считается единственным (standalone).
func NewGCService(
	repo *repository.Repository,
	writeMu *sync.Mutex,
	roles replica.RoleProvider,
	interval time.Duration,
	logger *slog.Logger,
) *GCService {
	if roles == nil {
		roles = &replica.StandaloneProvider{}
	}
	return &GCService{
		repo:     repo,
		writeMu:  writeMu,
		roles:    roles,
		interval: interval,
		logger:   logger.With(slog.String("component", "gc")),
	}
}

// Start запускает фоновую горутину GC с периодическим тикером.
// Вызывается один раз при старте приложения.
func (gc *GCService) Start(ctx context.Context) {
	gcCtx, cancel := context.WithCancel(ctx)
	gc.cancel = cancel

	go gc.run(gcCtx)

	gc.logger.Info("GC запущен",
		slog.String("interval", gc.interval.String()),
	)
}

// Stop останавливает фоновый процесс GC.
func (gc *GCService) Stop() {
	if gc.cancel != nil {
		gc.cancel()
	}
	gc.logger.Info("GC остановлен")
}

// run — основной цикл фоновой горутины.
func (gc *GCService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	gc.runIfLeader()

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gc.runIfLeader()
		}
	}
}

func (gc *GCService) runIfLeader() {
	if !gc.roles.IsLeader() {
		gc.logger.Debug("GC пропущен: экземпляр не leader")
		return
	}
	gc.RunOnce()
}

// RunOnce выполняет один цикл GC.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (gc *GCService) RunOnce() *GCResult {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	start := time.Now()
	result := &GCResult{Purged: []string{}}

	gc.logger.Debug("GC запуск начат")

	gc.writeMu.Lock()
	purged, err := gc.repo.Purge()
	gc.writeMu.Unlock()

	ks := gc.repo.KeySet()
	for _, md := range purged {
		if keys, kerr := md.Keys(ks); kerr == nil {
			result.Purged = append(result.Purged, model.KeyString(keys))
		}
	}
	result.PurgedCount = len(purged)
	result.Duration = time.Since(start)

	// Обновляем Prometheus метрики
	gcRunsTotal.Inc()
	gcResourcesPurgedTotal.Add(float64(result.PurgedCount))
	gcDurationSeconds.Observe(result.Duration.Seconds())

	if err != nil {
		result.Error = err.Error()
		gcErrorsTotal.Inc()
		gc.logger.Error("GC завершён с ошибкой",
			slog.Int("purged", result.PurgedCount),
			slog.String("error", err.Error()),
		)
		return result
	}

	gc.logger.Info("GC завершён",
		slog.Int("purged", result.PurgedCount),
		slog.Duration("duration", result.Duration),
	)

	return result
}
