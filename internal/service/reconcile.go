// reconcile.go — сервис фоновой сверки (Reconciliation) payload и метаданных.
//
// Reconciliation сравнивает объекты под {base}/data с путями resource_path
// всех версий всех ресурсов (включая логически удалённые и историю).
//
// Обнаруживает проблемы:
//   - orphaned_payload: объект в хранилище, на который не ссылаются метаданные
//   - missing_payload: путь в метаданных, объекта по которому нет
//
// Сверка только сообщает о проблемах и ничего не удаляет.
// Запускается как горутина с периодическим тикером (DS_RECONCILE_INTERVAL),
// выполняется только на leader.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/data-storage/internal/replica"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
)

// Типы проблем сверки.
const (
	IssueOrphanedPayload = "orphaned_payload"
	IssueMissingPayload  = "missing_payload"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных reconciliation",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ds_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ReconcileIssue — одна обнаруженная проблема.
type ReconcileIssue struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	Ok               int `json:"ok"`
	OrphanedPayloads int `json:"orphaned_payloads"`
	MissingPayloads  int `json:"missing_payloads"`
}

// ReconcileResult — результат одного запуска сверки.
// PayloadsChecked — количество проверенных путей (объекты и ссылки без объектов).
type ReconcileResult struct {
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     time.Time        `json:"completed_at"`
	PayloadsChecked int              `json:"payloads_checked"`
	Issues          []ReconcileIssue `json:"issues"`
	Summary         ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис фоновой сверки хранилища.
type ReconcileService struct {
	repo     *repository.Repository
	writeMu  *sync.Mutex
	roles    replica.RoleProvider
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // reconciliation в процессе выполнения
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис reconciliation.
func NewReconcileService(
	repo *repository.Repository,
	writeMu *sync.Mutex,
	roles replica.RoleProvider,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	if roles == nil {
		roles = &replica.StandaloneProvider{}
	}
	return &ReconcileService{
		repo:     repo,
		writeMu:  writeMu,
		roles:    roles,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину reconciliation с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновой процесс reconciliation.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Reconciliation остановлена")
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !rs.roles.IsLeader() {
				continue
			}
			if _, _, err := rs.RunOnce(); err != nil {
				rs.logger.Error("Ошибка reconciliation",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce выполняет один цикл reconciliation.
// Потокобезопасен: если reconciliation уже выполняется, возвращает nil, true.
//
// Возвращает:
//   - *ReconcileResult — результат сверки
//   - bool — true если reconciliation уже выполнялась (skipped)
//   - error — ошибка чтения хранилища или метаданных
func (rs *ReconcileService) RunOnce() (*ReconcileResult, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Info("Reconciliation начата")

	issues, checked, err := rs.reconcile()
	if err != nil {
		return nil, false, err
	}

	completedAt := time.Now().UTC()
	duration := completedAt.Sub(startedAt)

	// Подсчитываем summary
	summary := ReconcileSummary{}
	for _, issue := range issues {
		switch issue.Type {
		case IssueOrphanedPayload:
			summary.OrphanedPayloads++
		case IssueMissingPayload:
			summary.MissingPayloads++
		}
	}
	summary.Ok = max(checked-len(issues), 0)

	// Обновляем Prometheus метрики
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range issues {
		reconcileIssuesTotal.WithLabelValues(issue.Type).Inc()
	}

	rs.logger.Info("Reconciliation завершена",
		slog.Int("payloads_checked", checked),
		slog.Int("issues", len(issues)),
		slog.Int("ok", summary.Ok),
		slog.Duration("duration", duration),
	)

	return &ReconcileResult{
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		PayloadsChecked: checked,
		Issues:          issues,
		Summary:         summary,
	}, false, nil
}

// reconcile сравнивает объекты хранилища со ссылками метаданных.
// Снимок берётся под writeMu, чтобы не застать публикацию между
// записью payload и обновлением метаданных.
func (rs *ReconcileService) reconcile() ([]ReconcileIssue, int, error) {
	rs.writeMu.Lock()
	objects, err := rs.repo.Storage().List(rs.repo.DataPath() + "/")
	if err != nil {
		rs.writeMu.Unlock()
		return nil, 0, fmt.Errorf("ошибка чтения списка payload: %w", err)
	}
	refs, err := rs.repo.References()
	rs.writeMu.Unlock()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка чтения метаданных: %w", err)
	}

	issues := []ReconcileIssue{}
	present := make(map[string]struct{}, len(objects))

	// 1. Объект без ссылки в метаданных (orphaned_payload)
	for _, p := range objects {
		present[p] = struct{}{}
		if _, ok := refs[p]; !ok {
			issues = append(issues, ReconcileIssue{
				Type:        IssueOrphanedPayload,
				Path:        p,
				Description: "Payload в хранилище без ссылки в метаданных",
			})
		}
	}

	// 2. Ссылка без объекта (missing_payload), в порядке путей
	missing := make([]string, 0)
	for p := range refs {
		if _, ok := present[p]; !ok {
			missing = append(missing, p)
		}
	}
	slices.Sort(missing)
	for _, p := range missing {
		issues = append(issues, ReconcileIssue{
			Type:        IssueMissingPayload,
			Path:        p,
			Description: "Путь из метаданных без payload в хранилище",
		})
	}

	return issues, len(objects) + len(missing), nil
}
