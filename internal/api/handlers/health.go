// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/replica"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/wal"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

const serviceName = "data-storage"

// JournalInspector — доступ к незавершённым записям журнала публикаций.
type JournalInspector interface {
	Pending() ([]*wal.Entry, error)
}

// DependencyHealth — состояние внешних зависимостей (topologymetrics).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// storage — проверка доступности хранилища
	storage storage.HealthChecker
	// journal — журнал публикаций (nil, если отключён)
	journal JournalInspector
	// roleProvider — провайдер роли для проверки leader connection (follower only)
	roleProvider replica.RoleProvider
	// deps — мониторинг зависимостей (nil, если аутентификация отключена)
	deps DependencyHealth
}

// NewHealthHandler создаёт обработчик health endpoints.
// journal, roleProvider и deps могут быть nil.
func NewHealthHandler(
	version string,
	st storage.HealthChecker,
	journal JournalInspector,
	roleProvider replica.RoleProvider,
	deps DependencyHealth,
) *HealthHandler {
	return &HealthHandler{
		version:      version,
		storage:      st,
		journal:      journal,
		roleProvider: roleProvider,
		deps:         deps,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет хранилище, журнал публикаций, связь с leader (follower)
// и внешние зависимости. Недоступность зависимостей даёт degraded, не 503.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	storageCheck := h.checkStorage()
	if storageCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	checks := map[string]any{
		"storage": storageCheck,
	}

	if h.journal != nil {
		journalCheck := h.checkJournal()
		checks["journal"] = journalCheck
		if journalCheck["status"] != "ok" && overallStatus != statusFail {
			overallStatus = "degraded"
		}
	}

	// Проверка leader connection (только для follower в replicated mode)
	if h.roleProvider != nil && !h.roleProvider.IsLeader() {
		leaderCheck := h.checkLeaderConnection()
		checks["leader_connection"] = leaderCheck
		if leaderCheck["status"] != "ok" && overallStatus != statusFail {
			overallStatus = "degraded"
		}
	}

	if h.deps != nil {
		depsCheck := h.checkDependencies()
		checks["dependencies"] = depsCheck
		if depsCheck["status"] != "ok" && overallStatus != statusFail {
			overallStatus = "degraded"
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks":    checks,
	})
}

// checkStorage проверяет доступность хранилища.
func (h *HealthHandler) checkStorage() map[string]any {
	if h.storage == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}
	if err := h.storage.Check(); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Хранилище недоступно: " + err.Error(),
		}
	}
	return map[string]any{
		"status": "ok",
	}
}

// checkJournal читает незавершённые записи журнала.
func (h *HealthHandler) checkJournal() map[string]any {
	pending, err := h.journal.Pending()
	if err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Журнал публикаций недоступен: " + err.Error(),
		}
	}
	return map[string]any{
		"status":  "ok",
		"pending": len(pending),
	}
}

// checkLeaderConnection проверяет, известен ли адрес leader (для follower).
func (h *HealthHandler) checkLeaderConnection() map[string]any {
	addr := h.roleProvider.LeaderAddr()
	if addr == "" {
		return map[string]any{
			"status":  statusFail,
			"message": "Адрес leader неизвестен",
		}
	}

	return map[string]any{
		"status":      "ok",
		"leader_addr": addr,
	}
}

// checkDependencies возвращает состояние зависимостей по последней проверке.
func (h *HealthHandler) checkDependencies() map[string]any {
	health := h.deps.Health()
	status := "ok"
	for _, ok := range health {
		if !ok {
			status = statusFail
			break
		}
	}
	return map[string]any{
		"status":       status,
		"dependencies": health,
	}
}
