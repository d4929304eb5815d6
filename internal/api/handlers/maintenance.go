// maintenance.go — обработчики POST /api/v1/maintenance/{purge,reconcile}.
// Делегирует работу в GCService и ReconcileService.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/goartstore/data-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/data-storage/internal/service"
)

// PurgeRunner — интерфейс для запуска очистки логически удалённых ресурсов.
type PurgeRunner interface {
	RunOnce() *service.GCResult
}

// ReconcileRunner — интерфейс для запуска reconciliation.
// Позволяет тестировать handler без полного ReconcileService.
type ReconcileRunner interface {
	// RunOnce выполняет один цикл reconciliation.
	// Возвращает результат и флаг "уже выполняется".
	RunOnce() (*service.ReconcileResult, bool, error)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	purger     PurgeRunner
	reconciler ReconcileRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(purger PurgeRunner, reconciler ReconcileRunner) *MaintenanceHandler {
	return &MaintenanceHandler{purger: purger, reconciler: reconciler}
}

// RunPurge обрабатывает POST /api/v1/maintenance/purge.
// Синхронно удаляет логически удалённые ресурсы вместе с payload.
func (h *MaintenanceHandler) RunPurge(w http.ResponseWriter, _ *http.Request) {
	result := h.purger.RunOnce()
	if result.Error != "" {
		apierrors.InternalError(w, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RunReconcile обрабатывает POST /api/v1/maintenance/reconcile.
// Запускает синхронный цикл reconciliation и возвращает результат.
// Если reconciliation уже выполняется — 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) RunReconcile(w http.ResponseWriter, _ *http.Request) {
	result, inProgress, err := h.reconciler.RunOnce()
	if inProgress {
		apierrors.ReconcileInProgress(w, "Reconciliation уже выполняется")
		return
	}
	if err != nil {
		apierrors.InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
