// system.go — обработчики GET /api/v1/info (информация о репозитории)
// и GET /api/v1/openapi.json (описание API).
// Публичные endpoints (без аутентификации) для service discovery и мониторинга.
package handlers

import (
	"log/slog"
	"net/http"
	"sync"

	apierrors "github.com/bigkaa/goartstore/data-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/data-storage/internal/api/generated"
	"github.com/bigkaa/goartstore/data-storage/internal/replica"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
)

// StorageInfo — ответ GET /api/v1/info.
type StorageInfo struct {
	Name          string        `json:"name"`
	BasePath      string        `json:"base_path"`
	Kind          string        `json:"kind"`
	Keys          []string      `json:"keys"`
	Archive       bool          `json:"archive"`
	LogicalDelete bool          `json:"logical_delete"`
	Role          replica.Role  `json:"role"`
	LeaderAddr    string        `json:"leader_addr,omitempty"`
	Version       string        `json:"version"`
	Capacity      *CapacityInfo `json:"capacity,omitempty"`
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	repo         *repository.Repository
	roleProvider replica.RoleProvider
	version      string
	storageRoot  string
	logger       *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
// storageRoot — каталог файлового хранилища для расчёта ёмкости ("" — не сообщать).
func NewSystemHandler(
	repo *repository.Repository,
	roleProvider replica.RoleProvider,
	version string,
	storageRoot string,
	logger *slog.Logger,
) *SystemHandler {
	if roleProvider == nil {
		roleProvider = &replica.StandaloneProvider{}
	}
	return &SystemHandler{
		repo:         repo,
		roleProvider: roleProvider,
		version:      version,
		storageRoot:  storageRoot,
		logger:       logger.With(slog.String("component", "system_handler")),
	}
}

// GetStorageInfo обрабатывает GET /api/v1/info.
func (h *SystemHandler) GetStorageInfo(w http.ResponseWriter, _ *http.Request) {
	resp := StorageInfo{
		Name:          h.repo.Name(),
		BasePath:      h.repo.Base(),
		Kind:          string(h.repo.Kind()),
		Keys:          h.repo.KeySet(),
		Archive:       h.repo.Archive(),
		LogicalDelete: h.repo.LogicalDelete(),
		Role:          h.roleProvider.CurrentRole(),
		LeaderAddr:    h.roleProvider.LeaderAddr(),
		Version:       h.version,
	}

	if h.storageRoot != "" {
		capacity, err := diskUsage(h.storageRoot)
		if err != nil {
			h.logger.Warn("Не удалось получить ёмкость хранилища",
				slog.String("error", err.Error()),
			)
		} else {
			resp.Capacity = capacity
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// openAPISpec — JSON описания API, встроенного в generated.
var openAPISpec = sync.OnceValues(func() ([]byte, error) {
	swagger, err := generated.GetSwagger()
	if err != nil {
		return nil, err
	}
	return swagger.MarshalJSON()
})

// GetOpenAPISpec обрабатывает GET /api/v1/openapi.json.
func (h *SystemHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	data, err := openAPISpec()
	if err != nil {
		h.logger.Error("Ошибка загрузки описания API", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Описание API недоступно")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
