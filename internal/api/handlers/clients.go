// clients.go — HTTP handlers реестра клиентов-потребителей.
package handlers

import (
	"fmt"
	"net/http"
	"sync"

	apierrors "github.com/bigkaa/goartstore/data-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/data-storage/internal/api/generated"
	"github.com/bigkaa/goartstore/data-storage/internal/consume"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// ClientInfo — ответ GET /api/v1/clients/{client_id}.
type ClientInfo struct {
	Metadata any `json:"metadata"`
	Status   any `json:"status"`
}

// BehindResponse — ответ GET /api/v1/clients/{client_id}/behind.
type BehindResponse struct {
	ClientID string `json:"client_id"`
	Behind   bool   `json:"behind"`
}

// ClientsHandler — обработчик endpoints клиентов.
type ClientsHandler struct {
	clients *consume.Clients
	writeMu *sync.Mutex
}

// NewClientsHandler создаёт обработчик endpoints клиентов.
// writeMu — общий мьютекс изменений метаданных экземпляра.
func NewClientsHandler(clients *consume.Clients, writeMu *sync.Mutex) *ClientsHandler {
	return &ClientsHandler{clients: clients, writeMu: writeMu}
}

// ListClients обрабатывает GET /api/v1/clients.
func (h *ClientsHandler) ListClients(w http.ResponseWriter, _ *http.Request) {
	mds, err := h.clients.List()
	if err != nil {
		apierrors.FromDomain(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": encodeMetadataList(mds)})
}

// GetClient обрабатывает GET /api/v1/clients/{client_id}.
// Возвращает метаданные клиента и документ его статуса.
func (h *ClientsHandler) GetClient(w http.ResponseWriter, _ *http.Request, id generated.ClientId) {
	md, err := h.clients.Metadata(id)
	if err != nil {
		apierrors.FromDomain(w, err)
		return
	}
	status, err := h.clients.Status(id)
	if err != nil {
		apierrors.FromDomain(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClientInfo{
		Metadata: encodeMetadata(md),
		Status:   encodeStatus(status),
	})
}

// GetClientBehind обрабатывает GET /api/v1/clients/{client_id}/behind.
// Для журнала истории проверяется клиент журнала, иначе — клиент изменений.
// Незарегистрированный клиент отстаёт, если в репозитории есть ресурсы.
func (h *ClientsHandler) GetClientBehind(w http.ResponseWriter, _ *http.Request, id generated.ClientId) {
	var (
		behind bool
		err    error
	)
	if h.clients.Target().Kind().History() {
		var hc *consume.HistoryClient
		if hc, err = h.clients.HistoryClient(id, 0); err == nil {
			behind, err = hc.IsBehind()
		}
	} else {
		behind, err = h.clients.Client(id).IsBehind()
	}
	if err != nil {
		apierrors.FromDomain(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BehindResponse{ClientID: id, Behind: behind})
}

// DeleteClient обрабатывает DELETE /api/v1/clients/{client_id}.
func (h *ClientsHandler) DeleteClient(w http.ResponseWriter, _ *http.Request, id generated.ClientId) {
	h.writeMu.Lock()
	deleted, err := h.clients.Delete(id)
	h.writeMu.Unlock()
	if err != nil {
		apierrors.FromDomain(w, err)
		return
	}
	if len(deleted) == 0 {
		apierrors.NotFound(w, fmt.Sprintf("Клиент %s не найден", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// encodeStatus кодирует даты в документе статуса так же, как в метаданных.
func encodeStatus(doc any) any {
	if doc == nil {
		return nil
	}
	return model.EncodeValue(doc)
}
