// handler.go — APIHandler реализует generated.ServerInterface,
// делегируя вызовы в отдельные handler'ы по доменам.
package handlers

import (
	"net/http"

	"github.com/bigkaa/goartstore/data-storage/internal/api/generated"
)

// APIHandler — единая реализация ServerInterface, собирающая
// доменные handlers в один объект.
type APIHandler struct {
	resources   *ResourcesHandler
	clients     *ClientsHandler
	maintenance *MaintenanceHandler
}

// NewAPIHandler создаёт единый handler для endpoints /api/v1.
// nil-обработчик домена отвечает 501 через generated.Unimplemented.
func NewAPIHandler(
	resources *ResourcesHandler,
	clients *ClientsHandler,
	maintenance *MaintenanceHandler,
) *APIHandler {
	return &APIHandler{
		resources:   resources,
		clients:     clients,
		maintenance: maintenance,
	}
}

// --- Resources ---

func (h *APIHandler) ListResources(w http.ResponseWriter, r *http.Request, params generated.ListResourcesParams) {
	if h.resources == nil {
		generated.Unimplemented{}.ListResources(w, r, params)
		return
	}
	h.resources.ListResources(w, r, params)
}

func (h *APIHandler) GetResourceMetadata(w http.ResponseWriter, r *http.Request, params generated.GetResourceMetadataParams) {
	if h.resources == nil {
		generated.Unimplemented{}.GetResourceMetadata(w, r, params)
		return
	}
	h.resources.GetResourceMetadata(w, r, params)
}

func (h *APIHandler) DownloadResource(w http.ResponseWriter, r *http.Request, params generated.DownloadResourceParams) {
	if h.resources == nil {
		generated.Unimplemented{}.DownloadResource(w, r, params)
		return
	}
	h.resources.DownloadResource(w, r, params)
}

func (h *APIHandler) UploadResource(w http.ResponseWriter, r *http.Request, params generated.UploadResourceParams) {
	if h.resources == nil {
		generated.Unimplemented{}.UploadResource(w, r, params)
		return
	}
	h.resources.UploadResource(w, r, params)
}

func (h *APIHandler) DeleteResources(w http.ResponseWriter, r *http.Request, params generated.DeleteResourcesParams) {
	if h.resources == nil {
		generated.Unimplemented{}.DeleteResources(w, r, params)
		return
	}
	h.resources.DeleteResources(w, r, params)
}

// --- Clients ---

func (h *APIHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	if h.clients == nil {
		generated.Unimplemented{}.ListClients(w, r)
		return
	}
	h.clients.ListClients(w, r)
}

func (h *APIHandler) GetClient(w http.ResponseWriter, r *http.Request, clientId generated.ClientId) { //nolint:revive // имя из сгенерированного интерфейса oapi-codegen
	if h.clients == nil {
		generated.Unimplemented{}.GetClient(w, r, clientId)
		return
	}
	h.clients.GetClient(w, r, clientId)
}

func (h *APIHandler) GetClientBehind(w http.ResponseWriter, r *http.Request, clientId generated.ClientId) { //nolint:revive // имя из сгенерированного интерфейса oapi-codegen
	if h.clients == nil {
		generated.Unimplemented{}.GetClientBehind(w, r, clientId)
		return
	}
	h.clients.GetClientBehind(w, r, clientId)
}

func (h *APIHandler) DeleteClient(w http.ResponseWriter, r *http.Request, clientId generated.ClientId) { //nolint:revive // имя из сгенерированного интерфейса oapi-codegen
	if h.clients == nil {
		generated.Unimplemented{}.DeleteClient(w, r, clientId)
		return
	}
	h.clients.DeleteClient(w, r, clientId)
}

// --- Maintenance ---

func (h *APIHandler) RunPurge(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		generated.Unimplemented{}.RunPurge(w, r)
		return
	}
	h.maintenance.RunPurge(w, r)
}

func (h *APIHandler) RunReconcile(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		generated.Unimplemented{}.RunReconcile(w, r)
		return
	}
	h.maintenance.RunReconcile(w, r)
}

// Проверка на этапе компиляции
var _ generated.ServerInterface = (*APIHandler)(nil)
