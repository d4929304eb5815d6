// resources.go — HTTP handlers ресурсов репозитория.
// List, Get metadata, Download, Upload, Delete.
// Ключи ресурса передаются повторяющимся query-параметром key
// в порядке набора ключей репозитория.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/data-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/data-storage/internal/api/generated"
	"github.com/bigkaa/goartstore/data-storage/internal/api/middleware"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
	"github.com/bigkaa/goartstore/data-storage/internal/service"
)

// MetadataHeader — заголовок с дополнительными полями метаданных (JSON-объект).
const MetadataHeader = "X-Resource-Metadata"

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ResourceItem — элемент списка ресурсов.
type ResourceItem struct {
	Keys      []string `json:"keys"`
	Deleted   bool     `json:"deleted"`
	Metadata  any      `json:"metadata"`
	Histories []any    `json:"histories,omitempty"`
}

// ResourceListResponse — ответ GET /api/v1/resources.
type ResourceListResponse struct {
	Items   []ResourceItem `json:"items"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"has_more"`
}

// DeleteResponse — ответ DELETE /api/v1/resources.
type DeleteResponse struct {
	Count   int   `json:"count"`
	Deleted []any `json:"deleted"`
}

// ResourcesHandler — обработчик endpoints ресурсов.
type ResourcesHandler struct {
	repo        *repository.Repository
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
	deleteSvc   *service.DeleteService
	logger      *slog.Logger
}

// NewResourcesHandler создаёт обработчик endpoints ресурсов.
func NewResourcesHandler(
	repo *repository.Repository,
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
	deleteSvc *service.DeleteService,
	logger *slog.Logger,
) *ResourcesHandler {
	return &ResourcesHandler{
		repo:        repo,
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
		deleteSvc:   deleteSvc,
		logger:      logger.With(slog.String("component", "resources_handler")),
	}
}

// ListResources обрабатывает GET /api/v1/resources.
// Параметры: key (префикс ключей), status (normal|deleted|all), limit, offset.
func (h *ResourcesHandler) ListResources(w http.ResponseWriter, _ *http.Request, params generated.ListResourcesParams) {
	limit := defaultListLimit
	offset := 0

	if params.Limit != nil {
		limit = *params.Limit
		if limit <= 0 || limit > maxListLimit {
			apierrors.ValidationError(w, fmt.Sprintf("Параметр limit должен быть от 1 до %d", maxListLimit))
			return
		}
	}

	if params.Offset != nil {
		offset = *params.Offset
		if offset < 0 {
			apierrors.ValidationError(w, "Параметр offset не может быть отрицательным")
			return
		}
	}

	status, err := statusFilter(params.Status)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var keys []string
	if params.Key != nil {
		keys = *params.Key
	}
	seq, err := h.repo.Resources(keys, status)
	if err != nil {
		apierrors.FromDomain(w, err)
		return
	}

	resp := ResourceListResponse{Items: []ResourceItem{}, Limit: limit, Offset: offset}
	for rec := range seq {
		if resp.Total >= offset && len(resp.Items) < limit {
			resp.Items = append(resp.Items, toResourceItem(rec))
		}
		resp.Total++
	}
	resp.HasMore = offset+limit < resp.Total

	writeJSON(w, http.StatusOK, resp)
}

// GetResourceMetadata обрабатывает GET /api/v1/resources/metadata.
// Параметры: key (полный набор), version (resource_file или current), status.
func (h *ResourcesHandler) GetResourceMetadata(w http.ResponseWriter, _ *http.Request, params generated.GetResourceMetadataParams) {
	status, err := statusFilter(params.Status)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	md, err := h.repo.Metadata(params.Key, deref(params.Version), status)
	if err != nil {
		apierrors.FromDomain(w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeMetadata(md))
}

// DownloadResource обрабатывает GET /api/v1/resources/content.
// Поддерживает Range requests (206) и ETag (If-None-Match → 304).
func (h *ResourcesHandler) DownloadResource(w http.ResponseWriter, r *http.Request, params generated.DownloadResourceParams) {
	if err := h.downloadSvc.Serve(w, r, params.Key, deref(params.Version)); err != nil {
		apierrors.FromDomain(w, err)
	}
}

// UploadResource обрабатывает PUT /api/v1/resources.
// Тело запроса — payload, дополнительные метаданные — в заголовке X-Resource-Metadata.
func (h *ResourcesHandler) UploadResource(w http.ResponseWriter, r *http.Request, params generated.UploadResourceParams) {
	md, err := h.uploadSvc.Upload(service.UploadParams{
		Keys:         params.Key,
		Reader:       r.Body,
		Size:         r.ContentLength,
		ContentType:  r.Header.Get("Content-Type"),
		MetadataJSON: deref(params.XResourceMetadata),
		UploadedBy:   middleware.SubjectFromContext(r.Context()),
	})
	if err != nil {
		var ue *service.UploadError
		if errors.As(err, &ue) {
			apierrors.WriteError(w, ue.StatusCode, ue.Code, ue.Message)
			return
		}
		apierrors.FromDomain(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeMetadata(md))
}

// DeleteResources обрабатывает DELETE /api/v1/resources.
// Неполный набор ключей удаляет все ресурсы под префиксом.
// permanent=true удаляет физически даже при логическом удалении.
func (h *ResourcesHandler) DeleteResources(w http.ResponseWriter, _ *http.Request, params generated.DeleteResourcesParams) {
	var keys []string
	if params.Key != nil {
		keys = *params.Key
	}
	permanent := params.Permanent != nil && *params.Permanent

	deleted, err := h.deleteSvc.Delete(keys, permanent)
	if err != nil {
		apierrors.FromDomain(w, err)
		return
	}
	if len(deleted) == 0 && len(keys) == len(h.repo.KeySet()) {
		apierrors.NotFound(w, fmt.Sprintf("Ресурс %s не найден", model.KeyString(keys)))
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{
		Count:   len(deleted),
		Deleted: encodeMetadataList(deleted),
	})
}

func toResourceItem(rec *model.Record) ResourceItem {
	item := ResourceItem{
		Keys:     rec.Keys,
		Deleted:  rec.Deleted,
		Metadata: encodeMetadata(rec.Current),
	}
	if len(rec.Histories) > 0 {
		item.Histories = encodeMetadataList(rec.Histories)
	}
	return item
}
