// download.go — сервис отдачи payload.
package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"path"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
)

// DownloadService — сервис отдачи payload версии ресурса.
type DownloadService struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewDownloadService создаёт сервис отдачи payload.
func NewDownloadService(repo *repository.Repository, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		repo:   repo,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Serve отдаёт payload клиенту через http.ServeContent.
// Поддерживает Range requests (206 Partial Content), ETag (If-None-Match)
// и If-Modified-Since по publish_date.
// Параметры:
//   - w, r: HTTP writer и request
//   - keys: значения ключевых полей ресурса
//   - version: "" или "current" — текущая версия, иначе resource_file
//
// Ошибки репозитория возвращаются до записи ответа.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, keys []string, version string) error {
	md, data, err := s.repo.Content(keys, version)
	if err != nil {
		return err
	}

	name := path.Base(md.ResourceFile())
	sum := sha256.Sum256(data)

	if ct := md.String(FieldContentType); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("ETag", fmt.Sprintf("%q", hex.EncodeToString(sum[:])))
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, name, md.PublishDate(), bytes.NewReader(data))

	s.logger.Debug("Payload отдан",
		slog.String("keys", model.KeyString(keys)),
		slog.String("resource_file", md.ResourceFile()),
		slog.Int("size", len(data)),
	)
	return nil
}
