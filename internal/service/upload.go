// Пакет service — бизнес-логика Data Storage.
// upload.go — сервис публикации ресурсов.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	apierrors "github.com/bigkaa/goartstore/data-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
)

// Поля метаданных, заполняемые сервисом публикации.
const (
	FieldContentType = "content_type"
	FieldUploadedBy  = "uploaded_by"
)

// UploadParams — параметры публикации ресурса.
type UploadParams struct {
	// Keys — значения ключевых полей ресурса (по набору ключей репозитория)
	Keys []string
	// Reader — поток payload
	Reader io.Reader
	// Size — заявленный размер payload (Content-Length), -1 если неизвестен
	Size int64
	// ContentType — MIME-тип payload (опционально)
	ContentType string
	// MetadataJSON — дополнительные поля метаданных, JSON-объект (опционально)
	MetadataJSON string
	// UploadedBy — идентификатор пользователя (sub из JWT)
	UploadedBy string
}

// UploadError — ошибка публикации с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис публикации ресурсов.
type UploadService struct {
	repo           *repository.Repository
	writeMu        *sync.Mutex
	maxPayloadSize int64
	logger         *slog.Logger
}

// NewUploadService создаёт сервис публикации.
// maxPayloadSize <= 0 — без ограничения размера.
func NewUploadService(
	repo *repository.Repository,
	writeMu *sync.Mutex,
	maxPayloadSize int64,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		repo:           repo,
		writeMu:        writeMu,
		maxPayloadSize: maxPayloadSize,
		logger:         logger.With(slog.String("component", "upload_service")),
	}
}

// Upload публикует payload и возвращает сохранённые метаданные.
//
// Поток:
//  1. Проверка ключей и размера
//  2. Разбор дополнительных метаданных
//  3. Чтение payload с ограничением размера
//  4. Repository.Push под общим мьютексом изменений
//
// Ошибки проверки — *UploadError, ошибки репозитория возвращаются как есть.
func (s *UploadService) Upload(params UploadParams) (model.Metadata, error) {
	ks := s.repo.KeySet()

	// 1. Ключи и размер
	if err := ks.CheckKeys(params.Keys); err != nil {
		return nil, &UploadError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    err.Error(),
		}
	}
	if s.maxPayloadSize > 0 && params.Size > s.maxPayloadSize {
		return nil, s.tooLarge(params.Size)
	}

	// 2. Метаданные
	md, err := parseExtraMetadata(params.MetadataJSON)
	if err != nil {
		return nil, &UploadError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    err.Error(),
		}
	}
	for i, field := range ks {
		md[field] = params.Keys[i]
	}
	if params.ContentType != "" {
		md[FieldContentType] = params.ContentType
	}
	if params.UploadedBy != "" {
		md[FieldUploadedBy] = params.UploadedBy
	}

	// 3. Payload
	reader := params.Reader
	if s.maxPayloadSize > 0 {
		reader = io.LimitReader(reader, s.maxPayloadSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения payload: %w", err)
	}
	if s.maxPayloadSize > 0 && int64(len(data)) > s.maxPayloadSize {
		return nil, s.tooLarge(int64(len(data)))
	}

	// 4. Публикация
	s.writeMu.Lock()
	stored, err := s.repo.Push(data, md)
	s.writeMu.Unlock()
	if err != nil {
		s.logger.Warn("Публикация ресурса не удалась",
			slog.String("keys", model.KeyString(params.Keys)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("Ресурс опубликован",
		slog.String("keys", model.KeyString(params.Keys)),
		slog.String("resource_file", stored.ResourceFile()),
		slog.Int("size", len(data)),
	)
	return stored, nil
}

func (s *UploadService) tooLarge(size int64) *UploadError {
	return &UploadError{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       apierrors.CodeFileTooLarge,
		Message:    fmt.Sprintf("Размер payload %d байт превышает максимум %d байт", size, s.maxPayloadSize),
	}
}

// reservedFields — поля, которые вычисляет репозиторий.
var reservedFields = []string{model.FieldResourcePath, model.FieldPublishDate, model.FieldDeleted}

// parseExtraMetadata разбирает дополнительные поля метаданных.
// Даты в формате {"_type":"datetime",...} восстанавливаются.
// Вычисляемые поля запрещены; resource_file допустим (метка версии).
func parseExtraMetadata(raw string) (model.Metadata, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Metadata{}, nil
	}
	doc, err := model.UnmarshalDocument([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("некорректный JSON метаданных: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, errors.New("метаданные должны быть JSON-объектом")
	}
	for _, f := range reservedFields {
		if _, ok := obj[f]; ok {
			return nil, fmt.Errorf("поле %s вычисляется хранилищем и не может быть задано", f)
		}
	}
	if v, ok := obj[model.FieldResourceFile]; ok {
		if s, isStr := v.(string); !isStr || s == "" {
			return nil, fmt.Errorf("поле %s должно быть непустой строкой", model.FieldResourceFile)
		}
	}
	return model.Metadata(obj), nil
}
