// Пакет errors — конструкторы стандартных ошибок HTTP API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// Коды ошибок API.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeInvalidResource     = "INVALID_RESOURCE"
	CodeNotSupported        = "NOT_SUPPORTED"
	CodeLocked              = "LOCKED"
	CodeConsumeFailed       = "CONSUME_FAILED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeReconcileInProgress = "RECONCILE_IN_PROGRESS"
	CodeInternalError       = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// FromDomain записывает ответ для ошибки репозитория.
// Ошибки вне таксономии model — 500.
func FromDomain(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, model.ErrResourceNotFound):
		NotFound(w, err.Error())
	case stderrors.Is(err, model.ErrResourceAlreadyExist):
		WriteError(w, http.StatusConflict, CodeAlreadyExists, err.Error())
	case stderrors.Is(err, model.ErrInvalidResource):
		WriteError(w, http.StatusUnprocessableEntity, CodeInvalidResource, err.Error())
	case stderrors.Is(err, model.ErrOperationNotSupport):
		WriteError(w, http.StatusNotImplemented, CodeNotSupported, err.Error())
	case stderrors.Is(err, model.ErrAlreadyLocked), stderrors.Is(err, model.ErrInvalidLockStatus):
		WriteError(w, http.StatusLocked, CodeLocked, err.Error())
	case stderrors.Is(err, model.ErrResourceConsumeFailed), stderrors.Is(err, model.ErrInvalidConsumeStatus):
		WriteError(w, http.StatusConflict, CodeConsumeFailed, err.Error())
	default:
		InternalError(w, err.Error())
	}
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// FileTooLarge — 413 payload превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
