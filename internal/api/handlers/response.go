// response.go — общие функции формирования ответов и разбора параметров.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/data-storage/internal/api/errors"
	"github.com/bigkaa/goartstore/data-storage/internal/api/generated"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// writeJSON записывает JSON-ответ.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// encodeMetadata переводит метаданные в вид для JSON-ответа:
// даты кодируются помеченными объектами, как в X-Resource-Metadata.
func encodeMetadata(md model.Metadata) any {
	if md == nil {
		return nil
	}
	return model.EncodeValue(md)
}

func encodeMetadataList(mds []model.Metadata) []any {
	out := make([]any, 0, len(mds))
	for _, md := range mds {
		out = append(out, encodeMetadata(md))
	}
	return out
}

// statusFilter разбирает фильтр статуса; отсутствие — normal.
func statusFilter(s *generated.Status) (model.StatusFilter, error) {
	if s == nil {
		return model.ParseStatusFilter("")
	}
	return model.ParseStatusFilter(string(*s))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// ParamError — обработчик ошибок привязки параметров сгенерированного
// маршрутизатора: 400 VALIDATION_ERROR в формате API.
func ParamError(w http.ResponseWriter, _ *http.Request, err error) {
	apierrors.ValidationError(w, err.Error())
}
