package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/data-storage/internal/api/generated"
)

func TestAPIHandler_Unimplemented(t *testing.T) {
	r := chi.NewRouter()
	generated.HandlerWithOptions(NewAPIHandler(nil, nil, nil), generated.ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: ParamError,
	})

	tests := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/resources"},
		{http.MethodGet, "/resources/metadata?key=r1"},
		{http.MethodDelete, "/resources?key=r1"},
		{http.MethodGet, "/clients"},
		{http.MethodGet, "/clients/indexer/behind"},
		{http.MethodPost, "/maintenance/purge"},
		{http.MethodPost, "/maintenance/reconcile"},
	}
	for _, tt := range tests {
		rec := serve(r, tt.method, tt.target)
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("%s %s: ожидался статус 501, получен %d", tt.method, tt.target, rec.Code)
		}
	}
}

func TestAPIHandler_ParamErrors(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name   string
		method string
		target string
		header http.Header
	}{
		{name: "нет key у метаданных", method: http.MethodGet, target: "/resources/metadata"},
		{name: "пустой key у payload", method: http.MethodGet, target: "/resources/content?key="},
		{name: "offset не число", method: http.MethodGet, target: "/resources?offset=abc"},
		{
			name:   "повторный заголовок метаданных",
			method: http.MethodPut,
			target: "/resources?key=roads&key=r1",
			header: http.Header{MetadataHeader: {`{"a": 1}`, `{"b": 2}`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.target, nil, tt.header)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Ожидался статус 400, получен %d: %s", rec.Code, rec.Body.String())
			}
			body := decodeBody[map[string]map[string]string](t, rec)
			if body["error"]["code"] != "VALIDATION_ERROR" {
				t.Errorf("Ожидался код VALIDATION_ERROR: %v", body)
			}
		})
	}
}
