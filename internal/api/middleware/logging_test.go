package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// statusHandler возвращает обработчик, отвечающий указанным статусом.
func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte("body"))
	})
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		code      int
		wantLevel string
	}{
		{name: "успешный запрос", path: "/api/v1/resources", code: http.StatusOK, wantLevel: "INFO"},
		{name: "ошибка клиента", path: "/api/v1/resources", code: http.StatusNotFound, wantLevel: "WARN"},
		{name: "ошибка сервера", path: "/api/v1/resources", code: http.StatusInternalServerError, wantLevel: "ERROR"},
		{name: "health-проба", path: "/health/live", code: http.StatusOK, wantLevel: "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			handler := RequestLogger(logger)(statusHandler(tt.code))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("Ошибка разбора записи лога %q: %v", buf.String(), err)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("Ожидался уровень %s, получен %v", tt.wantLevel, entry["level"])
			}
			if entry["component"] != "http" || entry["path"] != tt.path {
				t.Errorf("Неожиданные атрибуты: %v", entry)
			}
			if entry["status"] != float64(tt.code) || entry["bytes"] != float64(4) {
				t.Errorf("status=%v bytes=%v", entry["status"], entry["bytes"])
			}
		})
	}
}

func TestRequestLogger_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})))
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/resources?key=r1", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Ошибка разбора записи лога %q: %v", buf.String(), err)
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("Ожидался request_id=req-42, получен %v", entry["request_id"])
	}
	// обработчик ничего не записал — статус 200
	if entry["status"] != float64(http.StatusOK) || entry["bytes"] != float64(0) {
		t.Errorf("status=%v bytes=%v", entry["status"], entry["bytes"])
	}
}

func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Get("/test/clients/{client_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/test/clients/{client_id}", "200"))
	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test/clients/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/test/clients/{client_id}", "200"))

	if after-before != 3 {
		t.Errorf("Ожидалось 3 запроса по шаблону маршрута, получено %v", after-before)
	}
}

func TestMetricsMiddleware_Unmatched(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Get("/known", func(w http.ResponseWriter, _ *http.Request) {})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/unknown/path", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404"))

	if after-before != 1 {
		t.Errorf("Ожидался 1 запрос с лейблом %s, получено %v", unmatchedRoute, after-before)
	}
}
