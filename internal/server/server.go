// Пакет server — HTTP-сервер Data Storage с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/data-storage/internal/api/generated"
	"github.com/bigkaa/goartstore/data-storage/internal/api/handlers"
	"github.com/bigkaa/goartstore/data-storage/internal/api/middleware"
	"github.com/bigkaa/goartstore/data-storage/internal/config"
)

// Handlers — обработчики endpoints, собранные в main.
type Handlers struct {
	Health *handlers.HealthHandler
	System *handlers.SystemHandler
	// API — реализация generated.ServerInterface (handlers.APIHandler)
	API generated.ServerInterface
}

// RouterOptions — middleware маршрутизатора.
type RouterOptions struct {
	// Auth — JWT аутентификация /api/v1 (nil — без аутентификации)
	Auth func(http.Handler) http.Handler
	// LeaderProxy — проксирование записи к leader (nil — standalone)
	LeaderProxy func(http.Handler) http.Handler
	Logger      *slog.Logger
}

// NewRouter создаёт chi-маршрутизатор.
// /health/*, /metrics, /api/v1/info и /api/v1/openapi.json публичны;
// запись требует scope files:write из описания API.
func NewRouter(h Handlers, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	router.Get("/api/v1/info", h.System.GetStorageInfo)
	router.Get("/api/v1/openapi.json", h.System.GetOpenAPISpec)

	// Остальные маршруты /api/v1 через HandlerWithOptions (oapi-codegen chi-server).
	router.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		if opts.LeaderProxy != nil {
			r.Use(opts.LeaderProxy)
		}

		var mws []generated.MiddlewareFunc
		if opts.Auth != nil {
			mws = append(mws, requireDeclaredScopes)
		}
		generated.HandlerWithOptions(h.API, generated.ChiServerOptions{
			BaseRouter:       r,
			Middlewares:      mws,
			ErrorHandlerFunc: handlers.ParamError,
		})
	})

	return router
}

// requireDeclaredScopes проверяет scopes, объявленные операции
// в описании API (generated.BearerAuthScopes).
func requireDeclaredScopes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopes, _ := r.Context().Value(generated.BearerAuthScopes).([]string)
		h := next
		for _, scope := range scopes {
			h = middleware.RequireScope(scope)(h)
		}
		h.ServeHTTP(w, r)
	})
}

// Server — HTTP-сервер Data Storage.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер поверх готового маршрутизатора.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Настройка TLS
	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown с DS_SHUTDOWN_TIMEOUT.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSEnabled()),
		)

		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
