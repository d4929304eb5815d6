// dephealth.go — мониторинг внешних зависимостей через topologymetrics SDK.
//
// Зависимость одна: JWKS endpoint издателя токенов (HTTP GET, critical).
// Мониторинг включается вместе с аутентификацией (DS_JWKS_URL).
//
// Метрики SDK (app_dependency_health, app_dependency_latency_seconds,
// app_dependency_status, app_dependency_status_detail) отдаются на /metrics.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// Name — вершина графа текущего приложения (DEPHEALTH_NAME или владелец пода)
	Name string
	// Group — группа в метриках (DS_DEPHEALTH_GROUP)
	Group string
	// DepName — имя зависимости (DS_DEPHEALTH_DEP_NAME)
	DepName string
	// JWKSURL — проверяемый URL (DS_JWKS_URL)
	JWKSURL       string
	CheckInterval time.Duration
	TLSSkipVerify bool
	// Registerer — registry для метрик; nil — глобальный Prometheus registry
	Registerer prometheus.Registerer
}

// DephealthService — периодическая проверка зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга. Проверки начинаются после Start.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("ошибка создания dephealth: не задан URL зависимости %s", cfg.DepName)
	}

	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.JWKSURL),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	if cfg.TLSSkipVerify {
		depOpts = append(depOpts, dephealth.WithHTTPTLSSkipVerify(true))
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP(cfg.DepName, depOpts...),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.Name, cfg.Group, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания dephealth: %w", err)
	}

	logger = logger.With(
		slog.String("component", "dephealth"),
		slog.String("dependency", cfg.DepName),
	)
	return &DephealthService{dh: dh, logger: logger}, nil
}

// Start запускает проверки в фоне.
func (ds *DephealthService) Start(ctx context.Context) error {
	if err := ds.dh.Start(ctx); err != nil {
		return fmt.Errorf("ошибка запуска dephealth: %w", err)
	}
	ds.logger.Info("Мониторинг зависимостей запущен")
	return nil
}

// Stop останавливает проверки.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает результат последней проверки.
// Ключ — "зависимость:host:port", значение — true, если зависимость доступна.
// До первой проверки карта пуста.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
