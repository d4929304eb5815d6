package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/repository"
)

// allEnvKeys — все переменные окружения, читаемые Load.
var allEnvKeys = []string{
	"DS_PORT", "DS_INSTANCE_ID", "DS_STORAGE_ROOT", "DS_RESOURCE_NAME", "DS_RESOURCE_BASE_PATH",
	"DS_REPOSITORY_KIND", "DS_ARCHIVE", "DS_LOGICAL_DELETE", "DS_METANAME",
	"DS_INDEX_METANAME", "DS_SHARD_FUNC", "DS_RESHARD_FUNC",
	"DS_CACHE_SIZE", "DS_CACHE_TTL", "DS_TIME_ZONE", "DS_JOURNAL_ENABLED", "DS_MAX_PAYLOAD_SIZE",
	"DS_GC_INTERVAL", "DS_RECONCILE_INTERVAL", "DS_REPLICA_MODE", "DS_LOCK_TTL",
	"DS_JWKS_URL", "DS_JWKS_CA_CERT", "DS_JWKS_CLIENT_TIMEOUT", "DS_JWKS_REFRESH_INTERVAL", "DS_JWT_LEEWAY",
	"DS_JWT_ISSUER", "DS_JWT_AUDIENCE",
	"DS_TLS_CERT", "DS_TLS_KEY", "DS_TLS_SKIP_VERIFY",
	"DS_LOG_LEVEL", "DS_LOG_FORMAT",
	"DS_DEPHEALTH_CHECK_INTERVAL", "DS_DEPHEALTH_GROUP", "DS_DEPHEALTH_DEP_NAME", "DEPHEALTH_NAME",
	"DS_HTTP_READ_TIMEOUT", "DS_HTTP_WRITE_TIMEOUT", "DS_SHUTDOWN_TIMEOUT",
}

// setEnv очищает все DS_* переменные и устанавливает vars.
// Исходные значения восстанавливаются t.Setenv после теста.
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range allEnvKeys {
		t.Setenv(k, "")
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

// requiredEnvVars возвращает минимальный набор обязательных переменных.
func requiredEnvVars() map[string]string {
	return map[string]string{
		"DS_STORAGE_ROOT":  "/var/lib/data-storage",
		"DS_RESOURCE_NAME": "wms",
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setEnv(t, requiredEnvVars())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 8020 {
		t.Errorf("Port: ожидалось 8020, получено %d", cfg.Port)
	}
	host, _ := os.Hostname()
	if host != "" && cfg.InstanceID != host+":8020" {
		t.Errorf("InstanceID: ожидалось %q, получено %q", host+":8020", cfg.InstanceID)
	}
	if cfg.RepositoryKind != repository.KindResource {
		t.Errorf("RepositoryKind: ожидалось ResourceRepository, получено %q", cfg.RepositoryKind)
	}
	if cfg.Archive || cfg.LogicalDelete {
		t.Errorf("Archive/LogicalDelete: ожидалось false, получено %v/%v", cfg.Archive, cfg.LogicalDelete)
	}
	if cfg.CacheSize != 0 || cfg.CacheTTL != time.Minute {
		t.Errorf("Cache: ожидалось 0 и 1m, получено %d и %v", cfg.CacheSize, cfg.CacheTTL)
	}
	if cfg.TimeZone != nil {
		t.Errorf("TimeZone: ожидалось nil, получено %v", cfg.TimeZone)
	}
	if !cfg.JournalEnabled {
		t.Error("JournalEnabled: ожидалось true")
	}
	if cfg.MaxPayloadSize != 1073741824 {
		t.Errorf("MaxPayloadSize: ожидалось 1073741824, получено %d", cfg.MaxPayloadSize)
	}
	if cfg.GCInterval != time.Hour {
		t.Errorf("GCInterval: ожидалось 1h, получено %v", cfg.GCInterval)
	}
	if cfg.ReconcileInterval != 6*time.Hour {
		t.Errorf("ReconcileInterval: ожидалось 6h, получено %v", cfg.ReconcileInterval)
	}
	if cfg.ReplicaMode != ReplicaModeStandalone {
		t.Errorf("ReplicaMode: ожидалось 'standalone', получено %q", cfg.ReplicaMode)
	}
	if cfg.LockTTL != 30*time.Second {
		t.Errorf("LockTTL: ожидалось 30s, получено %v", cfg.LockTTL)
	}
	if cfg.AuthEnabled() {
		t.Error("AuthEnabled: без DS_JWKS_URL ожидалось false")
	}
	if cfg.TLSEnabled() {
		t.Error("TLSEnabled: ожидалось false")
	}
	if cfg.JWTLeeway != 5*time.Second {
		t.Errorf("JWTLeeway: ожидалось 5s, получено %v", cfg.JWTLeeway)
	}
	if cfg.JWKSClientTimeout != 30*time.Second || cfg.JWKSRefreshInterval != 15*time.Second {
		t.Errorf("JWKS: ожидалось 30s и 15s, получено %v и %v", cfg.JWKSClientTimeout, cfg.JWKSRefreshInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: ожидалось INFO, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: ожидалось 'json', получено %q", cfg.LogFormat)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval: ожидалось 15s, получено %v", cfg.DephealthCheckInterval)
	}
	if cfg.DephealthGroup != "data-storage" || cfg.DephealthDepName != "auth-jwks" {
		t.Errorf("Dephealth: получено %q/%q", cfg.DephealthGroup, cfg.DephealthDepName)
	}
	if cfg.HTTPReadTimeout != 30*time.Second || cfg.HTTPWriteTimeout != 60*time.Second {
		t.Errorf("HTTP таймауты: получено %v/%v", cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 5s, получено %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_AllCustomValues(t *testing.T) {
	setEnv(t, map[string]string{
		"DS_PORT":                     "9000",
		"DS_INSTANCE_ID":              "ds-0.ds:9000",
		"DS_STORAGE_ROOT":             "/data",
		"DS_RESOURCE_NAME":            "tiles",
		"DS_RESOURCE_BASE_PATH":       "gis/tiles",
		"DS_REPOSITORY_KIND":          "IndexedGroupResourceRepository",
		"DS_ARCHIVE":                  "true",
		"DS_LOGICAL_DELETE":           "1",
		"DS_METANAME":                 "meta",
		"DS_INDEX_METANAME":           "idx",
		"DS_SHARD_FUNC":               "prefix:2",
		"DS_RESHARD_FUNC":             "identity",
		"DS_CACHE_SIZE":               "512",
		"DS_CACHE_TTL":                "30s",
		"DS_TIME_ZONE":                "UTC",
		"DS_JOURNAL_ENABLED":          "false",
		"DS_MAX_PAYLOAD_SIZE":         "0",
		"DS_GC_INTERVAL":              "30m",
		"DS_RECONCILE_INTERVAL":       "12h",
		"DS_LOCK_TTL":                 "15s",
		"DS_JWKS_URL":                 "https://auth:8000/.well-known/jwks.json",
		"DS_JWKS_CA_CERT":             "/etc/ca.pem",
		"DS_JWT_LEEWAY":               "10s",
		"DS_JWT_ISSUER":               "https://auth/realms/artstore",
		"DS_JWT_AUDIENCE":             "data-storage",
		"DS_TLS_CERT":                 "/certs/tls.crt",
		"DS_TLS_KEY":                  "/certs/tls.key",
		"DS_TLS_SKIP_VERIFY":          "true",
		"DS_LOG_LEVEL":                "debug",
		"DS_LOG_FORMAT":               "text",
		"DS_DEPHEALTH_CHECK_INTERVAL": "30s",
		"DS_DEPHEALTH_GROUP":          "gis",
		"DS_DEPHEALTH_DEP_NAME":       "keycloak",
		"DEPHEALTH_NAME":              "data-storage-tiles",
		"DS_SHUTDOWN_TIMEOUT":         "20s",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 9000 || cfg.InstanceID != "ds-0.ds:9000" {
		t.Errorf("Port/InstanceID: получено %d/%q", cfg.Port, cfg.InstanceID)
	}
	if cfg.StorageRoot != "/data" || cfg.ResourceName != "tiles" || cfg.ResourceBasePath != "gis/tiles" {
		t.Errorf("хранилище: получено %q %q %q", cfg.StorageRoot, cfg.ResourceName, cfg.ResourceBasePath)
	}
	if cfg.RepositoryKind != repository.KindIndexedGroupResource {
		t.Errorf("RepositoryKind: получено %q", cfg.RepositoryKind)
	}
	if !cfg.Archive || !cfg.LogicalDelete {
		t.Errorf("Archive/LogicalDelete: ожидалось true, получено %v/%v", cfg.Archive, cfg.LogicalDelete)
	}
	if cfg.Metaname != "meta" || cfg.IndexMetaname != "idx" || cfg.ShardFunc != "prefix:2" || cfg.ReshardFunc != "identity" {
		t.Errorf("имена метаданных: получено %q %q %q %q", cfg.Metaname, cfg.IndexMetaname, cfg.ShardFunc, cfg.ReshardFunc)
	}
	if cfg.CacheSize != 512 || cfg.CacheTTL != 30*time.Second {
		t.Errorf("Cache: получено %d/%v", cfg.CacheSize, cfg.CacheTTL)
	}
	if cfg.TimeZone == nil || cfg.TimeZone.String() != "UTC" {
		t.Errorf("TimeZone: получено %v", cfg.TimeZone)
	}
	if cfg.JournalEnabled {
		t.Error("JournalEnabled: ожидалось false")
	}
	if cfg.MaxPayloadSize != 0 {
		t.Errorf("MaxPayloadSize: ожидалось 0, получено %d", cfg.MaxPayloadSize)
	}
	if cfg.GCInterval != 30*time.Minute || cfg.ReconcileInterval != 12*time.Hour || cfg.LockTTL != 15*time.Second {
		t.Errorf("интервалы: получено %v %v %v", cfg.GCInterval, cfg.ReconcileInterval, cfg.LockTTL)
	}
	if !cfg.AuthEnabled() || cfg.JWKSCACert != "/etc/ca.pem" || cfg.JWTLeeway != 10*time.Second {
		t.Errorf("auth: получено %q %q %v", cfg.JWKSUrl, cfg.JWKSCACert, cfg.JWTLeeway)
	}
	if cfg.JWTIssuer != "https://auth/realms/artstore" || cfg.JWTAudience != "data-storage" {
		t.Errorf("iss/aud: получено %q %q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if !cfg.TLSEnabled() || !cfg.TLSSkipVerify {
		t.Errorf("TLS: получено %v/%v", cfg.TLSEnabled(), cfg.TLSSkipVerify)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
		t.Errorf("логирование: получено %v/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.DephealthCheckInterval != 30*time.Second || cfg.DephealthGroup != "gis" ||
		cfg.DephealthDepName != "keycloak" || cfg.DephealthName != "data-storage-tiles" {
		t.Errorf("dephealth: получено %v %q %q %q", cfg.DephealthCheckInterval,
			cfg.DephealthGroup, cfg.DephealthDepName, cfg.DephealthName)
	}
	if cfg.ShutdownTimeout != 20*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 20s, получено %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequiredVars(t *testing.T) {
	for _, missing := range []string{"DS_STORAGE_ROOT", "DS_RESOURCE_NAME"} {
		t.Run(missing, func(t *testing.T) {
			vars := requiredEnvVars()
			delete(vars, missing)
			setEnv(t, vars)

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"порт ниже диапазона", map[string]string{"DS_PORT": "0"}},
		{"порт выше диапазона", map[string]string{"DS_PORT": "70000"}},
		{"порт не число", map[string]string{"DS_PORT": "abc"}},
		{"неизвестный вариант", map[string]string{"DS_REPOSITORY_KIND": "S3Repository"}},
		{"шардированный без функции", map[string]string{"DS_REPOSITORY_KIND": "IndexedResourceRepository"}},
		{"некорректный bool", map[string]string{"DS_ARCHIVE": "yes please"}},
		{"отрицательный кэш", map[string]string{"DS_CACHE_SIZE": "-1"}},
		{"неизвестная зона", map[string]string{"DS_TIME_ZONE": "Mars/Olympus"}},
		{"отрицательный лимит payload", map[string]string{"DS_MAX_PAYLOAD_SIZE": "-5"}},
		{"некорректная длительность", map[string]string{"DS_GC_INTERVAL": "soon"}},
		{"нулевой интервал сверки", map[string]string{"DS_RECONCILE_INTERVAL": "0s"}},
		{"нулевой TTL блокировки", map[string]string{"DS_LOCK_TTL": "0s"}},
		{"неизвестный режим", map[string]string{"DS_REPLICA_MODE": "cluster"}},
		{"перешардирование в replicated", map[string]string{"DS_REPLICA_MODE": "replicated", "DS_RESHARD_FUNC": "identity"}},
		{"сертификат без ключа", map[string]string{"DS_TLS_CERT": "/certs/tls.crt"}},
		{"уровень логирования", map[string]string{"DS_LOG_LEVEL": "trace"}},
		{"формат логов", map[string]string{"DS_LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := requiredEnvVars()
			for k, v := range tt.vars {
				vars[k] = v
			}
			setEnv(t, vars)

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %v", tt.vars)
			}
		})
	}
}

func TestLoad_ValidLogLevels(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			vars := requiredEnvVars()
			vars["DS_LOG_LEVEL"] = tt.input
			setEnv(t, vars)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if cfg.LogLevel != tt.want {
				t.Errorf("LogLevel: ожидалось %v, получено %v", tt.want, cfg.LogLevel)
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"json", "json"},
		{"text", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel:  slog.LevelInfo,
				LogFormat: tt.format,
			}
			logger := SetupLogger(cfg)
			if logger == nil {
				t.Fatal("SetupLogger вернул nil")
			}
		})
	}
}
