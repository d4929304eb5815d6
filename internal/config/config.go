// Пакет config — загрузка и валидация конфигурации Data Storage
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/repository"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Режимы развёртывания.
const (
	ReplicaModeStandalone = "standalone"
	ReplicaModeReplicated = "replicated"
)

// Config содержит все параметры конфигурации Data Storage.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Идентификатор экземпляра: адрес host:port, по которому follower проксирует запись
	InstanceID string
	// Корневой каталог файлового хранилища
	StorageRoot string
	// Имя ресурса (репозитория)
	ResourceName string
	// Корень репозитория в хранилище (по умолчанию — имя ресурса)
	ResourceBasePath string

	// Параметры создания репозитория. Используются только при отсутствии
	// meta_metadata.json, иначе вариант читается из хранилища.
	RepositoryKind repository.Kind
	Archive        bool
	LogicalDelete  bool
	Metaname       string
	IndexMetaname  string
	ShardFunc      string
	// Функция шардирования, в которую перешардировать репозиторий при старте
	ReshardFunc string

	// Размер LRU-кэша документов метаданных (0 — без кэша)
	CacheSize int
	// Время жизни записи кэша
	CacheTTL time.Duration
	// Опорная часовая зона дат метаданных
	TimeZone *time.Location
	// Журнал публикаций (откат незавершённых записей payload при рестарте)
	JournalEnabled bool
	// Максимальный размер payload в байтах (0 — без ограничения)
	MaxPayloadSize int64

	// Интервал запуска GC
	GCInterval time.Duration
	// Интервал автоматической сверки
	ReconcileInterval time.Duration

	// Режим развёртывания: standalone или replicated
	ReplicaMode string
	// Время жизни блокировки leader без продления
	LockTTL time.Duration

	// URL JWKS endpoint (пусто — аутентификация отключена)
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Ожидаемые iss и aud токена (пусто — не проверяются)
	JWTIssuer   string
	JWTAudience string
	// Путь к TLS сертификату
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Пропуск проверки TLS-сертификатов при обращении к JWKS и leader
	TLSSkipVerify bool

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (DS_DEPHEALTH_GROUP)
	DephealthGroup string
	// Имя зависимости (целевого сервиса) в метриках topologymetrics (DS_DEPHEALTH_DEP_NAME)
	DephealthDepName string
	// Имя владельца пода для метки name в topologymetrics (DEPHEALTH_NAME)
	DephealthName string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	// Таймаут graceful shutdown HTTP-сервера.
	// Должен быть меньше K8s terminationGracePeriodSeconds,
	// чтобы election.Stop() успел освободить блокировку leader.
	ShutdownTimeout time.Duration
}

// TLSEnabled сообщает, заданы ли сертификат и ключ TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// AuthEnabled сообщает, включена ли JWT аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWKSUrl != ""
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// DS_PORT — порт HTTP-сервера (по умолчанию 8020)
	port, err := getEnvInt("DS_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("DS_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("DS_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// DS_STORAGE_ROOT — обязательный
	cfg.StorageRoot, err = getEnvRequired("DS_STORAGE_ROOT")
	if err != nil {
		return nil, err
	}

	// DS_RESOURCE_NAME — обязательный
	cfg.ResourceName, err = getEnvRequired("DS_RESOURCE_NAME")
	if err != nil {
		return nil, err
	}
	cfg.ResourceBasePath = getEnvDefault("DS_RESOURCE_BASE_PATH", "")

	// DS_REPOSITORY_KIND — вариант нового репозитория (по умолчанию ResourceRepository)
	cfg.RepositoryKind, err = repository.ParseKind(getEnvDefault("DS_REPOSITORY_KIND", string(repository.KindResource)))
	if err != nil {
		return nil, fmt.Errorf("DS_REPOSITORY_KIND: %w", err)
	}
	if cfg.Archive, err = getEnvBool("DS_ARCHIVE", false); err != nil {
		return nil, fmt.Errorf("DS_ARCHIVE: %w", err)
	}
	if cfg.LogicalDelete, err = getEnvBool("DS_LOGICAL_DELETE", false); err != nil {
		return nil, fmt.Errorf("DS_LOGICAL_DELETE: %w", err)
	}
	cfg.Metaname = getEnvDefault("DS_METANAME", "")
	cfg.IndexMetaname = getEnvDefault("DS_INDEX_METANAME", "")
	cfg.ShardFunc = getEnvDefault("DS_SHARD_FUNC", "")
	if cfg.RepositoryKind.Indexed() && cfg.ShardFunc == "" {
		return nil, fmt.Errorf("DS_SHARD_FUNC: обязателен для варианта %s", cfg.RepositoryKind)
	}
	cfg.ReshardFunc = getEnvDefault("DS_RESHARD_FUNC", "")

	// DS_CACHE_SIZE — размер кэша документов (по умолчанию 0 — без кэша)
	cfg.CacheSize, err = getEnvInt("DS_CACHE_SIZE", 0)
	if err != nil {
		return nil, fmt.Errorf("DS_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("DS_CACHE_SIZE: значение не может быть отрицательным")
	}
	cfg.CacheTTL, err = getEnvDuration("DS_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_CACHE_TTL: %w", err)
	}

	// DS_TIME_ZONE — IANA-имя зоны; по умолчанию зона сохраняется прежней (+08:00)
	if tz := getEnvDefault("DS_TIME_ZONE", ""); tz != "" {
		cfg.TimeZone, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("DS_TIME_ZONE: неизвестная зона %q: %w", tz, err)
		}
	}

	if cfg.JournalEnabled, err = getEnvBool("DS_JOURNAL_ENABLED", true); err != nil {
		return nil, fmt.Errorf("DS_JOURNAL_ENABLED: %w", err)
	}

	// DS_MAX_PAYLOAD_SIZE — максимальный размер payload (по умолчанию 1 GB)
	cfg.MaxPayloadSize, err = getEnvInt64("DS_MAX_PAYLOAD_SIZE", 1073741824)
	if err != nil {
		return nil, fmt.Errorf("DS_MAX_PAYLOAD_SIZE: %w", err)
	}
	if cfg.MaxPayloadSize < 0 {
		return nil, fmt.Errorf("DS_MAX_PAYLOAD_SIZE: значение не может быть отрицательным")
	}

	// DS_GC_INTERVAL — интервал GC (по умолчанию 1h)
	cfg.GCInterval, err = getEnvPositiveDuration("DS_GC_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	// DS_RECONCILE_INTERVAL — интервал сверки (по умолчанию 6h)
	cfg.ReconcileInterval, err = getEnvPositiveDuration("DS_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	// DS_REPLICA_MODE — режим развёртывания (по умолчанию standalone)
	cfg.ReplicaMode = getEnvDefault("DS_REPLICA_MODE", ReplicaModeStandalone)
	if cfg.ReplicaMode != ReplicaModeStandalone && cfg.ReplicaMode != ReplicaModeReplicated {
		return nil, fmt.Errorf("DS_REPLICA_MODE: недопустимое значение %q, допустимые: standalone, replicated", cfg.ReplicaMode)
	}
	if cfg.ReshardFunc != "" && cfg.ReplicaMode != ReplicaModeStandalone {
		return nil, fmt.Errorf("DS_RESHARD_FUNC: перешардирование допускается только в режиме standalone")
	}

	// DS_LOCK_TTL — время жизни блокировки leader (по умолчанию 30s)
	cfg.LockTTL, err = getEnvPositiveDuration("DS_LOCK_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	// DS_INSTANCE_ID — адрес экземпляра (по умолчанию hostname:port)
	cfg.InstanceID = getEnvDefault("DS_INSTANCE_ID", "")
	if cfg.InstanceID == "" {
		host, hostErr := os.Hostname()
		if hostErr != nil {
			host = "localhost"
		}
		cfg.InstanceID = fmt.Sprintf("%s:%d", host, cfg.Port)
	}

	// DS_JWKS_URL — опционально, включает аутентификацию
	cfg.JWKSUrl = getEnvDefault("DS_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("DS_JWKS_CA_CERT", "")
	cfg.JWKSClientTimeout, err = getEnvDuration("DS_JWKS_CLIENT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("DS_JWKS_REFRESH_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("DS_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_JWT_LEEWAY: %w", err)
	}
	cfg.JWTIssuer = getEnvDefault("DS_JWT_ISSUER", "")
	cfg.JWTAudience = getEnvDefault("DS_JWT_AUDIENCE", "")

	// DS_TLS_CERT и DS_TLS_KEY задаются вместе
	cfg.TLSCert = getEnvDefault("DS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("DS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("DS_TLS_CERT и DS_TLS_KEY должны задаваться вместе")
	}
	if cfg.TLSSkipVerify, err = getEnvBool("DS_TLS_SKIP_VERIFY", false); err != nil {
		return nil, fmt.Errorf("DS_TLS_SKIP_VERIFY: %w", err)
	}

	// DS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DS_LOG_LEVEL: %w", err)
	}

	// DS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// DS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("DS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// DS_DEPHEALTH_GROUP — имя группы в метриках topologymetrics (по умолчанию "data-storage")
	cfg.DephealthGroup = getEnvDefault("DS_DEPHEALTH_GROUP", "data-storage")

	// DS_DEPHEALTH_DEP_NAME — имя зависимости в метриках topologymetrics (по умолчанию "auth-jwks")
	cfg.DephealthDepName = getEnvDefault("DS_DEPHEALTH_DEP_NAME", "auth-jwks")

	// DEPHEALTH_NAME — имя владельца пода для метки name в topologymetrics
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	cfg.HTTPReadTimeout, err = getEnvDuration("DS_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("DS_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// DS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown HTTP-сервера (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (true или false)", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — getEnvDuration с проверкой d > 0.
// Ошибка уже содержит имя переменной.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным, получено %s", key, d)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
