// Точка входа Data Storage — HTTP-сервиса одного репозитория ресурсов
// с версионированными метаданными поверх файлового хранилища.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/bigkaa/goartstore/data-storage/internal/api/handlers"
	"github.com/bigkaa/goartstore/data-storage/internal/api/middleware"
	"github.com/bigkaa/goartstore/data-storage/internal/clock"
	"github.com/bigkaa/goartstore/data-storage/internal/config"
	"github.com/bigkaa/goartstore/data-storage/internal/consume"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/lock"
	"github.com/bigkaa/goartstore/data-storage/internal/replica"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
	"github.com/bigkaa/goartstore/data-storage/internal/server"
	"github.com/bigkaa/goartstore/data-storage/internal/service"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/cache"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/filestore"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/wal"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Data Storage запускается",
		slog.String("instance_id", cfg.InstanceID),
		slog.String("resource", cfg.ResourceName),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("replica_mode", cfg.ReplicaMode),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Data Storage завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Data Storage остановлен")
}

// run собирает компоненты, запускает фоновые процессы и HTTP-сервер.
// Возвращает управление после graceful shutdown.
func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.TimeZone != nil {
		model.SetReferenceZone(cfg.TimeZone)
	}

	// --- Инициализация компонентов ---

	// 1. Файловое хранилище и кэш документов метаданных
	fs, err := filestore.New(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("ошибка инициализации FileStore: %w", err)
	}
	var st storage.Storage = fs
	var docCache *cache.Store
	if cfg.CacheSize > 0 {
		docCache = cache.New(fs, cfg.CacheSize, cfg.CacheTTL, nil)
		st = docCache
		logger.Info("Кэш документов метаданных включён",
			slog.Int("size", cfg.CacheSize),
			slog.String("ttl", cfg.CacheTTL.String()),
		)
	}

	clk := clock.Real()
	base := repository.BasePath(cfg.ResourceName, cfg.ResourceBasePath)

	// 2. Журнал публикаций
	opts := repository.Options{
		ResourceBasePath: cfg.ResourceBasePath,
		Metaname:         cfg.Metaname,
		IndexMetaname:    cfg.IndexMetaname,
		ShardFunc:        cfg.ShardFunc,
		Archive:          cfg.Archive,
		LogicalDelete:    cfg.LogicalDelete,
		Clock:            clk,
		Logger:           logger,
	}
	var journal *wal.WAL
	if cfg.JournalEnabled {
		journal = wal.New(st, base, clk, logger)
		opts.Journal = journal
	}

	// 3. Репозиторий: вариант из meta_metadata.json или из конфигурации
	repo, err := repository.OpenOrCreate(st, cfg.ResourceName, cfg.RepositoryKind, opts)
	if err != nil {
		return fmt.Errorf("ошибка открытия репозитория %s: %w", cfg.ResourceName, err)
	}
	if cfg.ReshardFunc != "" {
		if repo, err = reshard(repo, cfg.ReshardFunc, logger); err != nil {
			return err
		}
	}
	logger.Info("Репозиторий открыт",
		slog.String("kind", string(repo.Kind())),
		slog.String("base", repo.Base()),
		slog.Bool("archive", repo.Archive()),
		slog.Bool("logical_delete", repo.LogicalDelete()),
	)
	if journal != nil {
		journal.SetReferences(repo)
	}

	// writeMu сериализует изменения метаданных внутри экземпляра
	writeMu := &sync.Mutex{}

	// recoverJournal откатывает незавершённые публикации. Выполняется
	// только держателем роли leader: follower не пишет в хранилище.
	recoverJournal := func() {
		if journal == nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if n, err := journal.Recover(); err != nil {
			logger.Error("Ошибка восстановления журнала публикаций",
				slog.String("error", err.Error()),
			)
		} else if n > 0 {
			logger.Warn("Незавершённые публикации откачены", slog.Int("count", n))
		}
	}

	// 4. Роль экземпляра
	var (
		roles    replica.RoleProvider = &replica.StandaloneProvider{}
		election *replica.Election
	)
	if cfg.ReplicaMode == config.ReplicaModeReplicated {
		locker := lock.New(st, clk, cfg.InstanceID, os.Getpid(), logger)
		election, err = replica.NewElection(locker, replica.LeaderLockPath(base), cfg.LockTTL,
			func() {
				// Документы, закэшированные в роли follower, могли устареть
				if docCache != nil {
					docCache.Purge()
				}
				recoverJournal()
			},
			nil,
			logger,
		)
		if err != nil {
			return fmt.Errorf("ошибка инициализации leader election: %w", err)
		}
		if err := election.Start(); err != nil {
			return err
		}
		defer election.Stop()
		roles = election
	} else {
		recoverJournal()
	}

	// 5. Реестр клиентов-потребителей
	clients, err := consume.NewClients(repo, consume.Config{
		Clock:  clk,
		Logger: logger,
		Host:   cfg.InstanceID,
	})
	if err != nil {
		return fmt.Errorf("ошибка инициализации реестра клиентов: %w", err)
	}

	// 6. Сервисы
	uploadSvc := service.NewUploadService(repo, writeMu, cfg.MaxPayloadSize, logger)
	downloadSvc := service.NewDownloadService(repo, logger)
	deleteSvc := service.NewDeleteService(repo, writeMu, logger)

	// 7. Фоновые процессы
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7.1 GC — очистка логически удалённых ресурсов
	gcSvc := service.NewGCService(repo, writeMu, roles, cfg.GCInterval, logger)
	gcSvc.Start(ctx)
	defer gcSvc.Stop()

	// 7.2 Reconciliation — фоновая сверка payload и метаданных
	reconcileSvc := service.NewReconcileService(repo, writeMu, roles, cfg.ReconcileInterval, logger)
	reconcileSvc.Start(ctx)
	defer reconcileSvc.Stop()

	// 7.3 topologymetrics — мониторинг JWKS endpoint
	var deps handlers.DependencyHealth
	if cfg.AuthEnabled() {
		if dephealthSvc := startDephealth(ctx, cfg, logger); dephealthSvc != nil {
			defer dephealthSvc.Stop()
			deps = dephealthSvc
		}
	}

	// 8. Handlers
	var journalInspector handlers.JournalInspector
	if journal != nil {
		journalInspector = journal
	}
	h := server.Handlers{
		Health: handlers.NewHealthHandler(config.Version, fs, journalInspector, roles, deps),
		System: handlers.NewSystemHandler(repo, roles, config.Version, fs.Root(), logger),
		API: handlers.NewAPIHandler(
			handlers.NewResourcesHandler(repo, uploadSvc, downloadSvc, deleteSvc, logger),
			handlers.NewClientsHandler(clients, writeMu),
			handlers.NewMaintenanceHandler(gcSvc, reconcileSvc),
		),
	}

	// 9. Аутентификация и проксирование записи
	routerOpts := server.RouterOptions{Logger: logger}
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			TLSSkipVerify:   cfg.TLSSkipVerify,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			Validation: middleware.Validation{
				Leeway:   cfg.JWTLeeway,
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("ошибка инициализации JWT аутентификации: %w", err)
		}
		routerOpts.Auth = jwtAuth.Middleware()
		logger.Info("JWT аутентификация настроена",
			slog.String("jwks_url", cfg.JWKSUrl),
			slog.String("issuer", cfg.JWTIssuer),
			slog.String("audience", cfg.JWTAudience),
		)
	} else {
		logger.Warn("DS_JWKS_URL не задан, API работает без аутентификации")
	}
	if election != nil {
		proxy := replica.NewLeaderProxy(roles, replica.ProxyConfig{
			UseTLS:        cfg.TLSEnabled(),
			TLSSkipVerify: cfg.TLSSkipVerify,
			InstanceID:    cfg.InstanceID,
		}, logger)
		routerOpts.LeaderProxy = func(next http.Handler) http.Handler {
			return proxy.Middleware(next)
		}
	}

	// 10. HTTP-сервер
	srv := server.New(cfg, logger, server.NewRouter(h, routerOpts))
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("Остановка фоновых процессов...")
	return nil
}

// reshard перешардирует репозиторий, если он шардирован и функция отличается.
func reshard(repo *repository.Repository, fnName string, logger *slog.Logger) (*repository.Repository, error) {
	if !repo.Kind().Indexed() {
		logger.Warn("DS_RESHARD_FUNC игнорируется: репозиторий не шардирован",
			slog.String("kind", string(repo.Kind())),
		)
		return repo, nil
	}
	resharded, err := repository.Reshard(repo, fnName)
	if err != nil {
		return nil, fmt.Errorf("ошибка перешардирования репозитория на %s: %w", fnName, err)
	}
	logger.Info("Репозиторий перешардирован", slog.String("shard_func", fnName))
	return resharded, nil
}

// startDephealth запускает мониторинг JWKS endpoint.
// Ошибки не фатальны: сервис работает без мониторинга зависимостей.
func startDephealth(ctx context.Context, cfg *config.Config, logger *slog.Logger) *service.DephealthService {
	name := cfg.DephealthName
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "data-storage"
		}
		name = parseOwnerName(host)
	}

	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		Name:          name,
		Group:         cfg.DephealthGroup,
		DepName:       cfg.DephealthDepName,
		JWKSURL:       cfg.JWKSUrl,
		CheckInterval: cfg.DephealthCheckInterval,
		TLSSkipVerify: cfg.TLSSkipVerify,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("name", name),
		slog.String("jwks_url", cfg.JWKSUrl),
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return dephealthSvc
}
