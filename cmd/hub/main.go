// Package main - точка входа сервера присутствия SkillSwap.
//
// Философия: лента уведомлений и список "кто онлайн" должны подталкивать
// к живому контакту - увидел знакомого онлайн, написал, договорился о
// сессии обмена навыками. Хаб держит реестр соединений, рассылает
// снапшоты присутствия по WebSocket и ведёт ленту уведомлений.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: реестр присутствия и лента уведомлений, без внешних зависимостей
// - Application: команды и запросы (push/mark-read/clear, online-now)
// - Infrastructure: Redis-зеркало присутствия, Postgres-архив, event bus
// - Interface: WebSocket hub, REST API
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/config"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/application/command"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/application/query"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/infrastructure/messaging"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/infrastructure/persistence/postgres"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/infrastructure/persistence/redis"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/infrastructure/scheduler"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/skillswap-hub/skillswap-presence-hub/internal/interface/http"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/interface/http/handlers"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/interface/ws"
	"github.com/skillswap-hub/skillswap-presence-hub/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.Observability.LogCaller,
	})
	// Внутренние пакеты принимают *slog.Logger; мост пишет в тот же sink.
	slogLog := log.Slog()

	log.Info("starting SkillSwap presence hub",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (архив уведомлений, опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var dbConn *postgres.Connection
	var archiveRepo *postgres.NotificationRepository
	var archive notification.ArchiveRepository

	if !cfg.Database.Disabled && cfg.Features.ArchiveEnabled() {
		log.Info("connecting to database...")
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if err := dbConn.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		log.Info("database connection established")

		// ─────────────────────────────────────────────────────────────────
		// 4. ЗАПУСК МИГРАЦИЙ
		// ─────────────────────────────────────────────────────────────────
		if cfg.Database.Migrate {
			log.Info("running database migrations...")
			migrator := postgres.NewMigrator(dbConn)
			if err := migrator.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations completed")
		}

		archiveRepo = postgres.NewNotificationRepository(dbConn)
		archive = archiveRepo
	} else {
		log.Info("notification archive disabled - feed is in-memory only")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (зеркало присутствия, опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisClient *redis.Client
	var mirror *redis.PresenceMirror

	if !cfg.Redis.Disabled && cfg.Features.MirrorEnabled() {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisClient, err = redis.NewClient(redisCfg)
		if err != nil {
			// Зеркало - best-effort: хаб работает и без него.
			log.Warn("failed to connect to Redis, presence mirror disabled", logger.Err(err))
		} else {
			defer redisClient.Close()

			mirror, err = redis.NewPresenceMirror(redis.PresenceMirrorConfig{
				Client: redisClient,
				Logger: slogLog,
			})
			if err != nil {
				return fmt.Errorf("failed to create presence mirror: %w", err)
			}
			log.Info("Redis presence mirror enabled")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = slogLog
	eventBusConfig.AsyncMode = true
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	if cfg.App.Debug {
		_ = eventBus.SubscribeAll(func(e shared.Event) error {
			slogLog.Debug("domain event",
				"type", string(e.EventType()),
				"aggregate_id", e.AggregateID(),
			)
			return nil
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	store := notification.NewStore()
	pushCmd := command.NewPushNotificationHandler(store, archive, eventBus, slogLog)
	markReadCmd := command.NewMarkNotificationReadHandler(store, archive, slogLog)
	clearCmd := command.NewClearNotificationsHandler(store, archive, slogLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. СОЗДАНИЕ WEBSOCKET HUB
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing presence hub...")

	hubCfg := ws.DefaultHubConfig()
	hubCfg.SendQueueSize = cfg.Presence.SendQueueSize
	hubCfg.WriteTimeout = cfg.Presence.WriteTimeout
	hubCfg.PingInterval = cfg.Presence.PingInterval
	hubCfg.PongWait = cfg.Presence.PongWait
	hubCfg.MaxMessageSize = cfg.Presence.MaxMessageSize
	hubCfg.Logger = slogLog

	var hubMirror ws.Mirror
	if mirror != nil {
		hubMirror = mirror
	}
	hub := ws.NewHub(hubCfg, eventBus, hubMirror)
	wsHandler := ws.NewHandler(hub, cfg.Server.AllowedOrigins, slogLog)

	onlineQuery := query.NewGetOnlineNowHandler(hub, slogLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 8a. ФОНОВЫЕ ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	// Пересинхронизация зеркала чинит пропущенные записи, prune держит
	// таблицу архива в разумных пределах.
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: slogLog})

	if mirror != nil && cfg.Presence.MirrorSyncInterval > 0 {
		syncJob := jobs.NewSyncMirrorJob(hub, slogLog)
		if err := sched.Register(syncJob, scheduler.NewIntervalSchedule(cfg.Presence.MirrorSyncInterval)); err != nil {
			return fmt.Errorf("failed to register mirror sync job: %w", err)
		}
	}

	if archiveRepo != nil {
		pruneJob := jobs.NewPruneArchiveJob(archiveRepo, jobs.DefaultPruneArchiveConfig(), slogLog)
		if err := sched.Register(pruneJob, scheduler.NewIntervalSchedule(6*time.Hour)); err != nil {
			return fmt.Errorf("failed to register archive prune job: %w", err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if dbConn != nil {
		health.AddCheck("postgres", handlers.NewDatabaseCheck(dbConn))
	}
	if redisClient != nil {
		health.AddCheck("redis", handlers.NewCacheCheck(redisClient))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.Server.Host
	httpConfig.Port = cfg.Server.Port
	httpConfig.ReadTimeout = cfg.Server.ReadTimeout
	httpConfig.WriteTimeout = cfg.Server.WriteTimeout
	httpConfig.IdleTimeout = cfg.Server.IdleTimeout
	httpConfig.MaxHeaderBytes = cfg.Server.MaxHeaderBytes
	httpConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.Server.RateLimitPerMinute
	httpConfig.MaxBodyBytes = cfg.Server.MaxBodyBytes

	httpDeps := httpserver.Dependencies{
		GetOnlineNowHandler:         onlineQuery,
		PushNotificationHandler:     pushCmd,
		MarkNotificationReadHandler: markReadCmd,
		ClearNotificationsHandler:   clearCmd,
		Feed:                        store,
		WebSocket:                   wsHandler,
		Logger:                      log,
		HealthChecker:               health,
	}
	if cfg.Features.StatsEnabled() {
		httpDeps.HubStats = hub
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("SkillSwap presence hub is running",
		logger.String("http_address", httpServer.Address()),
		logger.Bool("mirror", mirror != nil),
		logger.Bool("archive", archive != nil),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// 1. Останавливаем фоновые задачи, чтобы они не гонялись с закрытием.
	log.Info("stopping scheduler...")
	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		log.Warn("scheduler stop", logger.Err(err))
	}

	// 2. Перестаём принимать HTTP и WebSocket трафик.
	log.Info("stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		shutdownErr = err
	}

	// 3. Закрываем открытые сессии хаба.
	log.Info("stopping presence hub...")
	hub.Shutdown()

	// 4. Дожидаемся асинхронных записей в архив.
	log.Info("waiting for archive writes...")
	pushCmd.Wait()

	// 5. Сливаем очередь зеркала.
	if mirror != nil {
		log.Info("flushing presence mirror...")
		if err := mirror.Close(); err != nil {
			log.Warn("presence mirror close", logger.Err(err))
		}
	}

	// Event bus и соединения закроются через defer.

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}
