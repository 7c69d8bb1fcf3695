package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-sync/internal/api/http"
	"github.com/spec-kit/helpdesk-sync/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sync/internal/auth"
	"github.com/spec-kit/helpdesk-sync/internal/config"
	"github.com/spec-kit/helpdesk-sync/internal/dedup"
	"github.com/spec-kit/helpdesk-sync/internal/events"
	"github.com/spec-kit/helpdesk-sync/internal/observability"
	"github.com/spec-kit/helpdesk-sync/internal/persistence"
	"github.com/spec-kit/helpdesk-sync/internal/repository"
	"github.com/spec-kit/helpdesk-sync/internal/service"
	"github.com/spec-kit/helpdesk-sync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis, redisUp := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	integrationRepo := repository.NewIntegrationRepository(pool)
	deliveryRepo := repository.NewWebhookDeliveryRepository(pool)

	aliases, err := service.LoadStatusAliases(cfg.ClickUp.StatusAliasesFile)
	if err != nil {
		logger.Fatal("failed to load status aliases", zap.Error(err))
	}
	mapper := service.NewStatusMapper(aliases)

	var deduplicator dedup.Deduplicator
	if cfg.Sync.DedupBackend == "redis" && redisUp {
		deduplicator = dedup.NewRedis(redis.Client, cfg.Sync.DedupWindow())
		logger.Info("status dedup backed by redis")
	} else {
		if cfg.Sync.DedupBackend == "redis" {
			logger.Warn("redis unavailable, status dedup falls back to memory")
		}
		deduplicator = dedup.NewMemory(cfg.Sync.DedupWindow(), time.Now)
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	taskService := service.NewTaskService(service.TaskDependencies{
		ClientFactory:  service.NewClickUpClientFactory(cfg.ClickUp.BaseURL, cfg.ClickUp.Timeout()),
		Mapper:         mapper,
		Logger:         logger,
		VerifyTTL:      cfg.Sync.VerifyTTL(),
		DefaultDueDays: cfg.Sync.DefaultDueDays,
	})
	integrationService := service.NewIntegrationService(integrationRepo, taskService, logger)
	if err := integrationService.Load(ctx, cfg.ClickUp); err != nil {
		logger.Fatal("failed to load clickup integration", zap.Error(err))
	}

	syncService := service.NewSyncService(service.SyncDependencies{
		Tasks:       taskService,
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Logger:      logger,
	})
	statusSync := service.NewStatusSync(service.StatusSyncDependencies{
		TicketRepo:   ticketRepo,
		HistoryRepo:  historyRepo,
		Sync:         syncService,
		Mapper:       mapper,
		Deduplicator: deduplicator,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	webhookService := service.NewWebhookService(service.WebhookDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: commentRepo,
		HistoryRepo: historyRepo,
		StatusSync:  statusSync,
		Sync:        syncService,
		Mapper:      mapper,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: commentRepo,
		HistoryRepo: historyRepo,
		Sync:        syncService,
		StatusSync:  statusSync,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	notificationService := service.NewNotificationService(dispatcher, deliveryRepo, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)
	deliveryWorker := worker.NewDeliveryWorker(deliveryRepo, cfg.Notification, logger)
	go deliveryWorker.Run(ctx)

	if cfg.ClickUp.WebhookSecret == "" {
		logger.Warn("CLICKUP_WEBHOOK_SECRET not set; webhook signatures are not verified")
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}, metrics),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Webhooks:       handlers.NewWebhookHandler(webhookService, cfg.ClickUp.WebhookSecret, metrics, logger),
		Integration:    handlers.NewIntegrationHandler(integrationService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
