package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-tickets/internal/api/http"
	"github.com/spec-kit/support-tickets/internal/api/http/handlers"
	"github.com/spec-kit/support-tickets/internal/auth"
	"github.com/spec-kit/support-tickets/internal/config"
	"github.com/spec-kit/support-tickets/internal/events"
	"github.com/spec-kit/support-tickets/internal/id"
	"github.com/spec-kit/support-tickets/internal/moderation"
	"github.com/spec-kit/support-tickets/internal/observability"
	"github.com/spec-kit/support-tickets/internal/persistence"
	"github.com/spec-kit/support-tickets/internal/realtime"
	"github.com/spec-kit/support-tickets/internal/repository"
	"github.com/spec-kit/support-tickets/internal/service"
	"github.com/spec-kit/support-tickets/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids, err := id.NewGenerator(cfg.App.NodeID)
	if err != nil {
		logger.Fatal("failed to init id generator", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// The Postgres command queue notifies the game server over Redis, and the
	// redis realtime backend fans out through it.
	needsRedis := pg.PoolHandle() != nil || cfg.Tickets.RealtimeBackend == "redis"
	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		if needsRedis {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		logger.Warn("redis unavailable; running without it", zap.Error(err))
	}
	defer redis.Close()

	var (
		store    repository.TicketStore
		audit    repository.AuditRepository
		executor moderation.CommandExecutor
	)
	if pool := pg.PoolHandle(); pool != nil {
		store = repository.NewTicketRepository(pool, ids)
		audit = repository.NewAuditRepository(pool)
		executor = moderation.NewPostgresQueue(pool, redis.Client, cfg.Moderation.NotifyChannel, logger)
	} else {
		store = repository.NewMemoryTicketStore(ids)
		audit = repository.NewMemoryAuditRepository()
		executor = moderation.NewMemoryQueue()
	}

	var backend realtime.Channel
	hub := realtime.NewHub(cfg.Tickets.SubscriberBuffer, logger)
	defer hub.Close()
	if cfg.Tickets.RealtimeBackend == "redis" {
		backend = realtime.NewRedisChannel(redis.Client, cfg.Tickets.SubscriberBuffer, logger)
	} else {
		backend = hub
	}
	channel := realtime.NewSequencer(backend, cfg.Tickets.GapTimeout(), logger, realtime.WithIdleTTL(cfg.Tickets.SequenceIdle()))

	guard := auth.NewGuard(cfg.Auth.StaffRoles, cfg.Auth.AuthorCanReopen)
	dispatcher := events.NewInMemoryDispatcher()

	kafka := persistence.NewKafkaProducer(cfg.Kafka, logger)
	defer func() {
		if err := kafka.Close(); err != nil {
			logger.Warn("kafka close", zap.Error(err))
		}
	}()
	var sink service.EventSink
	var eventWorker *worker.EventWorker
	if kafka.Enabled() {
		eventWorker = worker.NewEventWorker(kafka, cfg.Kafka.Topic, cfg.Kafka.Buffer, logger)
		sink = eventWorker
	}
	notificationService := service.NewNotificationService(dispatcher, logger, sink)

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := worker.StartNotificationWorker(workerCtx, notificationService, eventWorker)

	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Audit:      audit,
		Guard:      guard,
		Channel:    channel,
		Bridge:     moderation.NewBridge(executor, logger),
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
		Limits: service.MessageLimits{
			User:  cfg.Tickets.MaxUserMessageLength,
			Staff: cfg.Tickets.MaxStaffMessageLength,
		},
		DispatchTimeout: cfg.Moderation.DispatchTimeout(),
		IdempotencyTTL:  cfg.Moderation.IdempotencyTTL(),
	})

	// Redis only gates readiness when something depends on it.
	deps := map[string]handlers.Pinger{"postgres": nil, "redis": nil}
	if pg.PoolHandle() != nil {
		deps["postgres"] = pg
	}
	if needsRedis {
		deps["redis"] = redis
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService),
		Stream:         handlers.NewStreamHandler(ticketService, cfg.Tickets.StreamPing(), logger),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, 0)),
		Guard:          guard,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	// Abandoned sanctions still record their outcome before the stores close.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 2*cfg.Moderation.DispatchTimeout())
	if err := ticketService.Wait(drainCtx); err != nil {
		logger.Warn("sanction dispatches still running at shutdown", zap.Error(err))
	}
	cancelDrain()
	stopWorker()
	<-workerDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
