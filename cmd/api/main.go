package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifygate/notify-gateway/internal/breaker"
	"github.com/notifygate/notify-gateway/internal/config"
	"github.com/notifygate/notify-gateway/internal/directory"
	"github.com/notifygate/notify-gateway/internal/gateway"
	"github.com/notifygate/notify-gateway/internal/handler"
	"github.com/notifygate/notify-gateway/internal/idempotency"
	infraredis "github.com/notifygate/notify-gateway/internal/infra/redis"
	"github.com/notifygate/notify-gateway/internal/observability"
	"github.com/notifygate/notify-gateway/internal/queue"
	"github.com/notifygate/notify-gateway/internal/status"
	"github.com/notifygate/notify-gateway/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	publisher := queue.NewRabbitMQPublisher(rabbit)
	defer publisher.Close()

	breakers, err := breaker.NewManager(rdb)
	if err != nil {
		logger.Fatal("breaker manager initialization failed", zap.Error(err))
	}

	idempotencyStore, err := idempotency.NewStore(rdb)
	if err != nil {
		logger.Fatal("idempotency store initialization failed", zap.Error(err))
	}

	statusTracker, err := status.NewTracker(rdb)
	if err != nil {
		logger.Fatal("status tracker initialization failed", zap.Error(err))
	}

	lookupTimeout := time.Duration(cfg.DependencyTimeoutSec) * time.Second
	users, err := directory.NewUserDirectoryWithClient(
		cfg.UserServiceURL,
		resty.New().SetTimeout(lookupTimeout),
	)
	if err != nil {
		logger.Fatal("user directory initialization failed", zap.Error(err))
	}
	templates, err := directory.NewTemplateRegistryWithClient(
		cfg.TemplateServiceURL,
		resty.New().SetTimeout(lookupTimeout),
	)
	if err != nil {
		logger.Fatal("template registry initialization failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	service, err := gateway.NewService(
		breakers,
		idempotencyStore,
		statusTracker,
		users,
		templates,
		publisher,
		logger,
		gateway.WithRateLimiter(limiter),
		gateway.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatal("gateway service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	if err := handler.RegisterNotificationRoutes(app, service); err != nil {
		logger.Fatal("failed to register notification routes", zap.Error(err))
	}
	handler.RegisterHealthRoutes(app, rdb, rabbit, breakers, metrics)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("notify-gateway api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
	}
}
