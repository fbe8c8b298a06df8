package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/notifygate/notify-gateway/internal/breaker"
	"github.com/notifygate/notify-gateway/internal/observability"
	"github.com/notifygate/notify-gateway/internal/queue"
)

const readinessTimeout = 2 * time.Second

func RegisterHealthRoutes(
	app fiber.Router,
	rdb *redis.Client,
	broker queue.Pinger,
	breakers *breaker.Manager,
	metrics *observability.Metrics,
) {
	app.Get("/livez", LivezHandler())
	app.Get("/health", HealthHandler(rdb, broker, breakers, metrics))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// HealthHandler aggregates store and broker connectivity plus the current
// state of all named breakers. Reading breaker state never mutates it.
func HealthHandler(
	rdb *redis.Client,
	broker queue.Pinger,
	breakers *breaker.Manager,
	metrics *observability.Metrics,
) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		storeErr := rdb.Ping(ctx).Err()
		brokerErr := broker.Ping(ctx)

		storeStatus := "ok"
		if storeErr != nil {
			storeStatus = "down"
		}
		brokerStatus := "ok"
		if brokerErr != nil {
			brokerStatus = "down"
		}

		breakerStates := make(map[string]string, len(breaker.Dependencies()))
		for _, dependency := range breaker.Dependencies() {
			snapshot, err := breakers.State(ctx, dependency)
			if err != nil {
				breakerStates[dependency] = "unknown"
				continue
			}
			breakerStates[dependency] = snapshot.State.String()
			metrics.SetBreakerState(dependency, snapshot.State.String())
		}

		status := "healthy"
		statusCode := fiber.StatusOK
		if storeErr != nil || brokerErr != nil {
			status = "degraded"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"dependencies": fiber.Map{
				"store":  storeStatus,
				"broker": brokerStatus,
			},
			"circuit_breaker": breakerStates,
			"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}
