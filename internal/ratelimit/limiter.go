package ratelimit

import "context"

// RateLimiter controls admission throughput per notification type.
type RateLimiter interface {
	Allow(ctx context.Context, notificationType string) (bool, error)
}
