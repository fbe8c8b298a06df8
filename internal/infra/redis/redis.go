// Package redis provides the shared client behind the gateway's breaker,
// idempotency, status, and rate-limit state, plus the distributed limiter.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Every admission blocks on at least three Redis round trips, so the client
// timeouts are kept well under the HTTP dependency budget: a slow store
// should fail the request, not stall it.
const (
	dialTimeout    = 5 * time.Second
	commandTimeout = 2 * time.Second
	startupTimeout = 5 * time.Second
	minIdleConns   = 2
)

// NewRedis connects using a redis:// URL and verifies the connection before
// handing it out.
func NewRedis(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = commandTimeout
	opts.WriteTimeout = commandTimeout
	opts.MinIdleConns = minIdleConns

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}
