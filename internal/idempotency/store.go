package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "idempotency:"
	marker    = "processing"

	// TTL bounds the dedup window. Expiry is the only cleanup mechanism;
	// nothing ever deletes a marker explicitly.
	TTL = time.Hour
)

// Store reserves idempotency keys in Redis. Reservation is a single atomic
// set-if-absent so two concurrent identical requests can never both pass the
// duplicate check.
type Store struct {
	client *goredis.Client
}

func NewStore(client *goredis.Client) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Store{client: client}, nil
}

// Reserve claims the key for the TTL window. It returns false when the key is
// already held, meaning the request is currently being processed or was
// processed within the window.
func (s *Store) Reserve(ctx context.Context, key string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("idempotency store is not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return false, fmt.Errorf("idempotency key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reserved, err := s.client.SetNX(ctx, keyPrefix+key, marker, TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}

	return reserved, nil
}
