// Package status tracks the notification lifecycle in Redis. Records carry a
// one-hour TTL and the store's expiry is the sole cleanup mechanism; the
// delivered state is written by the downstream consumers, never by the
// gateway, and Get reports whatever is stored without merging.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/notifygate/notify-gateway/internal/domain"
)

const (
	keyPrefix = "status:"

	// TTL bounds how long a status record is queryable.
	TTL = time.Hour
)

// Record is the stored lifecycle state of one notification.
type Record struct {
	NotificationID string        `json:"notification_id"`
	Status         domain.Status `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
	Error          string        `json:"error,omitempty"`
}

// Tracker reads and writes status records.
type Tracker struct {
	client *goredis.Client
	now    func() time.Time
}

func NewTracker(client *goredis.Client) (*Tracker, error) {
	return newTracker(client, time.Now)
}

func newTracker(client *goredis.Client, nowFn func() time.Time) (*Tracker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Tracker{client: client, now: nowFn}, nil
}

// SetPending marks a notification as accepted but not yet dispatched.
func (t *Tracker) SetPending(ctx context.Context, notificationID string) error {
	return t.set(ctx, notificationID, domain.StatusPending, "")
}

// SetQueued marks a notification as handed to the broker.
func (t *Tracker) SetQueued(ctx context.Context, notificationID string) error {
	return t.set(ctx, notificationID, domain.StatusQueued, "")
}

// SetFailed marks a notification as unrecoverably failed during admission.
func (t *Tracker) SetFailed(ctx context.Context, notificationID string, errorMessage string) error {
	return t.set(ctx, notificationID, domain.StatusFailed, errorMessage)
}

// Get returns the stored record or domain.ErrNotFound once the TTL expired.
func (t *Tracker) Get(ctx context.Context, notificationID string) (*Record, error) {
	if t == nil || t.client == nil {
		return nil, fmt.Errorf("status tracker is not initialized")
	}
	trimmed := strings.TrimSpace(notificationID)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := t.client.Get(ctx, keyPrefix+trimmed).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: no status for notification %q", domain.ErrNotFound, trimmed)
		}
		return nil, fmt.Errorf("failed to read status for %q: %w", trimmed, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("failed to decode status for %q: %w", trimmed, err)
	}

	// External consumers write records too; normalize their casing and
	// reject anything outside the lifecycle instead of echoing it back.
	parsed, err := domain.ParseStatusFromString(record.Status.String())
	if err != nil {
		return nil, fmt.Errorf("corrupt status record for %q: %v", trimmed, err)
	}
	record.Status = parsed

	return &record, nil
}

func (t *Tracker) set(ctx context.Context, notificationID string, status domain.Status, errorMessage string) error {
	if t == nil || t.client == nil {
		return fmt.Errorf("status tracker is not initialized")
	}
	trimmed := strings.TrimSpace(notificationID)
	if trimmed == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	record := Record{
		NotificationID: trimmed,
		Status:         status,
		Timestamp:      t.now().UTC(),
		Error:          errorMessage,
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode status for %q: %w", trimmed, err)
	}

	if err := t.client.Set(ctx, keyPrefix+trimmed, payload, TTL).Err(); err != nil {
		return fmt.Errorf("failed to write status for %q: %w", trimmed, err)
	}

	return nil
}
