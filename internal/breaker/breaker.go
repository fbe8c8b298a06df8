// Package breaker implements a circuit breaker whose state lives in Redis so
// that every gateway instance observes the same failure counts and
// transitions. All read-modify-write sequences run as Lua scripts; a plain
// read-then-write would lose updates under concurrent failures and could skip
// the closed-to-open transition entirely.
package breaker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Dependency names with independent breaker state.
const (
	DependencyUserService     = "user_service"
	DependencyTemplateService = "template_service"
	DependencyGeneral         = "general"
)

// Dependencies lists every named breaker tracked by the gateway.
func Dependencies() []string {
	return []string{DependencyUserService, DependencyTemplateService, DependencyGeneral}
}

// State is the breaker state machine position.
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half-open"
	StateOpen     State = "open"
)

func (s State) String() string { return string(s) }

const (
	// FailureThreshold opens the breaker once this many failures accumulate.
	FailureThreshold = 5
	// OpenTimeout is the cool-down before an open breaker admits a probe.
	OpenTimeout = 60 * time.Second

	keyPrefix = "circuit_breaker:"
)

// allowScript admits closed and half-open callers. An expired open breaker
// transitions to half-open and admits the calling request in the same atomic
// step; concurrent callers that all observe the expiry may all proceed, which
// trades a slightly early fail-open for not serializing every dependency call.
var allowScript = goredis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state or state == "closed" or state == "half-open" then
  return 1
end
local last = tonumber(redis.call("HGET", KEYS[1], "last_failure_time") or "0")
if tonumber(ARGV[1]) - last > tonumber(ARGV[2]) then
  redis.call("HSET", KEYS[1], "state", "half-open")
  return 1
end
return 0
`)

// failureScript increments the counter and opens the breaker at the
// threshold. A failure while half-open re-opens immediately with the counter
// raised to the threshold, equivalent to a closed-state failure that trips.
// last_failure_time is stamped only when the breaker opens or re-opens; it
// anchors the open cool-down and stays zero while sub-threshold failures
// accumulate in the closed state.
var failureScript = goredis.NewScript(`
local failures = redis.call("HINCRBY", KEYS[1], "failures", 1)
local state = redis.call("HGET", KEYS[1], "state")
if state == "half-open" or failures >= tonumber(ARGV[2]) then
  if failures < tonumber(ARGV[2]) then
    failures = tonumber(ARGV[2])
    redis.call("HSET", KEYS[1], "failures", failures)
  end
  redis.call("HSET", KEYS[1], "state", "open", "last_failure_time", ARGV[1])
end
return failures
`)

// successScript closes a half-open breaker and resets its counter. Success in
// the closed state is a no-op: isolated successes do not decrement failures.
var successScript = goredis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if state == "half-open" then
  redis.call("HSET", KEYS[1], "failures", 0, "state", "closed")
end
return 0
`)

// Snapshot is a point-in-time read of one breaker.
type Snapshot struct {
	Failures        int
	LastFailureTime float64
	State           State
}

// Manager coordinates one independently-stateful breaker per dependency.
type Manager struct {
	client      *goredis.Client
	threshold   int
	openTimeout time.Duration
	now         func() time.Time
}

func NewManager(client *goredis.Client) (*Manager, error) {
	return newManager(client, FailureThreshold, OpenTimeout, time.Now)
}

func newManager(
	client *goredis.Client,
	threshold int,
	openTimeout time.Duration,
	nowFn func() time.Time,
) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if threshold <= 0 {
		threshold = FailureThreshold
	}
	if openTimeout <= 0 {
		openTimeout = OpenTimeout
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &Manager{
		client:      client,
		threshold:   threshold,
		openTimeout: openTimeout,
		now:         nowFn,
	}, nil
}

// Allow reports whether a call to the dependency may proceed. For an expired
// open breaker this is a check-and-transition, not a pure read.
func (m *Manager) Allow(ctx context.Context, dependency string) (bool, error) {
	key, err := m.key(dependency)
	if err != nil {
		return false, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := allowScript.Run(ctx, m.client, []string{key},
		m.nowSeconds(), m.openTimeout.Seconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate breaker admission for %q: %w", dependency, err)
	}

	return result == 1, nil
}

// RecordFailure counts one failure against the dependency.
func (m *Manager) RecordFailure(ctx context.Context, dependency string) error {
	key, err := m.key(dependency)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := failureScript.Run(ctx, m.client, []string{key},
		m.nowSeconds(), m.threshold).Err(); err != nil {
		return fmt.Errorf("failed to record breaker failure for %q: %w", dependency, err)
	}

	return nil
}

// RecordSuccess closes a half-open breaker; otherwise it is a no-op.
func (m *Manager) RecordSuccess(ctx context.Context, dependency string) error {
	key, err := m.key(dependency)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := successScript.Run(ctx, m.client, []string{key}).Err(); err != nil {
		return fmt.Errorf("failed to record breaker success for %q: %w", dependency, err)
	}

	return nil
}

// State returns the current breaker snapshot without mutating it. A breaker
// that has never recorded a failure reads as closed.
func (m *Manager) State(ctx context.Context, dependency string) (Snapshot, error) {
	key, err := m.key(dependency)
	if err != nil {
		return Snapshot{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fields, err := m.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read breaker state for %q: %w", dependency, err)
	}

	snapshot := Snapshot{State: StateClosed}
	if raw, ok := fields["failures"]; ok {
		if failures, err := strconv.Atoi(raw); err == nil {
			snapshot.Failures = failures
		}
	}
	if raw, ok := fields["last_failure_time"]; ok {
		if last, err := strconv.ParseFloat(raw, 64); err == nil {
			snapshot.LastFailureTime = last
		}
	}
	if raw, ok := fields["state"]; ok && raw != "" {
		snapshot.State = State(raw)
	}

	return snapshot, nil
}

func (m *Manager) key(dependency string) (string, error) {
	if m == nil || m.client == nil {
		return "", fmt.Errorf("breaker manager is not initialized")
	}
	normalized := strings.TrimSpace(dependency)
	if normalized == "" {
		return "", fmt.Errorf("dependency name is required")
	}
	return keyPrefix + normalized, nil
}

func (m *Manager) nowSeconds() string {
	seconds := float64(m.now().UTC().UnixNano()) / float64(time.Second)
	return strconv.FormatFloat(seconds, 'f', 6, 64)
}
