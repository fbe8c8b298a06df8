package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifygate/notify-gateway/internal/breaker"
	"github.com/notifygate/notify-gateway/internal/directory"
	"github.com/notifygate/notify-gateway/internal/domain"
	"github.com/notifygate/notify-gateway/internal/idempotency"
	"github.com/notifygate/notify-gateway/internal/queue"
	"github.com/notifygate/notify-gateway/internal/status"
)

type stubPublisher struct {
	err       error
	published []queue.OutboundMessage
	types     []domain.Type
}

func (p *stubPublisher) Publish(ctx context.Context, notificationType domain.Type, msg queue.OutboundMessage) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, msg)
	p.types = append(p.types, notificationType)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

type testEnv struct {
	service   *Service
	breakers  *breaker.Manager
	statuses  *status.Tracker
	publisher *stubPublisher

	userStatus     atomic.Int32
	userCalls      atomic.Int32
	templateStatus atomic.Int32
	templateCalls  atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	env := &testEnv{publisher: &stubPublisher{}}
	env.userStatus.Store(http.StatusOK)
	env.templateStatus.Store(http.StatusOK)

	userServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.userCalls.Add(1)
		w.WriteHeader(int(env.userStatus.Load()))
	}))
	t.Cleanup(userServer.Close)

	templateServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.templateCalls.Add(1)
		w.WriteHeader(int(env.templateStatus.Load()))
	}))
	t.Cleanup(templateServer.Close)

	env.breakers, err = breaker.NewManager(rdb)
	if err != nil {
		t.Fatalf("breaker.NewManager() error = %v", err)
	}

	idempotencyStore, err := idempotency.NewStore(rdb)
	if err != nil {
		t.Fatalf("idempotency.NewStore() error = %v", err)
	}

	env.statuses, err = status.NewTracker(rdb)
	if err != nil {
		t.Fatalf("status.NewTracker() error = %v", err)
	}

	users, err := directory.NewUserDirectory(userServer.URL)
	if err != nil {
		t.Fatalf("directory.NewUserDirectory() error = %v", err)
	}
	templates, err := directory.NewTemplateRegistry(templateServer.URL)
	if err != nil {
		t.Fatalf("directory.NewTemplateRegistry() error = %v", err)
	}

	env.service, err = NewService(
		env.breakers,
		idempotencyStore,
		env.statuses,
		users,
		templates,
		env.publisher,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	return env
}

func validRaw(t *testing.T) domain.RawRequest {
	t.Helper()

	var raw domain.RawRequest
	payload := `{
		"notification_type": "email",
		"user_id": "user123",
		"template_code": "welcome_email",
		"variables": {"name": "John Doe", "link": "https://example.com"},
		"priority": 1,
		"metadata": {"source": "test"}
	}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	return raw
}

func TestAdmitSuccess(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	receipt, err := env.service.Admit(context.Background(), validRaw(t))
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	if receipt.RequestID == "" {
		t.Fatal("receipt should carry a request id")
	}
	if receipt.Type != domain.TypeEmail {
		t.Fatalf("type = %q, want email", receipt.Type)
	}

	if got := len(env.publisher.published); got != 1 {
		t.Fatalf("published = %d messages, want 1", got)
	}
	if env.publisher.types[0] != domain.TypeEmail {
		t.Fatalf("published type = %q, want email", env.publisher.types[0])
	}

	msg := env.publisher.published[0]
	if msg.RequestID != receipt.RequestID {
		t.Fatalf("message request id = %q, want %q", msg.RequestID, receipt.RequestID)
	}
	if msg.UserID != "user123" || msg.TemplateCode != "welcome_email" {
		t.Fatalf("message identity = %q/%q", msg.UserID, msg.TemplateCode)
	}

	record, err := env.statuses.Get(context.Background(), receipt.RequestID)
	if err != nil {
		t.Fatalf("status Get() error = %v", err)
	}
	if record.Status != domain.StatusQueued {
		t.Fatalf("status = %q, want queued", record.Status)
	}

	if env.userCalls.Load() != 1 || env.templateCalls.Load() != 1 {
		t.Fatalf("dependency calls = %d/%d, want 1/1", env.userCalls.Load(), env.templateCalls.Load())
	}
}

func TestAdmitDuplicate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	receipt, err := env.service.Admit(ctx, validRaw(t))
	if err != nil {
		t.Fatalf("first Admit() error = %v", err)
	}

	_, err = env.service.Admit(ctx, validRaw(t))
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("second Admit() error = %v, want ErrDuplicate", err)
	}

	if got := len(env.publisher.published); got != 1 {
		t.Fatalf("published = %d messages, want 1 (duplicate must not republish)", got)
	}

	// The duplicate rejection names the derived id so the caller can poll it.
	if !strings.Contains(err.Error(), receipt.RequestID) {
		t.Fatalf("duplicate error %q should reference request id %q", err, receipt.RequestID)
	}
}

func TestAdmitValidationFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	var raw domain.RawRequest
	payload := `{"notification_type": "invalid", "user_id": "", "template_code": "", "variables": "not a map"}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	_, err := env.service.Admit(context.Background(), raw)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error = %T, want *domain.ValidationError", err)
	}
	if len(validationErr.Fields) < 4 {
		t.Fatalf("violations = %d, want at least 4", len(validationErr.Fields))
	}

	if len(env.publisher.published) != 0 {
		t.Fatal("invalid request must not publish")
	}
	if env.userCalls.Load() != 0 {
		t.Fatal("invalid request must not reach the user service")
	}
}

func TestAdmitTemplateFailureLeavesStatusPending(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.templateStatus.Store(http.StatusInternalServerError)
	ctx := context.Background()

	_, err := env.service.Admit(ctx, validRaw(t))
	if !errors.Is(err, domain.ErrDependency) {
		t.Fatalf("Admit() error = %v, want ErrDependency", err)
	}

	if len(env.publisher.published) != 0 {
		t.Fatal("failed dependency check must not publish")
	}

	snapshot, err := env.breakers.State(ctx, breaker.DependencyTemplateService)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if snapshot.Failures != 1 {
		t.Fatalf("template breaker failures = %d, want 1", snapshot.Failures)
	}

	userSnapshot, err := env.breakers.State(ctx, breaker.DependencyUserService)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if userSnapshot.Failures != 0 {
		t.Fatalf("user breaker failures = %d, want 0 (only the failing dependency is penalized)", userSnapshot.Failures)
	}

	// The reference behavior leaves the record at pending here; only
	// publish-path failures advance it to failed.
	req := &domain.NotificationRequest{
		Type:         domain.TypeEmail,
		UserID:       "user123",
		TemplateCode: "welcome_email",
		Variables:    map[string]any{"name": "John Doe", "link": "https://example.com"},
	}
	id, err := idempotency.DeriveKey(req)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	record, err := env.statuses.Get(ctx, id)
	if err != nil {
		t.Fatalf("status Get() error = %v", err)
	}
	if record.Status != domain.StatusPending {
		t.Fatalf("status = %q, want pending after dependency failure", record.Status)
	}
}

func TestAdmitRejectsWhenBreakerOpen(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < breaker.FailureThreshold; i++ {
		if err := env.breakers.RecordFailure(ctx, breaker.DependencyUserService); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	_, err := env.service.Admit(ctx, validRaw(t))
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("Admit() error = %v, want ErrUnavailable", err)
	}

	if env.userCalls.Load() != 0 {
		t.Fatal("open breaker must short-circuit without a network call")
	}
	if len(env.publisher.published) != 0 {
		t.Fatal("rejected request must not publish")
	}
}

func TestAdmitPublishFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.publisher.err = fmt.Errorf("broker unreachable")
	ctx := context.Background()

	_, err := env.service.Admit(ctx, validRaw(t))
	if !errors.Is(err, domain.ErrPublish) {
		t.Fatalf("Admit() error = %v, want ErrPublish", err)
	}

	snapshot, err := env.breakers.State(ctx, breaker.DependencyGeneral)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if snapshot.Failures != 1 {
		t.Fatalf("general breaker failures = %d, want 1", snapshot.Failures)
	}

	req := &domain.NotificationRequest{
		Type:         domain.TypeEmail,
		UserID:       "user123",
		TemplateCode: "welcome_email",
		Variables:    map[string]any{"name": "John Doe", "link": "https://example.com"},
	}
	id, deriveErr := idempotency.DeriveKey(req)
	if deriveErr != nil {
		t.Fatalf("DeriveKey() error = %v", deriveErr)
	}
	record, getErr := env.statuses.Get(ctx, id)
	if getErr != nil {
		t.Fatalf("status Get() error = %v", getErr)
	}
	if record.Status != domain.StatusFailed {
		t.Fatalf("status = %q, want failed after publish error", record.Status)
	}
	if record.Error == "" {
		t.Fatal("failed record should carry the error message")
	}
}

func TestAdmitRateLimited(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	denyAll := rateLimiterFunc(func(ctx context.Context, notificationType string) (bool, error) {
		return false, nil
	})
	env.service.limiter = denyAll

	_, err := env.service.Admit(context.Background(), validRaw(t))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("Admit() error = %v, want ErrRateLimited", err)
	}
	if env.userCalls.Load() != 0 || len(env.publisher.published) != 0 {
		t.Fatal("rate-limited request must not touch dependencies or the broker")
	}
}

type rateLimiterFunc func(ctx context.Context, notificationType string) (bool, error)

func (f rateLimiterFunc) Allow(ctx context.Context, notificationType string) (bool, error) {
	return f(ctx, notificationType)
}

func TestStatusProxiesTracker(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.statuses.SetQueued(ctx, "req-9"); err != nil {
		t.Fatalf("SetQueued() error = %v", err)
	}

	record, err := env.service.Status(ctx, "req-9")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if record.Status != domain.StatusQueued {
		t.Fatalf("status = %q, want queued", record.Status)
	}

	_, err = env.service.Status(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Status() error = %v, want ErrNotFound", err)
	}
}
