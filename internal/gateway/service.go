// Package gateway composes validation, idempotency, circuit breaking,
// dependency checks, status tracking, and broker publication into the
// end-to-end admission flow.
package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifygate/notify-gateway/internal/breaker"
	"github.com/notifygate/notify-gateway/internal/domain"
	"github.com/notifygate/notify-gateway/internal/idempotency"
	"github.com/notifygate/notify-gateway/internal/observability"
	"github.com/notifygate/notify-gateway/internal/queue"
	"github.com/notifygate/notify-gateway/internal/ratelimit"
	"github.com/notifygate/notify-gateway/internal/status"
)

// UserValidator checks that a user exists and is reachable.
type UserValidator interface {
	ValidateUser(ctx context.Context, userID string) error
}

// TemplateValidator checks that a template code is registered.
type TemplateValidator interface {
	ValidateTemplate(ctx context.Context, templateCode string) error
}

// Receipt is the successful admission result.
type Receipt struct {
	RequestID string
	Type      domain.Type
}

// Service orchestrates the admission pipeline. All breaker, idempotency, and
// status state lives in Redis; the service itself holds no authoritative
// state and is safe for concurrent use across instances.
type Service struct {
	breakers    *breaker.Manager
	idempotency *idempotency.Store
	statuses    *status.Tracker
	users       UserValidator
	templates   TemplateValidator
	publisher   queue.Publisher
	limiter     ratelimit.RateLimiter
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithRateLimiter gates admissions behind a per-type rate limit.
func WithRateLimiter(limiter ratelimit.RateLimiter) Option {
	return func(s *Service) { s.limiter = limiter }
}

// WithMetrics records admission outcomes and publish latency.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

func withNow(nowFn func() time.Time) Option {
	return func(s *Service) { s.now = nowFn }
}

func NewService(
	breakers *breaker.Manager,
	idempotencyStore *idempotency.Store,
	statuses *status.Tracker,
	users UserValidator,
	templates TemplateValidator,
	publisher queue.Publisher,
	logger *zap.Logger,
	opts ...Option,
) (*Service, error) {
	if breakers == nil {
		return nil, fmt.Errorf("breaker manager is required")
	}
	if idempotencyStore == nil {
		return nil, fmt.Errorf("idempotency store is required")
	}
	if statuses == nil {
		return nil, fmt.Errorf("status tracker is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user validator is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template validator is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		breakers:    breakers,
		idempotency: idempotencyStore,
		statuses:    statuses,
		users:       users,
		templates:   templates,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Admit runs the full admission flow for one raw request.
//
// A dependency-validation failure returns its error with the status record
// left at pending; only a publish failure advances the record to failed. The
// idempotency marker stays reserved either way, bounding resubmission to the
// TTL window.
func (s *Service) Admit(ctx context.Context, raw domain.RawRequest) (*Receipt, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	violations, req := domain.ValidateRaw(raw)
	if len(violations) > 0 {
		s.metrics.IncRejected("validation")
		return nil, &domain.ValidationError{Fields: violations}
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, req.Type.String())
		if err != nil {
			return nil, fmt.Errorf("failed to check rate limit: %w", err)
		}
		if !allowed {
			s.metrics.IncRejected("rate_limited")
			return nil, fmt.Errorf("%w: too many %s notifications", domain.ErrRateLimited, req.Type)
		}
	}

	requestID, err := idempotency.DeriveKey(req)
	if err != nil {
		return nil, fmt.Errorf("failed to derive idempotency key: %w", err)
	}
	req.RequestID = requestID

	reserved, err := s.idempotency.Reserve(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if !reserved {
		s.metrics.IncRejected("duplicate")
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicate, requestID)
	}

	if err := s.statuses.SetPending(ctx, requestID); err != nil {
		return nil, fmt.Errorf("failed to mark notification pending: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("requestId", requestID),
		zap.String("type", req.Type.String()),
	)

	if err := s.checkDependency(ctx, breaker.DependencyUserService, func(ctx context.Context) error {
		return s.users.ValidateUser(ctx, req.UserID)
	}); err != nil {
		logger.Warn("user validation failed", zap.Error(err))
		return nil, err
	}

	if err := s.checkDependency(ctx, breaker.DependencyTemplateService, func(ctx context.Context) error {
		return s.templates.ValidateTemplate(ctx, req.TemplateCode)
	}); err != nil {
		logger.Warn("template validation failed", zap.Error(err))
		return nil, err
	}

	msg := queue.FromRequest(req, s.now())

	publishStart := s.now()
	if err := s.publisher.Publish(ctx, req.Type, msg); err != nil {
		logger.Error("failed to publish notification", zap.Error(err))

		if recordErr := s.breakers.RecordFailure(ctx, breaker.DependencyGeneral); recordErr != nil {
			logger.Error("failed to record general breaker failure", zap.Error(recordErr))
		}
		if statusErr := s.statuses.SetFailed(ctx, requestID, err.Error()); statusErr != nil {
			logger.Error("failed to mark notification failed after publish error", zap.Error(statusErr))
		}

		s.metrics.IncRejected("publish_error")
		return nil, fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}
	s.metrics.ObservePublishDuration(req.Type.String(), s.now().Sub(publishStart))

	if err := s.statuses.SetQueued(ctx, requestID); err != nil {
		return nil, fmt.Errorf("failed to mark notification queued: %w", err)
	}

	s.metrics.IncAdmitted(req.Type.String())
	logger.Info("notification queued")

	return &Receipt{RequestID: requestID, Type: req.Type}, nil
}

// Status returns the lifecycle record for a notification id.
func (s *Service) Status(ctx context.Context, notificationID string) (*status.Record, error) {
	return s.statuses.Get(ctx, notificationID)
}

// checkDependency gates one dependency call behind its breaker: rejected
// immediately while open, failure recorded before the error is returned so
// degradation stays observable, success recorded otherwise.
func (s *Service) checkDependency(ctx context.Context, dependency string, check func(context.Context) error) error {
	allowed, err := s.breakers.Allow(ctx, dependency)
	if err != nil {
		return fmt.Errorf("failed to check breaker for %s: %w", dependency, err)
	}
	if !allowed {
		s.metrics.IncRejected("breaker_open")
		return fmt.Errorf("%w: circuit breaker open for %s", domain.ErrUnavailable, dependency)
	}

	if err := check(ctx); err != nil {
		if recordErr := s.breakers.RecordFailure(ctx, dependency); recordErr != nil {
			s.logger.Error("failed to record breaker failure",
				zap.String("dependency", dependency),
				zap.Error(recordErr),
			)
		}
		s.metrics.IncRejected("dependency_failed")
		return fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}

	if err := s.breakers.RecordSuccess(ctx, dependency); err != nil {
		s.logger.Error("failed to record breaker success",
			zap.String("dependency", dependency),
			zap.Error(err),
		)
	}

	return nil
}
