package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/notifygate/notify-gateway/internal/domain"
	"github.com/notifygate/notify-gateway/internal/gateway"
	"github.com/notifygate/notify-gateway/internal/observability"
	"github.com/notifygate/notify-gateway/internal/status"
)

// Gateway is the admission surface the handler depends on.
type Gateway interface {
	Admit(ctx context.Context, raw domain.RawRequest) (*gateway.Receipt, error)
	Status(ctx context.Context, notificationID string) (*status.Record, error)
}

type NotificationHandler struct {
	gateway Gateway
}

func NewNotificationHandler(gw Gateway) (*NotificationHandler, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	return &NotificationHandler{gateway: gw}, nil
}

func RegisterNotificationRoutes(router fiber.Router, gw Gateway) error {
	h, err := NewNotificationHandler(gw)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.SendNotification)
	v1.Get("/notifications/:id/status", h.NotificationStatus)

	return nil
}

type sendNotificationResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Type      string `json:"type"`
}

type notificationStatusResponse struct {
	Success        bool   `json:"success"`
	NotificationID string `json:"notification_id"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	Error          string `json:"error,omitempty"`
}

type errorResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error"`
	Details []domain.FieldError `json:"details,omitempty"`
}

func (h *NotificationHandler) SendNotification(c *fiber.Ctx) error {
	var raw domain.RawRequest
	if err := c.BodyParser(&raw); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error: "invalid request body",
		})
	}

	ctx := observability.WithCorrelationID(c.Context(), requestCorrelationID(c))

	receipt, err := h.gateway.Admit(ctx, raw)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(sendNotificationResponse{
		Success:   true,
		RequestID: receipt.RequestID,
		Type:      receipt.Type.String(),
	})
}

func (h *NotificationHandler) NotificationStatus(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	record, err := h.gateway.Status(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(notificationStatusResponse{
		Success:        true,
		NotificationID: record.NotificationID,
		Status:         record.Status.String(),
		Timestamp:      record.Timestamp.UTC().Format(time.RFC3339Nano),
		Error:          record.Error,
	})
}

// respondError maps the admission error taxonomy to HTTP responses. Every
// expected failure kind is caught here; nothing escapes uncaught.
func respondError(c *fiber.Ctx, err error) error {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error:   "validation failed",
			Details: validationErr.Fields,
		})
	}

	return c.Status(statusForError(err)).JSON(errorResponse{
		Error: err.Error(),
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrDependency):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
