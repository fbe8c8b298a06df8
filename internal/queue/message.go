package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/notifygate/notify-gateway/internal/domain"
)

// OutboundMessage is the broker envelope handed to the delivery consumers.
type OutboundMessage struct {
	RequestID    string         `json:"request_id"`
	UserID       string         `json:"user_id"`
	TemplateCode string         `json:"template_code"`
	Variables    map[string]any `json:"variables"`
	Priority     int            `json:"priority"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (m OutboundMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return fmt.Errorf("request_id is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(m.TemplateCode) == "" {
		return fmt.Errorf("template_code is required")
	}
	return nil
}

// FromRequest builds the envelope for a validated request.
func FromRequest(req *domain.NotificationRequest, timestamp time.Time) OutboundMessage {
	return OutboundMessage{
		RequestID:    req.RequestID,
		UserID:       req.UserID,
		TemplateCode: req.TemplateCode,
		Variables:    req.Variables,
		Priority:     req.Priority,
		Metadata:     req.Metadata,
		Timestamp:    timestamp.UTC(),
	}
}
