package domain

import (
	"fmt"
	"strings"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusFailed    Status = "failed"
	StatusDelivered Status = "delivered"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusFailed, StatusDelivered:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Type represents the notification delivery type.
type Type string

const (
	TypeEmail Type = "email"
	TypePush  Type = "push"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case TypeEmail, TypePush:
		return true
	}
	return false
}

func ParseTypeFromString(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// Types lists all supported notification types.
func Types() []Type {
	return []Type{TypeEmail, TypePush}
}

// DefaultPriority applies when a request omits the priority field.
const DefaultPriority = 1

// NotificationRequest is the validated admission input. It is transient: the
// gateway never persists it beyond the status cache and the broker envelope.
type NotificationRequest struct {
	Type         Type
	UserID       string
	TemplateCode string
	Variables    map[string]any
	RequestID    string
	Priority     int
	Metadata     map[string]any
}
