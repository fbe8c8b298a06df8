package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RawRequest is the untyped admission payload. Fields stay raw JSON so that
// validation can report a type violation per field instead of failing the
// whole decode.
type RawRequest struct {
	NotificationType json.RawMessage `json:"notification_type"`
	UserID           json.RawMessage `json:"user_id"`
	TemplateCode     json.RawMessage `json:"template_code"`
	Variables        json.RawMessage `json:"variables"`
	RequestID        json.RawMessage `json:"request_id"`
	Priority         json.RawMessage `json:"priority"`
	Metadata         json.RawMessage `json:"metadata"`
}

// ValidateRaw checks a raw payload against the request schema and accumulates
// every violation. The request is only returned when the list is empty.
func ValidateRaw(raw RawRequest) ([]FieldError, *NotificationRequest) {
	var violations []FieldError
	fail := func(field, message string) {
		violations = append(violations, FieldError{Field: field, Message: message})
	}

	req := &NotificationRequest{
		Priority:  DefaultPriority,
		Variables: map[string]any{},
		Metadata:  map[string]any{},
	}

	if isAbsent(raw.NotificationType) {
		fail("notification_type", "notification_type is required")
	} else if value, ok := asString(raw.NotificationType); !ok {
		fail("notification_type", "notification_type must be a string")
	} else if parsed, err := ParseTypeFromString(value); err != nil {
		fail("notification_type", "notification_type must be one of: email, push")
	} else {
		req.Type = parsed
	}

	if isAbsent(raw.UserID) {
		fail("user_id", "user_id is required")
	} else if value, ok := asString(raw.UserID); !ok {
		fail("user_id", "user_id must be a string")
	} else if strings.TrimSpace(value) == "" {
		fail("user_id", "user_id is required")
	} else {
		req.UserID = value
	}

	if isAbsent(raw.TemplateCode) {
		fail("template_code", "template_code is required")
	} else if value, ok := asString(raw.TemplateCode); !ok {
		fail("template_code", "template_code must be a string")
	} else if strings.TrimSpace(value) == "" {
		fail("template_code", "template_code is required")
	} else {
		req.TemplateCode = value
	}

	if !isAbsent(raw.Variables) {
		variables, ok := asObject(raw.Variables)
		if !ok {
			fail("variables", "variables must be an object")
		} else {
			req.Variables = variables
			violations = append(violations, validateVariables(variables)...)
		}
	}

	if !isAbsent(raw.RequestID) {
		if value, ok := asString(raw.RequestID); !ok {
			fail("request_id", "request_id must be a string")
		} else {
			req.RequestID = strings.TrimSpace(value)
		}
	}

	if !isAbsent(raw.Priority) {
		var priority int
		if err := json.Unmarshal(raw.Priority, &priority); err != nil {
			fail("priority", "priority must be an integer")
		} else {
			req.Priority = priority
		}
	}

	if !isAbsent(raw.Metadata) {
		if metadata, ok := asObject(raw.Metadata); !ok {
			fail("metadata", "metadata must be an object")
		} else {
			req.Metadata = metadata
		}
	}

	if len(violations) > 0 {
		return violations, nil
	}
	return nil, req
}

// validateVariables enforces the recognized sub-keys on a non-empty mapping:
// name (required string), link (optional string), meta (optional mapping).
func validateVariables(variables map[string]any) []FieldError {
	if len(variables) == 0 {
		return nil
	}

	var violations []FieldError

	name, present := variables["name"]
	if !present {
		violations = append(violations, FieldError{Field: "variables.name", Message: "variables.name is required"})
	} else if _, ok := name.(string); !ok {
		violations = append(violations, FieldError{Field: "variables.name", Message: "variables.name must be a string"})
	}

	if link, present := variables["link"]; present {
		if _, ok := link.(string); !ok {
			violations = append(violations, FieldError{Field: "variables.link", Message: "variables.link must be a string"})
		}
	}

	if meta, present := variables["meta"]; present {
		if _, ok := meta.(map[string]any); !ok {
			violations = append(violations, FieldError{Field: "variables.meta", Message: "variables.meta must be an object"})
		}
	}

	return violations
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func asString(raw json.RawMessage) (string, bool) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

func asObject(raw json.RawMessage) (map[string]any, bool) {
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return nil, false
	}
	return value, true
}
