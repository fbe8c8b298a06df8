package idempotency

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/notifygate/notify-gateway/internal/domain"
)

// keyNamespace scopes derived identifiers so they can never collide with
// UUIDs minted for other purposes.
var keyNamespace = uuid.MustParse("7a3c1f5e-0b64-4c1a-9d2e-8f4b6a2c9e01")

// DeriveKey returns the idempotency key for a request. A caller-supplied
// request_id is used verbatim (the caller controls dedup scope); otherwise a
// deterministic UUIDv5 is derived from the request fingerprint, so identical
// inputs always collapse onto the same key.
func DeriveKey(req *domain.NotificationRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is required")
	}
	if req.RequestID != "" {
		return req.RequestID, nil
	}

	fingerprint, err := Fingerprint(req)
	if err != nil {
		return "", err
	}

	return uuid.NewSHA1(keyNamespace, []byte(fingerprint)).String(), nil
}

// Fingerprint canonicalizes the dedup-relevant request fields. Variables are
// serialized with encoding/json, which writes map keys in sorted order, so
// field-order differences in the inbound payload never change the result.
func Fingerprint(req *domain.NotificationRequest) (string, error) {
	variables, err := json.Marshal(req.Variables)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize variables: %w", err)
	}

	return fmt.Sprintf("%s:%s:%s:%s", req.Type, req.UserID, req.TemplateCode, variables), nil
}
