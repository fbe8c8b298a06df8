// Package directory wraps the two downstream existence checks the gateway
// performs before dispatch: the user directory and the template registry.
// Both are plain HTTP lookups where a 200 means the entity exists and is
// deliverable; anything else fails the admission.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// defaultLookupTimeout bounds each dependency call. There are no retries;
// a slow dependency is treated as a failed one.
const defaultLookupTimeout = 5 * time.Second

// LookupError describes a failed existence check.
type LookupError struct {
	Dependency string
	StatusCode int
	Cause      error
}

func (e *LookupError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, fmt.Sprintf("%s lookup failed", e.Dependency))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *LookupError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// UserDirectory checks that a user exists and has deliverable contact info.
type UserDirectory struct {
	client  *resty.Client
	baseURL string
}

func NewUserDirectory(baseURL string) (*UserDirectory, error) {
	client, trimmed, err := newLookupClient(baseURL, nil)
	if err != nil {
		return nil, err
	}
	return &UserDirectory{client: client, baseURL: trimmed}, nil
}

func NewUserDirectoryWithClient(baseURL string, client *resty.Client) (*UserDirectory, error) {
	configured, trimmed, err := newLookupClient(baseURL, client)
	if err != nil {
		return nil, err
	}
	return &UserDirectory{client: configured, baseURL: trimmed}, nil
}

// ValidateUser performs a GET against the user directory's contact endpoint.
func (d *UserDirectory) ValidateUser(ctx context.Context, userID string) error {
	if d == nil || d.client == nil {
		return fmt.Errorf("user directory is not initialized")
	}
	if strings.TrimSpace(userID) == "" {
		return &LookupError{Dependency: "user", Cause: fmt.Errorf("user id is required")}
	}

	endpoint := fmt.Sprintf("%s/users/%s/contact", d.baseURL, url.PathEscape(userID))
	return checkExists(ctx, d.client, "user", endpoint)
}

// TemplateRegistry checks that a template code is registered.
type TemplateRegistry struct {
	client  *resty.Client
	baseURL string
}

func NewTemplateRegistry(baseURL string) (*TemplateRegistry, error) {
	client, trimmed, err := newLookupClient(baseURL, nil)
	if err != nil {
		return nil, err
	}
	return &TemplateRegistry{client: client, baseURL: trimmed}, nil
}

func NewTemplateRegistryWithClient(baseURL string, client *resty.Client) (*TemplateRegistry, error) {
	configured, trimmed, err := newLookupClient(baseURL, client)
	if err != nil {
		return nil, err
	}
	return &TemplateRegistry{client: configured, baseURL: trimmed}, nil
}

// ValidateTemplate performs a GET against the template registry.
func (r *TemplateRegistry) ValidateTemplate(ctx context.Context, templateCode string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("template registry is not initialized")
	}
	if strings.TrimSpace(templateCode) == "" {
		return &LookupError{Dependency: "template", Cause: fmt.Errorf("template code is required")}
	}

	endpoint := fmt.Sprintf("%s/templates/%s", r.baseURL, url.PathEscape(templateCode))
	return checkExists(ctx, r.client, "template", endpoint)
}

func newLookupClient(baseURL string, client *resty.Client) (*resty.Client, string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, "", fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, "", fmt.Errorf("invalid base url: %w", err)
	}

	if client == nil {
		client = resty.New()
		client.SetTimeout(defaultLookupTimeout)
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultLookupTimeout)
	}
	client.SetRetryCount(0)

	return client, trimmed, nil
}

func checkExists(ctx context.Context, client *resty.Client, dependency string, endpoint string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	response, err := client.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		return &LookupError{Dependency: dependency, Cause: err}
	}
	if response == nil {
		return &LookupError{Dependency: dependency, Cause: fmt.Errorf("empty response")}
	}

	if response.StatusCode() == http.StatusOK {
		return nil
	}

	return &LookupError{Dependency: dependency, StatusCode: response.StatusCode()}
}
