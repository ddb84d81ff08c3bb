package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/navarrastar/gapscan/pkg/logging"
	"github.com/navarrastar/gapscan/pkg/models"
	"github.com/navarrastar/gapscan/pkg/utils"
)

const maxDiagnosticBody = 64 << 10

// Request is one finished Gap Scan ready to leave the service
type Request struct {
	Draft  models.FormDraft
	Locale string
	Page   models.PageContext
}

// Client defines the interface for delivering submissions to the automation webhook
type Client interface {
	Submit(ctx context.Context, req Request) error
}

type clientImpl struct {
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
	logger     *logging.Logger
}

// Option customizes a Client
type Option func(*clientImpl)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(ci *clientImpl) {
		if c != nil {
			ci.httpClient = c
		}
	}
}

// WithClock sets the source of submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(ci *clientImpl) {
		if now != nil {
			ci.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(ci *clientImpl) {
		if l != nil {
			ci.logger = l
		}
	}
}

// NewClient creates a new webhook client. An empty endpoint is allowed and
// makes every Submit fail with a ConfigurationError.
func NewClient(endpoint string, opts ...Option) Client {
	c := &clientImpl{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		now:        time.Now,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts the enriched draft exactly once. It never retries.
func (c *clientImpl) Submit(ctx context.Context, req Request) error {
	if c.endpoint == "" {
		c.logger.Error("webhook URL not configured", "kind", "configuration")
		return &ConfigurationError{Reason: "N8N_WEBHOOK_URL is empty"}
	}

	payload := BuildPayload(req, c.now())
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error creating payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonPayload))
	if err != nil {
		return &ConfigurationError{Reason: fmt.Sprintf("invalid webhook URL: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("error sending to webhook", "kind", "transport", "error", err)
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("webhook rejected submission",
			"kind", "transport",
			"status", resp.StatusCode,
			"body", string(body),
		)
		return &TransportError{StatusCode: resp.StatusCode}
	}

	c.logger.Info("webhook accepted submission",
		"email_hash", utils.HashString(req.Draft.Email),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	c.logger.Debug("webhook response", "body", string(body))
	return nil
}
