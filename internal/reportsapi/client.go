// Package reportsapi fetches pages of reports from the remote read API.
// Requests go through [Retry], so callers only ever see terminal failures:
// network errors, 429 and 5xx responses are retried with exponential
// backoff, any other non-2xx status fails immediately.
package reportsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/reportsync/internal/model"
)

const (
	otelScope     = "reportsync/reportsapi"
	spanFetchPage = "reportsapi.fetch_page"

	// maxErrorBody bounds how much of an error response ends up in the error.
	maxErrorBody = 512
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("reports API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("reports API returned status %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether the status is worth another attempt.
func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client reads report pages from a single endpoint. Create one with [New].
type Client struct {
	endpoint string
	hc       *http.Client
	retry    RetryPolicy
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithRetryPolicy replaces [DefaultRetryPolicy].
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// New creates a Client for the reports endpoint, e.g.
// "https://api.example.org/v2/reports".
func New(endpoint string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid reports endpoint %q", endpoint)
	}
	c := &Client{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: 30 * time.Second},
		retry:    DefaultRetryPolicy(),
		logger:   logger,
		tracer:   otel.Tracer(otelScope),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchPage returns the reports updated since the cursor, at most limit of
// them, in the order the server sent them (ascending updated_at).
func (c *Client) FetchPage(ctx context.Context, updatedSince string, limit int) ([]model.Report, error) {
	ctx, span := c.tracer.Start(ctx, spanFetchPage, trace.WithAttributes(
		attribute.String("reports.updated_since", updatedSince),
		attribute.Int("reports.limit", limit),
	))
	defer span.End()

	pageURL, err := c.pageURL(updatedSince, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	attempt := 0
	page, err := Retry(ctx, c.retry, func() ([]model.Report, error) {
		attempt++
		page, err := c.get(ctx, pageURL)
		if err != nil {
			c.logger.Debug("reports request failed", "attempt", attempt, "error", err)
		}
		return page, err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("reports.count", len(page)))
	return page, nil
}

func (c *Client) pageURL(updatedSince string, limit int) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse reports endpoint: %w", err)
	}
	q := u.Query()
	q.Set("updated_since", updatedSince)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// get performs one GET and decodes the page. Errors that must not be
// retried are wrapped with [Permanent].
func (c *Client) get(ctx context.Context, pageURL string) ([]model.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, Permanent(fmt.Errorf("create reports request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Permanent(fmt.Errorf("execute reports request: %w", err))
		}
		return nil, fmt.Errorf("execute reports request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if statusErr.retryable() {
			return nil, statusErr
		}
		return nil, Permanent(statusErr)
	}

	var page []model.Report
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, Permanent(fmt.Errorf("decode reports page: %w", err))
	}
	return page, nil
}
