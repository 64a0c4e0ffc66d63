// Package gateway wraps the events REST backend. Every operation takes a
// context as its cancellation token and translates responses into the
// FetchError, CancellationError, and ParseError taxonomy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/l0p7/eventdesk/internal/logging"
	"github.com/l0p7/eventdesk/internal/metrics"
)

const maxBodyBytes = 1 << 20

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client issues requests against one backend base URL.
type Client struct {
	baseURL           string
	http              httpDoer
	logger            *slog.Logger
	metrics           *metrics.Recorder
	correlationHeader string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(doer httpDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = rec }
}

// WithCorrelationHeader names the header that carries the request id. An
// empty name disables propagation.
func WithCorrelationHeader(name string) Option {
	return func(c *Client) { c.correlationHeader = strings.TrimSpace(name) }
}

// New validates baseURL and builds a Client.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("gateway: base url %q is not absolute", baseURL)
	}
	c := &Client{
		baseURL:           trimmed,
		http:              http.DefaultClient,
		logger:            logging.Discard(),
		correlationHeader: "X-Request-ID",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("agent", "gateway"))
	return c, nil
}

// BaseURL returns the normalised backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, op, method, path string, payload, out any) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		outcome := metrics.OutcomeSuccess
		switch {
		case IsCanceled(err):
			outcome = metrics.OutcomeCanceled
		case err != nil:
			outcome = metrics.OutcomeError
		}
		c.metrics.ObserveGatewayRequest(op, status, outcome, time.Since(start))
		attrs := []any{
			slog.String("operation", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		}
		switch outcome {
		case metrics.OutcomeError:
			c.logger.WarnContext(ctx, "backend request failed", append(attrs, slog.Any("error", err))...)
		default:
			c.logger.DebugContext(ctx, "backend request", append(attrs, slog.String("outcome", string(outcome)))...)
		}
	}()

	if err := ctx.Err(); err != nil {
		return &CancellationError{Op: op, Err: err}
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("gateway: %s: encode body: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("gateway: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.correlationHeader != "" {
		id := logging.CorrelationID(ctx)
		if id == "" {
			id = uuid.NewString()
		}
		req.Header.Set(c.correlationHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &CancellationError{Op: op, Err: ctxErr}
		}
		return fmt.Errorf("gateway: %s: %w", op, err)
	}
	status = resp.StatusCode

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	closeErr := resp.Body.Close()
	if readErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &CancellationError{Op: op, Err: ctxErr}
		}
		return fmt.Errorf("gateway: %s: read body: %w", op, readErr)
	}
	if closeErr != nil && ctx.Err() == nil {
		return fmt.Errorf("gateway: %s: close body: %w", op, closeErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fetchErr := &FetchError{Op: op, Code: resp.StatusCode, Body: string(raw)}
		var info map[string]any
		if err := json.Unmarshal(raw, &info); err == nil {
			fetchErr.Info = info
		}
		return fetchErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ParseError{Op: op, Body: string(raw), Err: err}
	}
	return nil
}

var errMissingID = errors.New("event id required")
