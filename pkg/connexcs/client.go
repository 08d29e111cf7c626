// Package connexcs mirrors customers, carriers, rate cards and routes into the ConnexCS softswitch.
//
// The client authenticates with a short-lived JWT obtained from POST /auth/jwt using HTTP
// basic credentials. Without credentials it runs in mock mode: calls succeed locally and
// return synthetic ids, so the portal works in development and tests.
package connexcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/retry"
	"github.com/voxlane/backoffice/pkg/tracing"
)

// ErrMockMode is returned by operations that need a live softswitch
var ErrMockMode = errors.New("connexcs client is in mock mode")

// tokenRefreshWindow renews the token this long before it expires
const tokenRefreshWindow = 60 * time.Second

// defaultTokenLifetime applies when the auth response carries no expiry
const defaultTokenLifetime = time.Hour

// mockIDBase is the first synthetic id handed out in mock mode
const mockIDBase = 100000

// Config configures the client
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	MockMode bool
	Retry    retry.Config
}

// APIError is a non-2xx answer from the softswitch
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("connexcs %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Temporary reports whether the request may succeed when retried
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// IsNotFound reports whether err is a 404 from the softswitch
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the ConnexCS control panel API
type Client struct {
	cfg        Config
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *logging.Logger
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	mockSeq atomic.Int64
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTracer records spans on the given provider
func WithTracer(p *tracing.Provider) Option {
	return func(c *Client) {
		if p != nil {
			c.tracer = p.Tracer()
		}
	}
}

// NewClient creates a client. Mock mode is forced when no credentials are configured.
func NewClient(cfg Config, logger *logging.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialBackoff == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Username == "" || cfg.Password == "" {
		cfg.MockMode = true
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracer:     otel.Tracer("connexcs"),
		logger:     logger.WithComponent("connexcs"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.MockMode {
		c.logger.Warn("ConnexCS client running in mock mode", map[string]interface{}{"base_url": cfg.BaseURL})
	}
	return c
}

// Mock reports whether the client is in mock mode
func (c *Client) Mock() bool {
	return c.cfg.MockMode
}

func (c *Client) nextMockID() int64 {
	return mockIDBase + c.mockSeq.Add(1)
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// accessToken returns a valid JWT, fetching a new one when missing or about to expire
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cfg.MockMode {
		return "", ErrMockMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(tokenRefreshWindow).Before(c.expiresAt) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/jwt", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build auth request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Method: http.MethodPost, Path: "/auth/jwt", Status: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("auth response carried no token")
	}

	lifetime := defaultTokenLifetime
	if tr.ExpiresIn > 0 {
		lifetime = time.Duration(tr.ExpiresIn) * time.Second
	}
	c.token = tr.Token
	c.expiresAt = c.now().Add(lifetime)
	c.logger.Debug("Obtained ConnexCS token", map[string]interface{}{"expires_at": c.expiresAt})
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// TokenExpiry returns the expiry of the cached token, zero when none is held
func (c *Client) TokenExpiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

// send performs one authenticated request. A 401 drops the token and retries once.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		tracing.InjectHTTPHeaders(ctx, req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("connexcs %s %s: %w", method, path, err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.invalidateToken()
			continue
		}
		return resp, nil
	}
	return nil, errors.New("unreachable")
}

// do runs one API operation with retries, tracing and metrics. out may be nil.
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "connexcs."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("connexcs.operation", op),
			attribute.String("http.method", method),
			attribute.String("http.target", path),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ConnexCSDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", op, err)
		}
	}

	attempts := 0
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		attempts++
		resp, err := c.send(ctx, method, path, payload)
		if err != nil {
			if !retry.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			if retry.IsRetryable(apiErr) {
				return apiErr
			}
			return retry.Permanent(apiErr)
		}
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return retry.Permanent(fmt.Errorf("failed to decode %s response: %w", op, err))
		}
		return nil
	})

	span.SetAttributes(attribute.Int("connexcs.attempts", attempts))
	metrics.ConnexCSCalls.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("ConnexCS call failed", map[string]interface{}{
			"operation": op,
			"attempts":  attempts,
			"error":     err,
		})
		return err
	}
	return nil
}

// mockCall records a mock-mode operation
func (c *Client) mockCall(ctx context.Context, op string) {
	_, span := c.tracer.Start(ctx, "connexcs."+op, trace.WithAttributes(
		attribute.String("connexcs.operation", op),
		attribute.Bool("connexcs.mock", true),
	))
	span.End()
	metrics.ConnexCSCalls.WithLabelValues(op, "mock").Inc()
}

type idResponse struct {
	ID int64 `json:"id"`
}

// upsert creates the entity when externalID is zero and replaces it otherwise
func (c *Client) upsert(ctx context.Context, op, resource string, externalID int64, payload interface{}) (int64, error) {
	if c.cfg.MockMode {
		c.mockCall(ctx, op)
		if externalID != 0 {
			return externalID, nil
		}
		return c.nextMockID(), nil
	}

	var out idResponse
	if externalID == 0 {
		if err := c.do(ctx, op, http.MethodPost, "/"+resource, payload, &out); err != nil {
			return 0, err
		}
		if out.ID == 0 {
			return 0, fmt.Errorf("connexcs %s: response carried no id", op)
		}
		return out.ID, nil
	}

	path := fmt.Sprintf("/%s/%d", resource, externalID)
	if err := c.do(ctx, op, http.MethodPut, path, payload, &out); err != nil {
		return 0, err
	}
	if out.ID != 0 {
		return out.ID, nil
	}
	return externalID, nil
}

// remove deletes the entity. A missing remote entity counts as deleted.
func (c *Client) remove(ctx context.Context, op, resource string, externalID int64) error {
	if externalID == 0 {
		return nil
	}
	if c.cfg.MockMode {
		c.mockCall(ctx, op)
		return nil
	}
	err := c.do(ctx, op, http.MethodDelete, fmt.Sprintf("/%s/%d", resource, externalID), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}
