package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/scenefetch/scenefetch/internal/config"
	"github.com/scenefetch/scenefetch/internal/constants"
	"github.com/scenefetch/scenefetch/internal/http"
	"github.com/scenefetch/scenefetch/internal/logging"
	"github.com/scenefetch/scenefetch/internal/models"
	"github.com/scenefetch/scenefetch/internal/ratelimit"
	"github.com/scenefetch/scenefetch/internal/version"
)

// maxErrorBody bounds how much of an undecodable response is kept for the error message.
const maxErrorBody = 512

// retryLogger adapts the package logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg("m2m retry: " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("m2m retry: " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("m2m retry: " + msg)
}

// apiMetrics tracks M2M usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls      int64
	callsByEndpoint map[string]int64
	windowStart     time.Time
	callsInWindow   int64
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger used for request and retry diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// WithRetryWait overrides the retryablehttp backoff bounds.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		c.retryWaitMin = min
		c.retryWaitMax = max
	}
}

// WithRateLimiter replaces the limiter for one endpoint scope.
func WithRateLimiter(scope ratelimit.Scope, rl *ratelimit.RateLimiter) Option {
	return func(c *Client) { c.limiters[scope] = rl }
}

// Client is the M2M JSON API client. It is safe for concurrent use.
type Client struct {
	httpClient   *nethttp.Client
	baseURL      string
	limiters     map[ratelimit.Scope]*ratelimit.RateLimiter
	metrics      *apiMetrics
	logger       *logging.Logger
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	mu    sync.RWMutex
	token string
}

// NewClient creates an unauthenticated M2M client for cfg.ServiceURL.
// Open a session with Login or LoginToken.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ServiceURL) == "" {
		return nil, fmt.Errorf("M2M service URL is empty")
	}

	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.ServiceURL, "/") + "/",
		limiters: map[ratelimit.Scope]*ratelimit.RateLimiter{
			ratelimit.ScopeSession:   ratelimit.NewSessionRateLimiter(),
			ratelimit.ScopeInventory: ratelimit.NewInventoryRateLimiter(),
		},
		metrics: &apiMetrics{
			callsByEndpoint: make(map[string]int64),
			windowStart:     time.Now(),
		},
		logger:       logging.NewNopLogger(),
		retryWaitMin: 1 * time.Second,
		retryWaitMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	// 5xx and connection errors are retried; 4xx and service errors are not.
	// The last response is passed through so its status can be classified.
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = constants.APIMaxRetries
	retryClient.RetryWaitMin = c.retryWaitMin
	retryClient.RetryWaitMax = c.retryWaitMax
	retryClient.Logger = &retryLogger{logger: c.logger}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c.httpClient = retryClient.StandardClient()
	return c, nil
}

// BaseURL returns the service URL with a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the current session token, or "" when logged out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken installs a session token obtained elsewhere.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// HasSession reports whether a session token is set.
func (c *Client) HasSession() bool {
	return c.Token() != ""
}

// CallCounts returns a copy of the per-endpoint call counters.
func (c *Client) CallCounts() map[string]int64 {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	out := make(map[string]int64, len(c.metrics.callsByEndpoint))
	for k, v := range c.metrics.callsByEndpoint {
		out[k] = v
	}
	return out
}

func (c *Client) recordCall(endpoint string) {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	c.metrics.totalCalls++
	c.metrics.callsByEndpoint[endpoint]++
	c.metrics.callsInWindow++

	if window := time.Since(c.metrics.windowStart); window >= 30*time.Second {
		c.logger.Debug().
			Float64("req_per_sec", float64(c.metrics.callsInWindow)/window.Seconds()).
			Int64("total_calls", c.metrics.totalCalls).
			Msg("M2M usage")
		c.metrics.callsInWindow = 0
		c.metrics.windowStart = time.Now()
	}
}

// Send posts payload as JSON to endpoint and decodes the envelope's data into
// out (when out is non-nil). Every failure is a *TransportError.
func (c *Client) Send(ctx context.Context, endpoint string, payload, out interface{}) error {
	limiter := c.limiters[ratelimit.ScopeForEndpoint(endpoint)]
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return &TransportError{Kind: KindNetworkError, Endpoint: endpoint, Err: fmt.Errorf("rate limiter cancelled: %w", err)}
		}
	}
	c.recordCall(endpoint)

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &TransportError{Kind: KindBadRequest, Endpoint: endpoint, Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+endpoint, reqBody)
	if err != nil {
		return &TransportError{Kind: KindBadRequest, Endpoint: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if token := c.Token(); token != "" {
		req.Header.Set(constants.AuthHeader, token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("M2M call failed")
		return &TransportError{Kind: KindNetworkError, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.handleThrottle(endpoint, resp, limiter)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Kind: KindNetworkError, Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("M2M call")

	return decodeEnvelope(endpoint, resp.StatusCode, body, out)
}

// decodeEnvelope turns an M2M HTTP response into data or a *TransportError.
func decodeEnvelope(endpoint string, status int, body []byte, out interface{}) error {
	var env models.Envelope
	decodeErr := json.Unmarshal(body, &env)

	if decodeErr == nil && env.ErrorCode != nil && *env.ErrorCode != "" {
		te := &TransportError{
			Kind:       kindForServiceCode(*env.ErrorCode),
			Endpoint:   endpoint,
			StatusCode: status,
			Code:       *env.ErrorCode,
		}
		if env.ErrorMessage != nil {
			te.Message = *env.ErrorMessage
		}
		if te.Kind == KindServiceError && status >= 300 {
			te.Kind = kindForStatus(status)
		}
		return te
	}

	if status < 200 || status >= 300 {
		return &TransportError{
			Kind:       kindForStatus(status),
			Endpoint:   endpoint,
			StatusCode: status,
			Message:    excerpt(body),
		}
	}

	if decodeErr != nil {
		return &TransportError{
			Kind:       KindServerError,
			Endpoint:   endpoint,
			StatusCode: status,
			Message:    excerpt(body),
			Err:        fmt.Errorf("failed to decode response envelope: %w", decodeErr),
		}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{
			Kind:       KindServerError,
			Endpoint:   endpoint,
			StatusCode: status,
			Err:        fmt.Errorf("failed to decode %s data: %w", endpoint, err),
		}
	}
	return nil
}

func (c *Client) handleThrottle(endpoint string, resp *nethttp.Response, limiter *ratelimit.RateLimiter) {
	cooldown := ratelimit.DefaultCooldown
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			cooldown = time.Duration(secs) * time.Second
		}
	}
	if limiter != nil {
		limiter.SetCooldown(cooldown)
	}
	c.logger.Warn().
		Str("endpoint", endpoint).
		Dur("cooldown", cooldown).
		Msg("M2M throttled request")
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
