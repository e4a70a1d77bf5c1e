// Package splito is the HTTP client for the Splito REST backend.
package splito

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

const (
	maxErrorBody    = 64 << 10
	maxResponseBody = 8 << 20
)

type sessionKey struct{}

// WithSession attaches the caller's backend session cookie value to ctx.
// Requests made with that context act as the caller.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFrom returns the session attached by WithSession.
func SessionFrom(ctx context.Context) string {
	v, _ := ctx.Value(sessionKey{}).(string)
	return v
}

// Config configures the backend client.
type Config struct {
	BaseURL      string
	ServiceToken string
	SessionName  string
	Timeout      time.Duration
	MaxRetries   int
	// RateLimit caps outgoing calls per second. Zero disables the limiter.
	RateLimit  float64
	RateBurst  int
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client talks to the Splito backend. Calls carrying a session act as that
// user; calls without one fall back to the service token, which background
// workers use.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	serviceToken string
	sessionName  string
	maxRetries   int
	limiter      *rate.Limiter
	log          *logger.Logger
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("splito base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse splito base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	sessionName := cfg.SessionName
	if sessionName == "" {
		sessionName = "splito.session"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("splito-client")
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		httpClient:   httpClient,
		limiter:      limiter,
		baseURL:      base,
		serviceToken: strings.TrimSpace(cfg.ServiceToken),
		sessionName:  sessionName,
		maxRetries:   maxRetries,
		log:          log,
	}, nil
}

// SessionName is the cookie name the backend issues sessions under.
func (c *Client) SessionName() string { return c.sessionName }

func (c *Client) get(ctx context.Context, path string, query url.Values, target interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, target)
}

func (c *Client) post(ctx context.Context, path string, body, target interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, target)
}

func (c *Client) patch(ctx context.Context, path string, body, target interface{}) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, target)
}

// do executes one call. Only GETs are retried, and only on transport errors
// or gateway-class statuses; writes are never replayed.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, target interface{}) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = raw
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperr.Wrap(apperr.CodeNetwork, ctx.Err(), "%s %s", method, path)
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return apperr.Wrap(apperr.CodeNetwork, err, "%s %s", method, path)
			}
		}

		resp, err := c.send(ctx, method, endpoint, payload)
		if err != nil {
			lastErr = apperr.Wrap(apperr.CodeNetwork, err, "%s %s", method, path)
			if ctx.Err() != nil {
				return lastErr
			}
			continue
		}

		if retryableStatus(resp.StatusCode) && attempt+1 < attempts {
			drain(resp)
			lastErr = apperr.New(apperr.CodeUpstream, "%s %s: status %d", method, path, resp.StatusCode)
			continue
		}
		return decodeResponse(resp, target)
	}

	c.log.WithError(lastErr).
		WithField("path", path).
		Warn("splito request exhausted retries")
	return lastErr
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if session := SessionFrom(ctx); session != "" {
		req.AddCookie(&http.Cookie{Name: c.sessionName, Value: session})
	} else if c.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	}

	return c.httpClient.Do(req)
}

func retryableStatus(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

// decodeResponse decodes a JSON body into target, or turns an error status
// into a coded error.
func decodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _, err := readAllWithLimit(resp.Body, maxErrorBody)
		if err != nil {
			return apperr.Wrap(apperr.CodeNetwork, err, "read error response body")
		}
		return parseAPIError(resp.StatusCode, body)
	}

	if target == nil {
		_, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return err
	}

	body, truncated, err := readAllWithLimit(resp.Body, maxResponseBody)
	if err != nil {
		return apperr.Wrap(apperr.CodeNetwork, err, "read response body")
	}
	if truncated {
		return apperr.New(apperr.CodeUpstream, "response body exceeds %d bytes", maxResponseBody)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return apperr.Wrap(apperr.CodeUpstream, err, "decode response")
	}
	return nil
}

func readAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}
