package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sungminna/upbit-scalping-bot/internal/logging"
	"github.com/sungminna/upbit-scalping-bot/pkg/ratelimit"
)

const maxLoggedPayload = 512

// Config holds SigningClient configuration
type Config struct {
	AccessKey         string
	SecretKey         string
	ConnectTimeout    time.Duration
	IOTimeout         time.Duration
	RequestsPerSecond int
	MaxWait           time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultConfig returns the exchange defaults: 10 req/s, 2 s permit wait, 3 attempts 2 s apart.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    5 * time.Second,
		IOTimeout:         10 * time.Second,
		RequestsPerSecond: ratelimit.DefaultRequestsPerSecond,
		MaxWait:           ratelimit.DefaultMaxWait,
		RetryAttempts:     3,
		RetryDelay:        2 * time.Second,
	}
}

// Client issues signed and unsigned requests against the exchange REST API
type Client struct {
	accessKey     string
	secretKey     string
	httpClient    *http.Client
	rateLimiter   *ratelimit.RateLimiter
	retryAttempts int
	retryDelay    time.Duration
	logger        zerolog.Logger
}

// NewClient creates a new signing client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = def.IOTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.IOTimeout,
		MaxIdleConnsPerHost:   cfg.RequestsPerSecond,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.IOTimeout,
		},
		rateLimiter:   ratelimit.NewRateLimiterWithWait(cfg.RequestsPerSecond, cfg.RequestsPerSecond, cfg.MaxWait),
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        logger.With().Str("component", "rest").Logger(),
	}
}

// GetUnsigned performs a public GET and decodes the JSON response into out
func (c *Client) GetUnsigned(ctx context.Context, rawURL string, params Params, out any) error {
	return c.do(ctx, http.MethodGet, rawURL, params, false, out)
}

// GetSigned performs an authenticated GET
func (c *Client) GetSigned(ctx context.Context, rawURL string, params Params, out any) error {
	return c.do(ctx, http.MethodGet, rawURL, params, true, out)
}

// PostSigned performs an authenticated POST; params travel as the JSON body
func (c *Client) PostSigned(ctx context.Context, rawURL string, params Params, out any) error {
	return c.do(ctx, http.MethodPost, rawURL, params, true, out)
}

// DeleteSigned performs an authenticated DELETE
func (c *Client) DeleteSigned(ctx context.Context, rawURL string, params Params, out any) error {
	return c.do(ctx, http.MethodDelete, rawURL, params, true, out)
}

func (c *Client) do(ctx context.Context, method, rawURL string, params Params, signed bool, out any) error {
	var lastErr error

	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		if err := c.rateLimiter.Acquire(ctx); err != nil {
			if errors.Is(err, ratelimit.ErrRateLimited) {
				return &APIError{Kind: ErrRateLimited, Message: err.Error()}
			}
			return err
		}

		body, err := c.attempt(ctx, method, rawURL, params, signed)
		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return &APIError{Kind: ErrParse, Status: http.StatusOK, Message: fmt.Sprintf("%v: %s", err, truncate(body))}
			}
			return nil
		}

		if !errors.Is(err, ErrTransient) || ctx.Err() != nil {
			return err
		}

		lastErr = err
		c.logger.Warn().
			Err(err).
			Str("method", method).
			Str("url", rawURL).
			Int("attempt", attempt).
			Msg("Transient failure, retrying")
	}

	return lastErr
}

// attempt sends one request. Network failures and 5xx map to ErrTransient.
func (c *Client) attempt(ctx context.Context, method, rawURL string, params Params, signed bool) ([]byte, error) {
	query := params.Encode()

	var body io.Reader
	target := rawURL
	if method == http.MethodPost {
		payload, err := json.Marshal(params.Body())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	} else if query != "" {
		target = rawURL + "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	if signed {
		token, err := c.generateToken(params.QueryString())
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Kind: ErrTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: ErrTransient, Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		logging.LogAPICall(c.logger, method, rawURL, resp.StatusCode, time.Since(start), nil)
		return payload, nil
	}

	apiErr := &APIError{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode}
	var eb errorBody
	if json.Unmarshal(payload, &eb) == nil && (eb.Error.Name != "" || eb.Error.Message != "") {
		apiErr.Code = eb.Error.Name
		apiErr.Message = eb.Error.Message
	} else {
		apiErr.Message = truncate(payload)
	}
	logging.LogAPICall(c.logger, method, rawURL, resp.StatusCode, time.Since(start), apiErr)
	return nil, apiErr
}

func truncate(b []byte) string {
	if len(b) > maxLoggedPayload {
		return string(b[:maxLoggedPayload]) + "..."
	}
	return string(b)
}
