// Package generator calls the external text-generation endpoint that produces recommendations.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NoResponse is returned in place of an empty response body.
const NoResponse = "No response from generator API"

const maxErrorBody = 2048

// Config describes the endpoint and the bounds placed on each Generate call.
type Config struct {
	APIURL         string
	APIKey         string
	RequestTimeout time.Duration
	Retry          RetryPolicy
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generator returned status %d: %s", e.Code, e.Body)
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client. The default wraps http.DefaultTransport with otelhttp.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client posts prompts to the generator.
type Client struct {
	endpoint   string
	timeout    time.Duration
	retry      RetryPolicy
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	endpoint, err := endpointURL(cfg.APIURL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	c := &Client{
		endpoint: endpoint,
		timeout:  cfg.RequestTimeout,
		retry:    cfg.Retry.normalised(),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func endpointURL(apiURL, apiKey string) (string, error) {
	if strings.TrimSpace(apiURL) == "" {
		return "", fmt.Errorf("generator api url is required")
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("parse generator api url: %w", err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// Generate sends prompt and returns the raw response body. Transient failures are retried
// according to the RetryPolicy; ctx bounds the whole call including backoff waits.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", fmt.Errorf("marshal generator request: %w", err)
	}
	if n := CountTokens(prompt); n >= 0 {
		promptTokens.Observe(float64(n))
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.retry.Delay(attempt - 1)
			c.logger.WarnContext(ctx, "retrying generator call",
				slog.Int("attempt", attempt), slog.Duration("delay", delay), slog.Any("error", lastErr))
			if err := sleep(ctx, delay); err != nil {
				return "", fmt.Errorf("generator retry aborted: %w", err)
			}
		}

		text, err := c.attempt(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	return "", lastErr
}

func (c *Client) attempt(ctx context.Context, body []byte) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	attemptDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		attemptCounter.WithLabelValues(outcomeTransport).Inc()
		return "", fmt.Errorf("generator request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		attemptCounter.WithLabelValues(outcomeTransport).Inc()
		return "", fmt.Errorf("read generator response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		attemptCounter.WithLabelValues(outcomeHTTPError).Inc()
		snippet := string(respBody)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return "", &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		attemptCounter.WithLabelValues(outcomeEmpty).Inc()
		return NoResponse, nil
	}
	attemptCounter.WithLabelValues(outcomeSuccess).Inc()
	return string(respBody), nil
}
