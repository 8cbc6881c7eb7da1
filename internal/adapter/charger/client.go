// Package charger fetches per-port OCPP logs from the charging platform API.
package charger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/ocpp-log-etl/internal/config"
	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
	"github.com/couchcryptid/ocpp-log-etl/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// StatusError is a non-200 response from the log source.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("log source error: status %d: %s", e.StatusCode, e.Body)
}

// Client implements pipeline.LogSource against the charger-port logs API.
type Client struct {
	baseURL        string
	token          string
	pageLimit      int
	organizationID string
	retries        int
	backoff        time.Duration

	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a log source client from the service configuration.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:        cfg.LogSourceBaseURL,
		token:          cfg.LogSourceToken,
		pageLimit:      cfg.LogSourcePageLimit,
		organizationID: cfg.OrganizationID,
		retries:        cfg.FetchRetries,
		backoff:        initialBackoff,
		httpClient: &http.Client{
			Timeout: cfg.LogSourceTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.LogSourceRate), 1),
		metrics: metrics,
		logger:  logger,
	}
}

// FetchLogs returns the most recent log page for port, in source order.
// Every line is tagged with the port's post id, status and the organization.
func (c *Client) FetchLogs(ctx context.Context, port domain.ChargerPort) ([]domain.RawLogLine, error) {
	u := fmt.Sprintf("%s/%s/logs", c.baseURL, url.PathEscape(port.PortID))
	params := url.Values{
		"limit":  {strconv.Itoa(c.pageLimit)},
		"offset": {"0"},
	}

	entries, err := c.getWithRetry(ctx, u+"?"+params.Encode(), port.PortID)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.RawLogLine, len(entries))
	for i, e := range entries {
		lines[i] = domain.RawLogLine{
			PortID:         port.PortID,
			PostID:         port.PostID,
			Status:         port.Status,
			OrganizationID: c.organizationID,
			Timestamp:      e.Timestamp,
			Message:        e.Msg,
		}
	}
	return lines, nil
}

func (c *Client) getWithRetry(ctx context.Context, fullURL, portID string) ([]domain.LogEntry, error) {
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		entries, err := c.doRequest(ctx, fullURL)
		if err == nil {
			c.metrics.FetchRequests.WithLabelValues("success").Inc()
			return entries, nil
		}
		if attempt >= c.retries || !retryable(err) || ctx.Err() != nil {
			c.metrics.FetchRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("fetch logs for port %s: %w", portID, err)
		}

		c.metrics.FetchRequests.WithLabelValues("retry").Inc()
		c.logger.Warn("log source request failed, retrying",
			"port_id", portID,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)
		if !sleepWithContext(ctx, backoff) {
			return nil, fmt.Errorf("fetch logs for port %s: %w", portID, ctx.Err())
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.LogEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("token-authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("logs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var entries []domain.LogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return entries, nil
}

// retryable reports whether err is a transport failure or a 5xx response.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return !errors.As(err, &syntax) && !errors.As(err, &typeErr)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
