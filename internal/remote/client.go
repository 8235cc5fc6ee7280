// Package remote issues queries and mutations against the hosted
// discussion API. The service is eventually consistent: a successful
// mutation gives no guarantee the entity is already visible through
// the listing, and significant propagation latency is normal.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dailydrops/drops/pkg/config"
	"github.com/dailydrops/drops/pkg/logging"
	"github.com/dailydrops/drops/pkg/telemetry"
)

// CallError is returned when a remote call exhausted its retries or
// hit an unrecoverable status. Message carries the last observed
// failure.
type CallError struct {
	Message  string
	Attempts int
}

func (e *CallError) Error() string {
	return fmt.Sprintf("remote call failed: %s", e.Message)
}

// Client issues logical remote operations with retry and backoff for
// rate limiting and transient failures. It is stateless between
// invocations.
type Client struct {
	graphqlURL string
	restURL    string
	rawURL     string
	owner      string
	name       string
	categoryID string
	maxRetries int
	baseDelay  time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new remote client
func New(cfg *config.RemoteConfig) (*Client, error) {
	if cfg.GraphQLURL == "" {
		return nil, fmt.Errorf("remote_graphql_url is required")
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	logger := logging.GetLogger().With(zap.String("component", "remote-client"))

	client := &Client{
		graphqlURL: cfg.GraphQLURL,
		restURL:    cfg.RestURL,
		rawURL:     cfg.RawURL,
		owner:      cfg.Owner,
		name:       cfg.Name,
		categoryID: cfg.CategoryID,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	client.logger = logger

	logger.Info("Remote client initialized", zap.String("url", cfg.GraphQLURL))

	return client, nil
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Call performs one logical query or mutation. Rate-limit responses
// and application-level errors are retried up to maxRetries times;
// other non-2xx statuses fail immediately.
func (c *Client) Call(ctx context.Context, query string, variables map[string]interface{}, token string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.call")
	defer span.End()

	payload, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	lastMessage := "max retries exceeded"

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &CallError{Message: err.Error(), Attempts: attempt + 1}
		}

		// Rate limit signalled in response metadata
		if resp.Header.Get("X-RateLimit-Remaining") == "0" && attempt < c.maxRetries {
			reset := resp.Header.Get("X-RateLimit-Reset")
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			c.logger.Warn("Rate limited, backing off",
				zap.Int("attempt", attempt),
				zap.String("reset", reset))
			if err := c.sleep(ctx, c.rateLimitDelay(attempt, reset)); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, &CallError{Message: readErr.Error(), Attempts: attempt + 1}
		}

		var parsed graphqlResponse
		decodeErr := json.Unmarshal(body, &parsed)

		// Application-level errors alongside a successful transport
		// response are retryable
		if decodeErr == nil && len(parsed.Errors) > 0 {
			lastMessage = parsed.Errors[0].Message
			if attempt < c.maxRetries {
				c.logger.Warn("Remote call returned errors, retrying",
					zap.Int("attempt", attempt),
					zap.String("message", lastMessage))
				if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &CallError{Message: lastMessage, Attempts: attempt + 1}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			lastMessage = fmt.Sprintf("remote API responded with %d", resp.StatusCode)
			// 429 and 5xx carry retryable semantics; everything else
			// is unrecoverable
			retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			if retryable && attempt < c.maxRetries {
				if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &CallError{Message: lastMessage, Attempts: attempt + 1}
		}

		if decodeErr != nil {
			return nil, &CallError{Message: fmt.Sprintf("failed to decode response: %v", decodeErr), Attempts: attempt + 1}
		}

		return parsed.Data, nil
	}

	return nil, &CallError{Message: lastMessage, Attempts: c.maxRetries + 1}
}

func unmarshalData(data json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// backoff returns the pure exponential delay for an attempt
func (c *Client) backoff(attempt int) time.Duration {
	return c.baseDelay << uint(attempt)
}

// rateLimitDelay waits until the advertised reset time, clamped to at
// least the exponential minimum for this attempt
func (c *Client) rateLimitDelay(attempt int, resetHeader string) time.Duration {
	min := c.backoff(attempt)
	if resetHeader == "" {
		return min
	}
	resetUnix, err := strconv.ParseInt(resetHeader, 10, 64)
	if err != nil {
		return min
	}
	wait := time.Until(time.Unix(resetUnix, 0))
	if wait < min {
		return min
	}
	return wait
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
