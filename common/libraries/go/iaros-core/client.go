// Package client is a small, context-aware HTTP client wrapper shared
// by callers that need retry-with-backoff and circuit breaking without
// pulling in resty (resty is reserved for the dispatch transports).
// Adapted from the teacher's shared IAROS HTTP client: the logger is
// now an injected dependency rather than constructed inside NewClient,
// and every request takes a context.Context so callers can cancel an
// in-flight call, per this core's cancellation-propagation requirement.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds construction options for an HTTPClient.
type Config struct {
	Timeout         time.Duration
	Retries         int
	CircuitBreaker  bool
	RetryInterval   time.Duration
	MaxIdleConns    int
	MaxConnsPerHost int
	UserAgent       string
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = time.Second
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxConnsPerHost == 0 {
		c.MaxConnsPerHost = 10
	}
	if c.UserAgent == "" {
		c.UserAgent = "aurum-solar-core/1.0"
	}
	return c
}

// HTTPClient wraps net/http with retry, an optional circuit breaker,
// and JSON convenience methods.
type HTTPClient struct {
	client         *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	config         Config
	logger         *zap.Logger
}

// NewHTTPClient builds an HTTPClient. log may be nil (defaults to a
// no-op logger); callers thread in the same *zap.Logger the rest of
// the service uses rather than constructing their own.
func NewHTTPClient(name string, config Config, log *zap.Logger) *HTTPClient {
	config = config.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	transport := &http.Transport{
		MaxIdleConns:    config.MaxIdleConns,
		MaxConnsPerHost: config.MaxConnsPerHost,
		IdleConnTimeout: 90 * time.Second,
	}
	httpClient := &http.Client{Transport: transport, Timeout: config.Timeout}

	c := &HTTPClient{client: httpClient, config: config, logger: log}

	if config.CircuitBreaker {
		c.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 2
			},
			OnStateChange: func(n string, from, to gobreaker.State) {
				log.Info("circuit breaker state change", zap.String("name", n), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
	}
	return c
}

// Response is the outcome of a successful round-trip.
type Response struct {
	StatusCode int
	Body       []byte
}

// GetJSON issues a GET and unmarshals the response body into target.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, target interface{}, headers map[string]string) error {
	resp, err := c.do(ctx, http.MethodGet, url, nil, headers)
	if err != nil {
		return err
	}
	return json.Unmarshal(resp.Body, target)
}

// PostJSON issues a POST with a JSON-marshaled body and unmarshals the
// response body into target (target may be nil to discard the body).
func (c *HTTPClient) PostJSON(ctx context.Context, url string, body interface{}, target interface{}, headers map[string]string) error {
	resp, err := c.do(ctx, http.MethodPost, url, body, headers)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return json.Unmarshal(resp.Body, target)
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body interface{}, headers map[string]string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		var requestBody io.Reader
		if body != nil {
			bodyBytes, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("client: marshal request body: %w", err)
			}
			requestBody = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, requestBody)
		if err != nil {
			return nil, fmt.Errorf("client: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.config.UserAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.send(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("request failed", zap.String("method", method), zap.String("url", url), zap.Int("attempt", attempt+1), zap.Error(err))
			if attempt < c.config.Retries {
				c.sleep(ctx, attempt)
				continue
			}
			break
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("client: read response body: %w", err)
			if attempt < c.config.Retries {
				c.sleep(ctx, attempt)
				continue
			}
			break
		}

		if resp.StatusCode >= 500 && attempt < c.config.Retries {
			lastErr = fmt.Errorf("client: server error %d", resp.StatusCode)
			c.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("client: http error %d %s", resp.StatusCode, resp.Status)
		}

		return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
	}

	return nil, fmt.Errorf("client: request failed after %d attempts: %w", c.config.Retries+1, lastErr)
}

func (c *HTTPClient) send(req *http.Request) (*http.Response, error) {
	if c.circuitBreaker == nil {
		return c.client.Do(req)
	}
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.client.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

func (c *HTTPClient) sleep(ctx context.Context, attempt int) {
	select {
	case <-time.After(c.config.RetryInterval * time.Duration(attempt+1)):
	case <-ctx.Done():
	}
}

// Close releases idle connections.
func (c *HTTPClient) Close() {
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
