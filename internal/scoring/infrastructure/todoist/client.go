// Package todoist reads and rescores tasks through the Todoist REST API.
package todoist

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
	"time"

	"github.com/felixgeelhaar/icesync/internal/scoring/domain"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.todoist.com/rest/v2"

const defaultTimeout = 15 * time.Second

// maxErrorBody bounds how much of a failed response is kept in an APIError.
const maxErrorBody = 512

var (
	ErrMissingToken = errors.New("todoist api token not configured")
	ErrCircuitOpen  = errors.New("todoist circuit breaker is open")
)

// APIError is a non-2xx response from the task service.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("todoist API %s %s failed: status=%d body=%s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether the failure is worth counting against the breaker.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// BreakerConfig configures the circuit breaker around task service calls.
type BreakerConfig struct {
	// Enabled turns the breaker on.
	Enabled bool

	// MaxRequests is the maximum number of requests allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// Timeout is the period of the open state.
	Timeout time.Duration

	// FailureThreshold trips the breaker after this many consecutive failures.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns a sensible default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Client talks to the Todoist REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[any]
	logger     *slog.Logger
}

// NewClient creates a Todoist client authenticated with an API token.
func NewClient(token string, logger *slog.Logger) (*Client, error) {
	return NewClientWithBaseURL(token, logger, defaultBaseURL)
}

// NewClientWithBaseURL creates a Todoist client with a custom base URL.
func NewClientWithBaseURL(token string, logger *slog.Logger, baseURL string) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &oauthTransport{
				base:   http.DefaultTransport,
				source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			},
		},
		baseURL: baseURL,
		logger:  logger,
	}
	return c.WithBreaker(DefaultBreakerConfig()), nil
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithBreaker replaces the circuit breaker. A disabled config removes it.
func (c *Client) WithBreaker(cfg BreakerConfig) *Client {
	if !cfg.Enabled {
		c.breaker = nil
		return c
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}

	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "todoist",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && !apiErr.Temporary()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c
}

// BreakerState returns the breaker state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// ListTasks returns the active tasks matching a Todoist filter expression.
func (c *Client) ListTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	params := url.Values{}
	if filter != "" {
		params.Set("filter", filter)
	}
	listURL := c.baseURL + "/tasks"
	if len(params) > 0 {
		listURL += "?" + params.Encode()
	}

	result, err := c.execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, responseError(req, resp)
		}

		var tasks []domain.Task
		if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	tasks, _ := result.([]domain.Task)
	return tasks, nil
}

// UpdateTask writes a new title and priority for a task in one request.
func (c *Client) UpdateTask(ctx context.Context, id string, update domain.TaskUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	updateURL := fmt.Sprintf("%s/tasks/%s", c.baseURL, url.PathEscape(id))

	_, err = c.execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, updateURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, responseError(req, resp)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	})
	return err
}

func (c *Client) execute(fn func() (any, error)) (any, error) {
	if c.breaker == nil {
		return fn()
	}
	result, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return result, err
}

func responseError(req *http.Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       string(bytes.TrimSpace(body)),
	}
}

type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	token.SetAuthHeader(req)
	return t.base.RoundTrip(req)
}
