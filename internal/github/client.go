package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

// PerPage is the page size requested from every list endpoint.
const PerPage = 100

// maxPages bounds list pagination for a single call.
const maxPages = 50

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	// Rate is the client-side request rate per second. Zero disables limiting.
	Rate    float64
	Burst   int
	Timeout time.Duration
	Retries int
}

// Meter receives one Charge per request and the server-reported remaining
// quota. engine.Governor implements it.
type Meter interface {
	Charge(n int)
	Observe(remaining int)
}

type noopMeter struct{}

func (noopMeter) Charge(int)  {}
func (noopMeter) Observe(int) {}

// Client talks to the GitHub API.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	meter   Meter
	logger  *slog.Logger
}

// ClientOption configures optional Client behavior.
type ClientOption func(*Client)

// WithMeter charges every request to m.
func WithMeter(m Meter) ClientOption {
	return func(c *Client) {
		c.meter = m
	}
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client from cfg.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	hc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28")
	if cfg.Token != "" {
		hc.SetAuthToken(cfg.Token)
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
		meter:   noopMeter{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs one request and decodes the JSON answer into out.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.meter.Charge(1)

	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		ForceContentType("application/json")
	if out != nil {
		req.SetResult(out)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.observe(resp)

	c.logger.Debug("github request",
		"method", method,
		"path", path,
		"status", resp.StatusCode(),
		"duration", resp.Time())

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.IsError():
		return &APIError{Method: method, Path: path, Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// observe reports X-RateLimit-Remaining to the meter when present.
func (c *Client) observe(resp *resty.Response) {
	v := resp.Header().Get("X-RateLimit-Remaining")
	if v == "" {
		return
	}
	remaining, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	c.meter.Observe(remaining)
}

// list follows page numbers until a short page.
func list[T any](ctx context.Context, c *Client, path string, query map[string]string) ([]T, error) {
	var all []T
	for page := 1; page <= maxPages; page++ {
		q := map[string]string{
			"per_page": strconv.Itoa(PerPage),
			"page":     strconv.Itoa(page),
		}
		for k, v := range query {
			q[k] = v
		}
		var batch []T
		if err := c.get(ctx, path, q, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < PerPage {
			break
		}
	}
	return all, nil
}
