// Package remote is the resilient HTTP client for the remote commerce API.
//
// Every call goes through the same path: a bounded wait for a global and a
// per-tenant concurrency slot, tenant authentication from the credential cache,
// per-attempt timeouts, and bounded retries with exponential backoff. 429
// responses are deferred by the server's Retry-After or RateLimit hint and
// count against the same retry budget.
package remote

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
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/semaphore"

	"order-engine/internal/adapter"
	"order-engine/internal/model"
)

// userAgent identifies this client to the remote API.
const userAgent = "order-engine/1.0"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

var errQueueFull = errors.New("remote queue full")

// Credentials supplies per-tenant authentication.
type Credentials interface {
	Get(ctx context.Context, tenantID string) (model.TenantCredential, error)
}

// invalidator is implemented by credential stores that can drop a cached secret.
type invalidator interface {
	Invalidate(tenantID string)
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration // per attempt
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	MaxConcurrent int
	MaxPerTenant  int
	QueueWait     time.Duration
	MinAPIVersion string

	Transport  http.RoundTripper     // nil uses http.DefaultTransport
	Registerer prometheus.Registerer // nil skips Prometheus registration
	Logger     *slog.Logger

	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client implements adapter.Commerce over HTTP.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	creds       Credentials
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	queueWait   time.Duration
	minVersion  string

	global       *semaphore.Weighted
	maxPerTenant int64
	tenantMu     sync.Mutex
	tenantSems   map[string]*semaphore.Weighted

	metrics *Metrics
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// New creates a Client. creds resolves tenant credentials for every call.
func New(cfg Config, creds Credentials) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid remote base URL: %w", err)
	}
	if creds == nil {
		return nil, fmt.Errorf("credentials are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 64
	}
	if cfg.MaxPerTenant <= 0 || cfg.MaxPerTenant > cfg.MaxConcurrent {
		cfg.MaxPerTenant = cfg.MaxConcurrent
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}

	minVersion := ""
	if cfg.MinAPIVersion != "" {
		minVersion = normalizeVersion(cfg.MinAPIVersion)
		if !semver.IsValid(minVersion) {
			return nil, fmt.Errorf("invalid minimum API version %q", cfg.MinAPIVersion)
		}
	}

	return &Client{
		// Per-attempt deadlines come from the request context, not the client.
		httpClient:   &http.Client{Transport: cfg.Transport},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		creds:        creds,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		baseBackoff:  cfg.BaseBackoff,
		maxBackoff:   cfg.MaxBackoff,
		queueWait:    cfg.QueueWait,
		minVersion:   minVersion,
		global:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		maxPerTenant: int64(cfg.MaxPerTenant),
		tenantSems:   make(map[string]*semaphore.Weighted),
		metrics:      NewMetrics(cfg.Registerer),
		logger:       cfg.Logger,
		sleep:        cfg.Sleep,
		now:          time.Now,
	}, nil
}

// Stats returns a snapshot of attempt counters.
func (c *Client) Stats() Stats {
	return c.metrics.Snapshot()
}

// call describes one logical API operation.
type call struct {
	op      string
	tenant  string
	method  string
	path    string
	query   url.Values
	body    any
	headers http.Header
}

// envelope is the remote's response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// attemptResult classifies one HTTP exchange.
type attemptResult struct {
	retryable bool
	wait      time.Duration // server-requested delay, 0 means use backoff
	err       error
}

// do executes c with retries and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	cred, err := c.creds.Get(ctx, cl.tenant)
	if err != nil {
		return fmt.Errorf("%s: tenant credential: %w", cl.op, err)
	}

	var payload []byte
	if cl.body != nil {
		payload, err = json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", cl.op, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		release, err := c.acquire(ctx, cl.tenant)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s: %w", cl.op, ctx.Err())
			}
			c.metrics.observeShed(cl.op)
			c.logger.Warn("remote request shed", "op", cl.op, "tenant", cl.tenant, "queue_wait", c.queueWait)
			return model.NewRemoteUnavailableError(cl.op, errQueueFull)
		}

		start := time.Now()
		res := c.attempt(ctx, cl, cred, payload, out)
		latency := time.Since(start)
		release()

		if res.err == nil {
			c.metrics.observe(cl.op, outcomeSuccess, latency)
			return nil
		}
		if !res.retryable {
			c.metrics.observe(cl.op, outcomeRejected, latency)
			if errors.Is(res.err, model.ErrRemoteRejected) {
				c.logger.Warn("remote rejected request", "op", cl.op, "tenant", cl.tenant, "error", res.err)
			}
			return res.err
		}
		if ctx.Err() != nil {
			c.metrics.observe(cl.op, outcomeFailed, latency)
			return fmt.Errorf("%s: %w", cl.op, ctx.Err())
		}

		lastErr = res.err
		if attempt == c.maxRetries {
			c.metrics.observe(cl.op, outcomeFailed, latency)
			break
		}
		c.metrics.observe(cl.op, outcomeRetry, latency)

		wait := c.backoff(attempt)
		if res.wait > 0 {
			wait = min(res.wait, c.maxBackoff)
		}
		c.logger.Warn("remote attempt failed, retrying",
			"op", cl.op, "tenant", cl.tenant, "attempt", attempt+1, "wait", wait, "error", res.err)
		if err := c.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s: %w", cl.op, err)
		}
	}

	c.logger.Error("remote retries exhausted", "op", cl.op, "tenant", cl.tenant, "attempts", c.maxRetries+1, "error", lastErr)
	return model.NewRemoteUnavailableError(cl.op, lastErr)
}

// attempt performs one HTTP exchange under the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, cl call, cred model.TenantCredential, payload []byte, out any) attemptResult {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, cl.method, u, body)
	if err != nil {
		return attemptResult{err: fmt.Errorf("%s: creating request: %w", cl.op, err)}
	}
	c.setHeaders(req, cred, cl.headers)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures and per-attempt timeouts are both retryable.
		return attemptResult{retryable: true, err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return attemptResult{retryable: true, err: fmt.Errorf("reading response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait, _ := retryAfter(resp.Header, c.now())
		return attemptResult{retryable: true, wait: wait, err: fmt.Errorf("status 429: rate limited")}
	case resp.StatusCode >= 500:
		return attemptResult{retryable: true, err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.creds.(invalidator); ok {
				inv.Invalidate(cl.tenant)
			}
		}
		var env envelope
		_ = json.Unmarshal(data, &env) // best effort for the message
		return attemptResult{err: model.NewRemoteRejectedError(cl.op, resp.StatusCode, env.Message)}
	}

	if err := c.checkVersion(resp.Header.Get("API-Version")); err != nil {
		return attemptResult{err: model.NewRemoteRejectedError(cl.op, resp.StatusCode, err.Error())}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return attemptResult{err: model.NewRemoteRejectedError(cl.op, resp.StatusCode, "malformed response envelope")}
	}
	if env.Status != "success" {
		return attemptResult{err: model.NewRemoteRejectedError(cl.op, resp.StatusCode, env.Message)}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return attemptResult{err: model.NewRemoteRejectedError(cl.op, resp.StatusCode, "malformed response data")}
		}
	}
	return attemptResult{}
}

func (c *Client) setHeaders(req *http.Request, cred model.TenantCredential, extra http.Header) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Tenant", cred.Subdomain)
	req.Header.Set("Authorization", "Bearer "+cred.Secret)
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

// checkVersion rejects responses from an API older than the configured minimum.
// A missing or non-semver header is accepted.
func (c *Client) checkVersion(v string) error {
	if c.minVersion == "" || v == "" {
		return nil
	}
	got := normalizeVersion(v)
	if !semver.IsValid(got) {
		return nil
	}
	if semver.Compare(got, c.minVersion) < 0 {
		return fmt.Errorf("API version %s is older than required %s", got, c.minVersion)
	}
	return nil
}

// acquire takes a tenant slot and a global slot, waiting at most queueWait.
func (c *Client) acquire(ctx context.Context, tenant string) (func(), error) {
	waitCtx := ctx
	if c.queueWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.queueWait)
		defer cancel()
	}

	ts := c.tenantSem(tenant)
	if err := ts.Acquire(waitCtx, 1); err != nil {
		return nil, err
	}
	if err := c.global.Acquire(waitCtx, 1); err != nil {
		ts.Release(1)
		return nil, err
	}
	return func() {
		c.global.Release(1)
		ts.Release(1)
	}, nil
}

func (c *Client) tenantSem(tenant string) *semaphore.Weighted {
	c.tenantMu.Lock()
	defer c.tenantMu.Unlock()
	s, ok := c.tenantSems[tenant]
	if !ok {
		s = semaphore.NewWeighted(c.maxPerTenant)
		c.tenantSems[tenant] = s
	}
	return s
}

// backoff returns base × 2^attempt, capped at maxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.maxBackoff {
			return c.maxBackoff
		}
	}
	return min(d, c.maxBackoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// normalizeVersion adds the "v" prefix semver expects.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}

var _ adapter.Commerce = (*Client)(nil)
