// Package client talks to the EODMS RAPI image catalog: it resolves
// collections and their field catalogs, drives paginated searches, submits
// and tracks orders, and downloads delivered files.
//
// Every request goes through one transport that retries transient failures,
// grows the timeout after each timeout, and classifies every failure into a
// single *Error carrying a Kind.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/robert-malhotra/go-rapi-client/auth"
	"github.com/robert-malhotra/go-rapi-client/pkg/downloader"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

// DefaultBaseURL is the production RAPI root.
const DefaultBaseURL = "https://www.eodms-sgdot.nrcan-rncan.gc.ca/wes/rapi"

// Defaults of the transport, pagination and enrichment settings.
const (
	DefaultQueryTimeout     = 120 * time.Second
	DefaultOrderTimeout     = 180 * time.Second
	DefaultAttempts         = 4
	DefaultTimeoutIncrement = 60 * time.Second
	DefaultPageSize         = 1000
	DefaultSearchRetryDelay = 3 * time.Second
	DefaultWorkers          = 4
)

// Middleware manipulates an outgoing *http.Request before it is executed.
type Middleware func(context.Context, *http.Request) error

// Recorder receives client metrics. pkg/metrics provides a Prometheus
// implementation.
type Recorder interface {
	ObserveRequest(method, code string, d time.Duration)
	IncRetry(reason string)
	AddDownloadedBytes(n int64)
	IncOrderItems(status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, string, time.Duration) {}
func (nopRecorder) IncRetry(string)                              {}
func (nopRecorder) AddDownloadedBytes(int64)                     {}
func (nopRecorder) IncOrderItems(string)                         {}

// Client is a RAPI client. It is safe for concurrent use; per-search state
// lives in a Session.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	middleware []Middleware
	logger     *zap.Logger
	metrics    Recorder
	breaker    *gobreaker.CircuitBreaker

	username  string
	password  string
	userAgent string

	queryTimeout     time.Duration
	orderTimeout     time.Duration
	attempts         int
	timeoutIncrement time.Duration
	pageSize         int
	searchRetryDelay time.Duration
	workers          int

	downloader *downloader.Downloader
	now        func() time.Time
	authFailed atomic.Bool

	catalogMu   sync.RWMutex
	collections []*rapi.Collection
	fields      map[string]*rapi.Collection
	group       singleflight.Group
}

// NewClient creates a client for the RAPI rooted at baseURL. An empty
// baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if !u.IsAbs() {
		return nil, ErrInvalidBaseURL
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if u.RawPath != "" && !strings.HasSuffix(u.RawPath, "/") {
		u.RawPath += "/"
	}

	c := &Client{
		baseURL:          u,
		httpClient:       &http.Client{},
		logger:           zap.NewNop(),
		metrics:          nopRecorder{},
		queryTimeout:     DefaultQueryTimeout,
		orderTimeout:     DefaultOrderTimeout,
		attempts:         DefaultAttempts,
		timeoutIncrement: DefaultTimeoutIncrement,
		pageSize:         DefaultPageSize,
		searchRetryDelay: DefaultSearchRetryDelay,
		workers:          DefaultWorkers,
		now:              time.Now,
		fields:           make(map[string]*rapi.Collection),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}

	// Credentials and the user agent are injected below any caller transport
	// so the caller's *http.Client is never mutated.
	hc := *c.httpClient
	var rt http.RoundTripper = hc.Transport
	if c.username != "" {
		rt = &auth.BasicAuthTransport{Username: c.username, Password: c.password, Base: rt}
	}
	if c.userAgent != "" {
		rt = &auth.UserAgentTransport{Agent: c.userAgent, Base: rt}
	}
	hc.Transport = rt
	c.httpClient = &hc

	dopts := []downloader.Option{
		downloader.WithHTTPClient(c.httpClient),
		downloader.WithLogger(c.logger.Named("downloader")),
		downloader.WithRecorder(c.metrics),
	}
	c.downloader = downloader.New(dopts...)
	return c, nil
}

// AuthFailed reports whether the service has rejected the credentials. The
// flag is set by any 401 and cleared by a successful CheckAuth.
func (c *Client) AuthFailed() bool { return c.authFailed.Load() }

// BaseURL returns the RAPI root the client was created with.
func (c *Client) BaseURL() string { return strings.TrimSuffix(c.baseURL.String(), "/") }

// endpoint resolves p against the RAPI root and attaches q.
func (c *Client) endpoint(p string, q url.Values) string {
	u := c.baseURL.ResolveReference(&url.URL{Path: p})
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Transport
// -----------------------------------------------------------------------------

// do issues one logical request. Transient failures are retried up to the
// configured number of attempts, and every timeout grows the timeout used by
// the next attempt. Any other failure is returned immediately. body, when
// non-nil, is sent as JSON.
func (c *Client) do(ctx context.Context, method, rawURL string, body any, timeout time.Duration) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, &Error{Kind: KindUnknown, URL: rawURL, Err: fmt.Errorf("encode request body: %w", err)}
		}
	}

	log := c.logger.With(zap.String("method", method), zap.String("url", rawURL))
	log.Debug("sending request", zap.Duration("timeout", timeout))

	for attempt := 1; ; attempt++ {
		data, err := c.attempt(ctx, method, rawURL, payload, timeout)
		if err == nil {
			return data, nil
		}

		var e *Error
		if !errors.As(err, &e) {
			return nil, err
		}
		if e.Kind == KindAuth {
			c.authFailed.Store(true)
		}
		if e.Kind != KindTransient || attempt >= c.attempts {
			log.Debug("request failed", zap.Stringer("kind", e.Kind), zap.Int("attempt", attempt), zap.Error(e))
			return nil, e
		}

		reason := "transient"
		if e.timeout {
			timeout += c.timeoutIncrement
			reason = "timeout"
		}
		c.metrics.IncRetry(reason)
		log.Warn("request failed; retrying",
			zap.Int("attempt", attempt),
			zap.Int("attempts", c.attempts),
			zap.Duration("timeout", timeout),
			zap.Error(e))
	}
}

func (c *Client) attempt(ctx context.Context, method, rawURL string, payload []byte, timeout time.Duration) ([]byte, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, method, rawURL, payload, timeout)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		data, err := c.roundTrip(ctx, method, rawURL, payload, timeout)
		return data, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &Error{
			Kind:     KindTransient,
			URL:      rawURL,
			Messages: []string{"circuit breaker " + c.breaker.State().String() + "; request not sent."},
			Err:      err,
		}
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// roundTrip builds the request, runs middleware, executes it and classifies
// the outcome.
func (c *Client) roundTrip(ctx context.Context, method, rawURL string, payload []byte, timeout time.Duration) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, method, rawURL, body)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, URL: rawURL, Err: fmt.Errorf("error creating request for %s: %w", rawURL, err)}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, mw := range c.middleware {
		if err := mw(actx, req); err != nil {
			return nil, &Error{Kind: KindUnknown, URL: rawURL, Err: fmt.Errorf("error applying middleware for %s: %w", rawURL, err)}
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, "error", time.Since(start))
		return nil, transportError(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.ObserveRequest(method, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, transportError(ctx, rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, data, rawURL)
	}
	if bytes.Contains(data, maintenanceMarker) {
		return nil, &Error{
			Kind:       KindTransient,
			StatusCode: resp.StatusCode,
			URL:        rawURL,
			Messages:   []string{"the service is temporarily down for maintenance."},
		}
	}
	return data, nil
}

// transportError classifies a failure that produced no HTTP status. ctx is
// the caller's context, not the per-attempt one, so an attempt timeout is
// transient while caller cancellation is not.
func transportError(ctx context.Context, rawURL string, err error) *Error {
	if cerr := ctx.Err(); cerr != nil {
		return &Error{Kind: KindCanceled, URL: rawURL, Err: cerr}
	}
	if isTimeout(err) {
		return &Error{
			Kind:     KindTransient,
			URL:      rawURL,
			Messages: []string{"timeout while trying to reach URL " + rawURL + "."},
			Err:      err,
			timeout:  true,
		}
	}
	return &Error{
		Kind:     KindTransient,
		URL:      rawURL,
		Messages: []string{"connection error while trying to reach URL " + rawURL + "."},
		Err:      err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// getJSON performs a GET and decodes the JSON response into v.
func (c *Client) getJSON(ctx context.Context, rawURL string, timeout time.Duration, v any) error {
	data, err := c.do(ctx, http.MethodGet, rawURL, nil, timeout)
	if err != nil {
		return err
	}
	return decodeJSON(data, rawURL, v)
}

func decodeJSON(data []byte, rawURL string, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{
			Kind:     KindService,
			URL:      rawURL,
			Messages: []string{"response from " + rawURL + " is not valid JSON."},
			Err:      err,
		}
	}
	return nil
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
