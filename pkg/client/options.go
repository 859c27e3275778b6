package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ClientOption configures a Client during construction.
type ClientOption func(*Client) error

// WithCredentials sets the HTTP Basic credentials sent with every request.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithHTTPClient injects a custom http.Client. The client is copied, never
// mutated.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpClient == nil {
			return ErrNilHTTPClient
		}
		c.httpClient = httpClient
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(agent string) ClientOption {
	return func(c *Client) error {
		c.userAgent = agent
		return nil
	}
}

// WithMiddleware registers one or more request-middleware functions.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) error {
		c.middleware = append(c.middleware, mw...)
		return nil
	}
}

// WithLogger sets the logger. Components log through named children of it.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

func positiveDuration(name string, d time.Duration, dst *time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("rapi: %s must be positive, got %s", name, d)
	}
	*dst = d
	return nil
}

// WithQueryTimeout sets the initial timeout of search, catalog and lookup
// requests.
func WithQueryTimeout(d time.Duration) ClientOption {
	return func(c *Client) error { return positiveDuration("query timeout", d, &c.queryTimeout) }
}

// WithOrderTimeout sets the initial timeout of order submissions.
func WithOrderTimeout(d time.Duration) ClientOption {
	return func(c *Client) error { return positiveDuration("order timeout", d, &c.orderTimeout) }
}

// WithTimeoutIncrement sets how much each timeout grows the next attempt's
// timeout.
func WithTimeoutIncrement(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("rapi: timeout increment must not be negative, got %s", d)
		}
		c.timeoutIncrement = d
		return nil
	}
}

// WithAttempts sets how many times a request is tried before a transient
// failure is returned.
func WithAttempts(n int) ClientOption {
	return func(c *Client) error {
		if n < 1 {
			return fmt.Errorf("rapi: attempts must be at least 1, got %d", n)
		}
		c.attempts = n
		return nil
	}
}

// WithPageSize sets the number of results requested per search page.
func WithPageSize(n int) ClientOption {
	return func(c *Client) error {
		if n < 1 {
			return fmt.Errorf("rapi: page size must be at least 1, got %d", n)
		}
		c.pageSize = n
		return nil
	}
}

// WithSearchRetryDelay sets the pause before a search page is retried after
// a transient failure.
func WithSearchRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("rapi: search retry delay must not be negative, got %s", d)
		}
		c.searchRetryDelay = d
		return nil
	}
}

// WithWorkers bounds the concurrency of record enrichment.
func WithWorkers(n int) ClientOption {
	return func(c *Client) error {
		if n < 1 {
			return fmt.Errorf("rapi: workers must be at least 1, got %d", n)
		}
		c.workers = n
		return nil
	}
}

// WithCircuitBreaker wraps every transport attempt in a circuit breaker.
// When st.IsSuccessful is nil only transient and 500 failures count
// against the breaker.
func WithCircuitBreaker(st gobreaker.Settings) ClientOption {
	return func(c *Client) error {
		if st.Name == "" {
			st.Name = "rapi"
		}
		if st.IsSuccessful == nil {
			st.IsSuccessful = func(err error) bool {
				k := kindOf(err)
				return err == nil || (k != KindTransient && k != KindServer)
			}
		}
		if st.OnStateChange == nil {
			st.OnStateChange = func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		}
		c.breaker = gobreaker.NewCircuitBreaker(st)
		return nil
	}
}

// DefaultBreakerSettings trips after five requests with at least 60%
// failures and probes again after 30 seconds.
func DefaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "rapi",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && ratio >= 0.6
		},
	}
}

// WithMetrics reports request, retry, download and order metrics to r.
func WithMetrics(r Recorder) ClientOption {
	return func(c *Client) error {
		if r != nil {
			c.metrics = r
		}
		return nil
	}
}
