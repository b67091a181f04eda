package sdk

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// AuthProvider supplies the bearer token for outbound requests. GetToken is
// called fresh on every request; the core never caches its result. An empty
// token means "no token" and no Authorization header is sent.
type AuthProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// TokenRefresher may additionally be implemented by an AuthProvider.
//
// The Invoker and Receiver never call RefreshToken; it is an extension point
// for callers that want to react to 401 responses themselves.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) (string, error)
}

// AuthFuncs adapts plain functions to AuthProvider and TokenRefresher.
// Either field may be nil.
//
// Example:
//
//	cc.Auth = sdk.AuthFuncs{
//	    Get: func(ctx context.Context) (string, error) { return store.Current(), nil },
//	}
type AuthFuncs struct {
	Get     func(ctx context.Context) (string, error)
	Refresh func(ctx context.Context) (string, error)
}

// GetToken calls Get, returning "" when Get is nil
func (a AuthFuncs) GetToken(ctx context.Context) (string, error) {
	if a.Get == nil {
		return "", nil
	}
	return a.Get(ctx)
}

// RefreshToken calls Refresh, returning "" when Refresh is nil
func (a AuthFuncs) RefreshToken(ctx context.Context) (string, error) {
	if a.Refresh == nil {
		return "", nil
	}
	return a.Refresh(ctx)
}

// NewRequestID returns a random UUID. It can be used as CommandContext.RequestID.
func NewRequestID() string {
	return uuid.NewString()
}

// CommandContext holds the configuration and runtime dependencies shared by all
// commands in a session. It is constructed once by the caller and is never
// modified by the Invoker or Receiver.
//
// Only BaseURL is required:
//
//	cc := sdk.CommandContext{
//	    BaseURL:   "https://api.example.org/v1",
//	    Auth:      auth.Static(os.Getenv("ROAR_TOKEN")),
//	    RequestID: sdk.NewRequestID,
//	    Logger:    logrus.StandardLogger(),
//	}
type CommandContext struct {
	// BaseURL is the absolute URL prefix for every request. Endpoints are
	// appended verbatim, so trailing slashes are the caller's concern.
	BaseURL string

	// Auth supplies bearer tokens. If nil, no Authorization header is sent.
	Auth AuthProvider

	// RequestID produces a per-request trace identifier sent as X-Request-Id.
	// If nil, or if it returns "", no header is sent.
	RequestID func() string

	// Fetcher overrides the transport. If nil, a pooled *http.Client built
	// from DefaultTransportConfig is used.
	Fetcher Fetcher

	// Logger receives attempt-level logs. If nil, logs are discarded.
	Logger Logger

	// Observer receives attempt, retry and request hooks. If nil,
	// NoopObserver is used.
	Observer Observer
}

// Validate checks that BaseURL is an absolute URL with a scheme and host.
func (c *CommandContext) Validate() error {
	if c.BaseURL == "" {
		return NewSDKError(CodeInvalidConfig, "base URL cannot be empty", nil)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return NewSDKError(CodeInvalidConfig, "invalid base URL", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return NewSDKError(CodeInvalidConfig, fmt.Sprintf("base URL %q must have a scheme and host", c.BaseURL), nil)
	}
	return nil
}

func (c *CommandContext) logger() Logger {
	if c.Logger == nil {
		return NoopLogger{}
	}
	return c.Logger
}

func (c *CommandContext) observer() Observer {
	if c.Observer == nil {
		return NoopObserver{}
	}
	return c.Observer
}

// InvokerOptions holds the retry policy applied by an Invoker.
//
// Example:
//
//	opts := sdk.DefaultInvokerOptions().
//	    WithRetries(5).
//	    WithRetryDelay(250 * time.Millisecond)
type InvokerOptions struct {
	// Retries is the number of additional attempts after the first for
	// idempotent commands. Non-idempotent commands never retry.
	// Default: 3
	Retries int

	// RetryDelay is the fixed delay between attempts. There is no backoff
	// growth and no jitter.
	// Default: 1s
	RetryDelay time.Duration

	// ShouldRetry, when set, is consulted after each failed attempt of an
	// idempotent command; returning false ends the run early. When nil every
	// error is retried.
	ShouldRetry func(err error) bool
}

// DefaultInvokerOptions returns 3 retries with a fixed 1s delay.
func DefaultInvokerOptions() *InvokerOptions {
	return &InvokerOptions{
		Retries:    3,
		RetryDelay: 1000 * time.Millisecond,
	}
}

// WithRetries sets the number of additional attempts for idempotent commands
func (o *InvokerOptions) WithRetries(retries int) *InvokerOptions {
	o.Retries = retries
	return o
}

// WithRetryDelay sets the fixed delay between attempts
func (o *InvokerOptions) WithRetryDelay(delay time.Duration) *InvokerOptions {
	o.RetryDelay = delay
	return o
}

// WithShouldRetry installs a predicate that can stop retries early
func (o *InvokerOptions) WithShouldRetry(fn func(err error) bool) *InvokerOptions {
	o.ShouldRetry = fn
	return o
}

// normalize clamps negative values to zero
func (o *InvokerOptions) normalize() {
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
}

// TransportConfig holds connection pooling settings for the default Fetcher.
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	// across all hosts. Zero means no limit.
	// Default: 100
	MaxIdleConns int

	// MaxConnsPerHost controls the maximum connections per host.
	// Default: 10
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum time an idle connection will remain idle
	// before closing itself. Zero means no limit.
	// Default: 90s
	IdleConnTimeout time.Duration
}

// DefaultTransportConfig returns the pooling settings used by the default Fetcher
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
	}
}
