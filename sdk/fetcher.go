package sdk

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Fetcher is the transport capability the Receiver delegates to.
// *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req)
func (f FetcherFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// NewHTTPFetcher creates a pooled *http.Client. No client-level timeout is set;
// deadlines come from the request context.
func NewHTTPFetcher(config TransportConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// rateLimitedFetcher waits on a token bucket before each request
type rateLimitedFetcher struct {
	next    Fetcher
	limiter *rate.Limiter
}

// NewRateLimitedFetcher wraps next so that at most r requests per second (with
// the given burst) reach it. Waiting honors the request's context.
//
// Example:
//
//	cc.Fetcher = sdk.NewRateLimitedFetcher(http.DefaultClient, rate.Limit(10), 5)
func NewRateLimitedFetcher(next Fetcher, r rate.Limit, burst int) Fetcher {
	return &rateLimitedFetcher{
		next:    next,
		limiter: rate.NewLimiter(r, burst),
	}
}

// Do blocks until the limiter allows the request, then forwards it
func (f *rateLimitedFetcher) Do(req *http.Request) (*http.Response, error) {
	if err := f.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return f.next.Do(req)
}
