package sdk

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/roar-platform/assessment-sdk/sdk"

// Header names injected by the Receiver.
const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-Id"
)

// RequestOptions are per-request transport overrides.
type RequestOptions struct {
	// Method defaults to GET
	Method string
	// Header is copied onto the request before auth and tracing headers
	Header http.Header
	// Body is sent as-is
	Body io.Reader
	// Route is an optional low-cardinality path template such as
	// "/runs/{id}", used to name the request span
	Route string
}

// Receiver performs one outbound HTTP request with uniform header injection.
// It does not inspect status codes, parse bodies, retry or enforce timeouts;
// those concerns belong to commands and the Invoker.
type Receiver struct {
	cc      *CommandContext
	fetcher Fetcher
	tracer  trace.Tracer
}

// NewReceiver creates a Receiver bound to cc. The context is read, never
// modified.
func NewReceiver(cc *CommandContext) *Receiver {
	fetcher := cc.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(DefaultTransportConfig())
	}
	return &Receiver{
		cc:      cc,
		fetcher: fetcher,
		tracer:  otel.Tracer(instrumentationName),
	}
}

// BaseURL returns the prefix every endpoint is appended to
func (r *Receiver) BaseURL() string {
	return r.cc.BaseURL
}

// Request sends a request to BaseURL+endpoint. endpoint is appended verbatim,
// with no slash normalization.
//
// Caller headers from opts are applied first. Authorization: Bearer <token> is
// then set when the AuthProvider yields a non-empty token, and X-Request-Id
// when the RequestID generator yields a non-empty id; these take precedence
// over caller headers of the same name.
//
// The raw response is returned. Transport errors propagate unchanged; the
// caller owns the response body.
func (r *Receiver) Request(ctx context.Context, endpoint string, opts *RequestOptions) (*http.Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	fullURL := r.cc.BaseURL + endpoint

	// endpoint carries ids and query strings; it only goes in http.url
	spanName := method
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.url", fullURL),
	}
	if opts.Route != "" {
		spanName += " " + opts.Route
		attrs = append(attrs, attribute.String("http.route", opts.Route))
	}

	ctx, span := r.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, fullURL, opts.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, NewSDKError(CodeRequestFailed, "failed to create request", err)
	}

	for key, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	if r.cc.Auth != nil {
		token, err := r.cc.Auth.GetToken(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "token lookup failed")
			return nil, NewSDKError(CodeRequestFailed, "failed to get auth token", err)
		}
		if token != "" {
			req.Header.Set(HeaderAuthorization, "Bearer "+token)
		}
	}

	if r.cc.RequestID != nil {
		if id := r.cc.RequestID(); id != "" {
			req.Header.Set(HeaderRequestID, id)
			span.SetAttributes(attribute.String("http.request_id", id))
		}
	}

	start := time.Now()
	resp, err := r.fetcher.Do(req)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.cc.observer().OnRequestEnd(method, fullURL, duration, 0, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
	}
	r.cc.observer().OnRequestEnd(method, fullURL, duration, resp.StatusCode, nil)
	return resp, nil
}
