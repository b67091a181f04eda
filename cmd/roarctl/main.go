package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roar-platform/assessment-sdk/internal/telemetry"
	"github.com/roar-platform/assessment-sdk/sdk"
	"github.com/roar-platform/assessment-sdk/sdk/auth"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "roarctl: %v\n", err)
		return exitUsage
	}

	tcfg := telemetry.NewConfigFromEnv()
	tcfg.LogLevel = opts.LogLevel
	if err := telemetry.Init(tcfg); err != nil {
		fmt.Fprintf(stderr, "roarctl: %v\n", err)
		return exitFailure
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.L().SetOutput(stderr)

	metrics := telemetry.NewMetricsObserver()
	if opts.MetricsAddr != "" {
		srv, err := telemetry.ServeMetrics(opts.MetricsAddr, metrics)
		if err != nil {
			telemetry.L().WithError(err).Error("Failed to start metrics listener")
			return exitFailure
		}
		telemetry.L().WithField("addr", srv.Addr()).Info("Serving metrics")
		lingerCtx := ctx
		defer func() {
			lingerMetrics(lingerCtx, opts.MetricsLinger)
			srv.Shutdown(context.Background())
		}()
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ctx, span := telemetry.StartSpan(ctx, "roarctl "+opts.Method)
	defer span.End()
	log := telemetry.WithContext(ctx)

	authProvider, closeAuth, err := buildAuth(ctx, opts, log)
	if err != nil {
		log.WithError(err).Error("Failed to set up authentication")
		return exitFailure
	}
	defer closeAuth()

	cc := sdk.CommandContext{
		BaseURL:  opts.BaseURL,
		Auth:     authProvider,
		Logger:   log,
		Observer: metrics,
	}
	if opts.RequestID {
		cc.RequestID = sdk.NewRequestID
	}
	if opts.RPS > 0 {
		cc.Fetcher = sdk.NewRateLimitedFetcher(sdk.NewHTTPFetcher(sdk.DefaultTransportConfig()), rate.Limit(opts.RPS), opts.Burst)
	}

	invokerOpts := sdk.DefaultInvokerOptions().
		WithRetries(opts.Retries).
		WithRetryDelay(opts.RetryDelay)
	if opts.TransientOnly {
		invokerOpts.WithShouldRetry(sdk.IsRetryable)
	}

	if _, err := sdk.Init(cc, invokerOpts); err != nil {
		fmt.Fprintf(stderr, "roarctl: %v\n", err)
		return exitUsage
	}

	out, err := execute(ctx, opts)

	if flushErr := telemetry.Flush(context.Background(), tcfg, metrics); flushErr != nil {
		log.WithError(flushErr).Warn("Failed to export metrics")
	}

	if err != nil {
		reportError(stderr, log, err)
		return exitFailure
	}

	if err := writeJSON(stdout, out); err != nil {
		fmt.Fprintf(stderr, "roarctl: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// lingerMetrics keeps the metrics listener up after the run so a scraper can
// collect the final values
func lingerMetrics(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// tokenStore is the part of auth.RedisStore roarctl needs
type tokenStore interface {
	GetToken(ctx context.Context) (string, error)
	Close() error
}

var openRedisStore = func(ctx context.Context) (tokenStore, error) {
	cfg, err := auth.NewRedisConfigFromEnv()
	if err != nil {
		return nil, err
	}
	store, err := auth.NewRedisStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// buildAuth returns the token provider selected by opts and a closer for any
// connection it holds
func buildAuth(ctx context.Context, opts *options, log logrus.FieldLogger) (sdk.AuthProvider, func() error, error) {
	noop := func() error { return nil }

	switch opts.TokenSource {
	case tokenSourceRedis:
		store, err := openRedisStore(ctx)
		if err != nil {
			return nil, noop, err
		}
		if !opts.JWT {
			return store, store.Close, nil
		}
		src, err := auth.NewJWTSource("", store.GetToken)
		if err != nil {
			store.Close()
			return nil, noop, err
		}
		return src, store.Close, nil

	default:
		if opts.Token == "" {
			return auth.None(), noop, nil
		}
		if !opts.JWT {
			return auth.Static(opts.Token), noop, nil
		}
		src, err := auth.NewJWTSource(opts.Token, nil)
		if err != nil {
			return nil, noop, err
		}
		if exp := src.Expiry(); !exp.IsZero() && time.Now().After(exp) {
			log.WithField("expired_at", exp.Format(time.RFC3339)).Warn("Token has expired; the backend will likely reject it")
		}
		return src, noop, nil
	}
}

// execute runs the request through the process-wide invoker
func execute(ctx context.Context, opts *options) (json.RawMessage, error) {
	invoker, err := sdk.GetInvoker()
	if err != nil {
		return nil, err
	}
	api, err := sdk.GetAPI()
	if err != nil {
		return nil, err
	}

	name := opts.Method + " " + opts.Endpoint
	endpoint := opts.Endpoint

	switch opts.Method {
	case http.MethodGet:
		return runCommand(ctx, invoker, sdk.Get[json.RawMessage](api, name, endpoint), opts.Query, opts.Idempotent)
	case http.MethodDelete:
		return runCommand(ctx, invoker, sdk.Delete[json.RawMessage](api, name, endpoint), opts.Query, opts.Idempotent)
	}

	if len(opts.Query) > 0 {
		endpoint += "?" + opts.Query.Encode()
	}
	switch opts.Method {
	case http.MethodPut:
		return runCommand(ctx, invoker, sdk.Put[json.RawMessage, json.RawMessage](api, name, endpoint), opts.Body, opts.Idempotent)
	case http.MethodPatch:
		return runCommand(ctx, invoker, sdk.Patch[json.RawMessage, json.RawMessage](api, name, endpoint), opts.Body, opts.Idempotent)
	default:
		return runCommand(ctx, invoker, sdk.Post[json.RawMessage, json.RawMessage](api, name, endpoint), opts.Body, opts.Idempotent)
	}
}

func runCommand[I any](ctx context.Context, invoker *sdk.Invoker, cmd sdk.Command[I, json.RawMessage], input I, idempotent *bool) (json.RawMessage, error) {
	if idempotent != nil {
		cmd = sdk.WithIdempotency(cmd, *idempotent)
	}
	return sdk.Run(ctx, invoker, cmd, input)
}

func writeJSON(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func reportError(w io.Writer, log logrus.FieldLogger, err error) {
	fmt.Fprintf(w, "roarctl: %v\n", err)

	entry := log.WithError(err)
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) && apiErr.RequestID != "" {
		fmt.Fprintf(w, "request id: %s\n", apiErr.RequestID)
		entry = entry.WithField("request_id", apiErr.RequestID)
	}
	entry.Error("Request failed")
}
