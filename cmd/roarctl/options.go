package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const usageHeader = `roarctl runs one request against the assessment backend through the SDK invoker.

Usage:
  roarctl [flags] METHOD ENDPOINT [JSON_BODY]

Examples:
  roarctl GET /administrations --query page=1
  roarctl --retries 5 POST /runs '{"assignmentId":"a1"}' --idempotent=true

Flags:
`

// tokenSource selects where bearer tokens come from
type tokenSource string

const (
	tokenSourceStatic tokenSource = "static"
	tokenSourceRedis  tokenSource = "redis"
)

type options struct {
	BaseURL       string
	Token         string
	TokenSource   tokenSource
	JWT           bool
	Retries       int
	RetryDelay    time.Duration
	TransientOnly bool
	Idempotent    *bool
	RPS           float64
	Burst         int
	Timeout       time.Duration
	LogLevel      string
	RequestID     bool
	MetricsAddr   string
	MetricsLinger time.Duration

	Method   string
	Endpoint string
	Query    url.Values
	Body     json.RawMessage
}

// parseOptions reads flags, env fallbacks and the positional
// METHOD ENDPOINT [JSON_BODY] arguments. Usage text goes to usageOut.
func parseOptions(args []string, usageOut io.Writer) (*options, error) {
	fs := pflag.NewFlagSet("roarctl", pflag.ContinueOnError)
	fs.SetInterspersed(true)
	if usageOut != nil {
		fs.SetOutput(usageOut)
	}
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageHeader)
		fs.PrintDefaults()
	}

	opts := &options{}
	var (
		tokenSrc   string
		idempotent string
		query      []string
	)

	fs.StringVar(&opts.BaseURL, "base-url", getEnv("ROAR_BASE_URL", ""), "backend base URL (env ROAR_BASE_URL)")
	fs.StringVar(&opts.Token, "token", os.Getenv("ROAR_TOKEN"), "static bearer token (env ROAR_TOKEN)")
	fs.StringVar(&tokenSrc, "token-source", getEnv("ROAR_TOKEN_SOURCE", string(tokenSourceStatic)), "where tokens come from: static or redis (REDIS_* env)")
	fs.BoolVar(&opts.JWT, "jwt", getEnvBool("ROAR_TOKEN_JWT", false), "treat tokens as JWTs and refresh them before they expire")
	fs.IntVar(&opts.Retries, "retries", getEnvInt("ROAR_RETRIES", 3), "additional attempts for idempotent commands")
	fs.DurationVar(&opts.RetryDelay, "retry-delay", getEnvDuration("ROAR_RETRY_DELAY", time.Second), "fixed delay between attempts")
	fs.BoolVar(&opts.TransientOnly, "transient-only", false, "stop retrying on non-transient errors such as 4xx responses")
	fs.StringVar(&idempotent, "idempotent", "auto", "override retry eligibility: auto, true or false")
	fs.Float64Var(&opts.RPS, "rps", 0, "client-side request rate limit per second (0 disables)")
	fs.IntVar(&opts.Burst, "burst", 1, "rate limiter burst size")
	fs.DurationVar(&opts.Timeout, "timeout", 0, "overall deadline for the run (0 disables)")
	fs.StringVar(&opts.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	fs.BoolVar(&opts.RequestID, "request-id", true, "send a random X-Request-Id with every request")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", getEnv("ROAR_METRICS_ADDR", ""), "serve Prometheus metrics on this address while running, e.g. :9464")
	fs.DurationVar(&opts.MetricsLinger, "metrics-linger", 0, "keep serving metrics this long after the request finishes")
	fs.StringArrayVarP(&query, "query", "q", nil, "query parameter key=value (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch tokenSource(tokenSrc) {
	case tokenSourceStatic, tokenSourceRedis:
		opts.TokenSource = tokenSource(tokenSrc)
	default:
		return nil, fmt.Errorf("invalid --token-source %q: must be static or redis", tokenSrc)
	}

	switch idempotent {
	case "auto":
	case "true", "false":
		v := idempotent == "true"
		opts.Idempotent = &v
	default:
		return nil, fmt.Errorf("invalid --idempotent %q: must be auto, true or false", idempotent)
	}

	if opts.BaseURL == "" {
		return nil, errors.New("--base-url or ROAR_BASE_URL is required")
	}
	if opts.RPS < 0 {
		return nil, errors.New("--rps cannot be negative")
	}
	if opts.MetricsLinger < 0 {
		return nil, errors.New("--metrics-linger cannot be negative")
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	opts.Query = url.Values{}
	for _, kv := range query {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --query %q: expected key=value", kv)
		}
		opts.Query.Add(key, value)
	}

	positional := fs.Args()
	if len(positional) < 2 || len(positional) > 3 {
		return nil, errors.New("expected METHOD ENDPOINT [JSON_BODY]")
	}

	opts.Method = strings.ToUpper(positional[0])
	switch opts.Method {
	case http.MethodGet, http.MethodDelete, http.MethodPut, http.MethodPost, http.MethodPatch:
	default:
		return nil, fmt.Errorf("unsupported method %q", positional[0])
	}

	opts.Endpoint = positional[1]
	if !strings.HasPrefix(opts.Endpoint, "/") {
		opts.Endpoint = "/" + opts.Endpoint
	}

	if len(positional) == 3 {
		if opts.Method == http.MethodGet || opts.Method == http.MethodDelete {
			return nil, fmt.Errorf("%s does not take a body; use --query", opts.Method)
		}
		if !json.Valid([]byte(positional[2])) {
			return nil, errors.New("body is not valid JSON")
		}
		opts.Body = json.RawMessage(positional[2])
	} else if opts.Method != http.MethodGet && opts.Method != http.MethodDelete {
		opts.Body = json.RawMessage("{}")
	}

	return opts, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
