package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/roar-platform/assessment-sdk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := parseOptions([]string{"--base-url", "https://api.example.org", "GET", "/administrations"}, nil)
		require.NoError(t, err)

		assert.Equal(t, "https://api.example.org", opts.BaseURL)
		assert.Equal(t, http.MethodGet, opts.Method)
		assert.Equal(t, "/administrations", opts.Endpoint)
		assert.Equal(t, 3, opts.Retries)
		assert.Equal(t, time.Second, opts.RetryDelay)
		assert.Equal(t, tokenSourceStatic, opts.TokenSource)
		assert.Nil(t, opts.Idempotent)
		assert.True(t, opts.RequestID)
		assert.Nil(t, opts.Body)
		assert.Empty(t, opts.Query)
		assert.Empty(t, opts.MetricsAddr)
		assert.Zero(t, opts.MetricsLinger)
	})

	t.Run("flags after positionals", func(t *testing.T) {
		opts, err := parseOptions([]string{
			"post", "runs", `{"assignmentId":"a1"}`,
			"--base-url=https://api.example.org",
			"--retries", "5",
			"--retry-delay", "250ms",
			"--idempotent=true",
			"-q", "dryRun=1",
		}, nil)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, opts.Method)
		assert.Equal(t, "/runs", opts.Endpoint)
		assert.JSONEq(t, `{"assignmentId":"a1"}`, string(opts.Body))
		assert.Equal(t, 5, opts.Retries)
		assert.Equal(t, 250*time.Millisecond, opts.RetryDelay)
		require.NotNil(t, opts.Idempotent)
		assert.True(t, *opts.Idempotent)
		assert.Equal(t, "1", opts.Query.Get("dryRun"))
	})

	t.Run("body defaults to empty object", func(t *testing.T) {
		opts, err := parseOptions([]string{"--base-url", "https://api.example.org", "PUT", "/runs/r1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(opts.Body))
	})

	t.Run("env fallbacks", func(t *testing.T) {
		t.Setenv("ROAR_BASE_URL", "https://env.example.org")
		t.Setenv("ROAR_TOKEN", "env-token")
		t.Setenv("ROAR_RETRIES", "1")
		t.Setenv("ROAR_RETRY_DELAY", "10ms")

		opts, err := parseOptions([]string{"GET", "/x"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "https://env.example.org", opts.BaseURL)
		assert.Equal(t, "env-token", opts.Token)
		assert.Equal(t, 1, opts.Retries)
		assert.Equal(t, 10*time.Millisecond, opts.RetryDelay)
	})

	errorCases := []struct {
		name string
		args []string
	}{
		{"missing base url", []string{"GET", "/x"}},
		{"missing endpoint", []string{"--base-url", "https://a.example.org", "GET"}},
		{"too many args", []string{"--base-url", "https://a.example.org", "POST", "/x", "{}", "extra"}},
		{"bad method", []string{"--base-url", "https://a.example.org", "HEAD", "/x"}},
		{"body on get", []string{"--base-url", "https://a.example.org", "GET", "/x", "{}"}},
		{"invalid json", []string{"--base-url", "https://a.example.org", "POST", "/x", "{nope"}},
		{"bad idempotent", []string{"--base-url", "https://a.example.org", "--idempotent", "maybe", "GET", "/x"}},
		{"bad token source", []string{"--base-url", "https://a.example.org", "--token-source", "vault", "GET", "/x"}},
		{"bad query", []string{"--base-url", "https://a.example.org", "-q", "novalue", "GET", "/x"}},
		{"negative rps", []string{"--base-url", "https://a.example.org", "--rps", "-1", "GET", "/x"}},
		{"negative metrics linger", []string{"--base-url", "https://a.example.org", "--metrics-linger", "-1s", "GET", "/x"}},
		{"unknown flag", []string{"--base-url", "https://a.example.org", "--bogus", "GET", "/x"}},
	}

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ROAR_BASE_URL", "")
			var usage bytes.Buffer
			_, err := parseOptions(tc.args, &usage)
			assert.Error(t, err)
		})
	}
}

func TestRun_Get(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.WithJSONResponse("GET /administrations", http.StatusOK, []map[string]string{{"id": "a1"}})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", server.URL,
		"--token", "abc",
		"-q", "page=2",
		"GET", "/administrations",
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())

	var out []map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "a1", out[0]["id"])

	last := server.LastRequest()
	require.NotNil(t, last)
	assert.Equal(t, "page=2", last.Query)
	assert.Equal(t, "Bearer abc", last.Headers.Get("Authorization"))
	assert.NotEmpty(t, last.Headers.Get("X-Request-Id"))
}

func TestRun_RetriesIdempotentRequests(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.WithRetryResponse("GET /runs/r1", 2, http.StatusServiceUnavailable, map[string]string{"id": "r1"})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", server.URL,
		"--retries", "2",
		"--retry-delay", "1ms",
		"GET", "/runs/r1",
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, 3, server.GetRequestCount())
	assert.Contains(t, stdout.String(), `"id": "r1"`)
}

func TestRun_PostIsNotRetried(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.WithErrorResponse("POST /runs", http.StatusServiceUnavailable, "try later")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", server.URL,
		"--retry-delay", "1ms",
		"POST", "/runs", `{"assignmentId":"a1"}`,
	}, &stdout, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.Equal(t, 1, server.GetRequestCount())
	assert.Contains(t, stderr.String(), "try later")
	assert.Contains(t, stderr.String(), "request id:")
	assert.JSONEq(t, `{"assignmentId":"a1"}`, string(server.LastRequest().Body))
	assert.Empty(t, stdout.String())
}

func TestRun_IdempotentOverride(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.WithRetryResponse("POST /runs/r1/trials", 1, http.StatusBadGateway, map[string]string{"id": "t1"})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", server.URL,
		"--retry-delay", "1ms",
		"--idempotent=true",
		"POST", "/runs/r1/trials",
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, 2, server.GetRequestCount())
}

func TestRun_TransientOnlyStopsOnClientError(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.WithErrorResponse("GET /runs/missing", http.StatusNotFound, "Run not found")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", server.URL,
		"--retry-delay", "1ms",
		"--transient-only",
		"GET", "/runs/missing",
	}, &stdout, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.Equal(t, 1, server.GetRequestCount())
}

func TestRun_JWTToken(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.WithJSONResponse("GET /me", http.StatusOK, map[string]string{"id": "u1"})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", server.URL,
		"--token", token,
		"--jwt",
		"GET", "/me",
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "Bearer "+token, server.LastRequest().Headers.Get("Authorization"))
}

func TestRun_InvalidJWT(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", "http://127.0.0.1:1",
		"--token", "not-a-jwt",
		"--jwt",
		"GET", "/me",
	}, &stdout, &stderr)

	assert.Equal(t, exitFailure, code)
}

func TestRun_UsageErrors(t *testing.T) {
	t.Setenv("ROAR_BASE_URL", "")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitUsage, run(context.Background(), []string{"GET"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "roarctl:")

	stderr.Reset()
	assert.Equal(t, exitUsage, run(context.Background(), []string{"--base-url", "not a url", "GET", "/x"}, &stdout, &stderr))

	stderr.Reset()
	assert.Equal(t, exitOK, run(context.Background(), []string{"--help"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, json.RawMessage(`{"a":1}`)))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, writeJSON(&buf, nil))
	assert.Empty(t, buf.String())
}

// fakeTokenStore stands in for the Redis-backed store
type fakeTokenStore struct {
	token  string
	closed bool
}

func (f *fakeTokenStore) GetToken(ctx context.Context) (string, error) {
	return f.token, nil
}

func (f *fakeTokenStore) Close() error {
	f.closed = true
	return nil
}

func useTokenStore(t *testing.T, store tokenStore, err error) {
	t.Helper()
	previous := openRedisStore
	openRedisStore = func(ctx context.Context) (tokenStore, error) {
		return store, err
	}
	t.Cleanup(func() { openRedisStore = previous })
}

func TestRun_RedisTokenSource(t *testing.T) {
	valid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		stored     string
		jwtFlag    bool
		wantHeader string
	}{
		{"missing key", "", false, ""},
		{"missing key with jwt", "", true, ""},
		{"stored token", "opaque-token", false, "Bearer opaque-token"},
		{"stored jwt", valid, true, "Bearer " + valid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := testutil.NewMockServer()
			defer server.Close()
			server.WithJSONResponse("GET /me", http.StatusOK, map[string]string{"id": "u1"})

			store := &fakeTokenStore{token: tc.stored}
			useTokenStore(t, store, nil)

			args := []string{"--base-url", server.URL, "--token-source", "redis", "--retry-delay", "1ms"}
			if tc.jwtFlag {
				args = append(args, "--jwt")
			}
			args = append(args, "GET", "/me")

			var stdout, stderr bytes.Buffer
			code := run(context.Background(), args, &stdout, &stderr)

			require.Equal(t, exitOK, code, stderr.String())
			assert.Equal(t, 1, server.GetRequestCount())
			assert.Equal(t, tc.wantHeader, server.LastRequest().Headers.Get("Authorization"))
			assert.True(t, store.closed)
		})
	}
}

func TestRun_RedisUnavailable(t *testing.T) {
	useTokenStore(t, nil, errors.New("failed to connect to Redis: connection refused"))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", "https://api.example.org",
		"--token-source", "redis",
		"GET", "/me",
	}, &stdout, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr.String(), "Failed to set up authentication")
}

func TestRun_LogsCarryTraceIDs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENABLE_TRACING", "true")
	t.Setenv("OTEL_EXPORT_TO_FILE", "true")
	t.Setenv("OTEL_TRACES_FILE_PATH", filepath.Join(dir, "traces.json"))
	t.Setenv("OTEL_LOGS_FILE_PATH", filepath.Join(dir, "logs.json"))
	t.Setenv("OTEL_METRICS_FILE_PATH", filepath.Join(dir, "metrics.json"))

	server := testutil.NewMockServer()
	defer server.Close()
	server.WithErrorResponse("GET /runs/missing", http.StatusNotFound, "Run not found")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", server.URL,
		"--transient-only",
		"GET", "/runs/missing",
	}, &stdout, &stderr)
	require.Equal(t, exitFailure, code)

	var failure map[string]interface{}
	scanner := bufio.NewScanner(&stderr)
	for scanner.Scan() {
		var line map[string]interface{}
		if json.Unmarshal(scanner.Bytes(), &line) != nil {
			continue
		}
		if line["message"] == "Request failed" {
			failure = line
		}
	}
	require.NotNil(t, failure, "expected a structured failure log")
	assert.NotEmpty(t, failure["trace.id"])
	assert.NotEmpty(t, failure["span.id"])
	assert.NotEmpty(t, failure["request_id"])
}

func TestRun_MetricsAddr(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.WithJSONResponse("GET /me", http.StatusOK, map[string]string{"id": "u1"})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--base-url", server.URL,
		"--metrics-addr", "127.0.0.1:0",
		"GET", "/me",
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stderr.String(), "Serving metrics")

	stderr.Reset()
	code = run(context.Background(), []string{
		"--base-url", server.URL,
		"--metrics-addr", "not-an-address",
		"GET", "/me",
	}, &stdout, &stderr)
	assert.Equal(t, exitFailure, code)
}

func TestLingerMetrics_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	lingerMetrics(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}
