// Package sdk is the command execution core of the assessment platform client.
// It wraps outbound HTTP calls to the backend in Commands that an Invoker runs
// with a fixed-delay retry policy, idempotency-aware retry suppression,
// structured logging, and pluggable authentication.
//
// # Components
//
//   - Receiver performs one HTTP request against BaseURL+endpoint, injecting
//     Authorization and X-Request-Id headers, and delegates to a Fetcher.
//   - Command describes a named, typed unit of work and whether it is
//     idempotent.
//   - Invoker runs a Command, retrying idempotent ones on any error and never
//     retrying non-idempotent ones.
//   - API turns JSON endpoints into Commands backed by the Receiver.
//
// # Basic Usage
//
//	cc := sdk.CommandContext{
//	    BaseURL:   "https://api.example.org/v1",
//	    Auth:      auth.Static(token),
//	    RequestID: sdk.NewRequestID,
//	    Logger:    logrus.StandardLogger(),
//	}
//
//	client, err := sdk.New(cc, sdk.DefaultInvokerOptions().WithRetries(2))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	list := sdk.Get[[]Administration](client.API, "listAdministrations", "/administrations")
//	admins, err := sdk.Run(ctx, client.Invoker, list, url.Values{"page": {"1"}})
//
// # Custom Commands
//
// Any function can become a Command:
//
//	upload := sdk.NewCommand("uploadRun", false,
//	    func(ctx context.Context, run Run) (RunID, error) {
//	        resp, err := client.API.Receiver().Request(ctx, "/runs", &sdk.RequestOptions{
//	            Method: http.MethodPost,
//	            Body:   encode(run),
//	        })
//	        ...
//	    })
//
// # Retry Semantics
//
// An idempotent command is attempted up to Retries+1 times with RetryDelay
// between attempts. A non-idempotent command is attempted exactly once, so a
// failed POST is never resent automatically. Every error is retried unless
// InvokerOptions.ShouldRetry says otherwise; IsRetryable is a ready-made
// predicate that skips 4xx responses.
//
// The terminal failure is always an *SDKError whose Cause is the error from
// the last attempt:
//
//	_, err := sdk.Run(ctx, invoker, cmd, input)
//	var sdkErr *sdk.SDKError
//	if errors.As(err, &sdkErr) {
//	    log.Printf("%s: %v", sdkErr.Code, sdkErr.Cause)
//	}
//
// # Global Instance
//
// Init installs a process-wide SDK for code that cannot have it injected.
// GetInvoker and GetAPI return ErrNotInitialized until Init succeeds.
//
// # Thread Safety
//
// Invoker, Receiver and API are safe for concurrent use. Concurrent Runs share
// only the read-only CommandContext and retry policy.
package sdk
