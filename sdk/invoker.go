package sdk

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Invoker executes Commands with a fixed-delay retry policy and attempt-level
// logging. An Invoker holds no per-run state, so concurrent Runs on the same
// Invoker are independent.
type Invoker struct {
	cc     *CommandContext
	opts   InvokerOptions
	tracer trace.Tracer
}

// NewInvoker creates an Invoker bound to cc. A nil opts uses
// DefaultInvokerOptions.
//
// Example:
//
//	invoker := sdk.NewInvoker(&cc, sdk.DefaultInvokerOptions().WithRetries(2))
func NewInvoker(cc *CommandContext, opts *InvokerOptions) *Invoker {
	if opts == nil {
		opts = DefaultInvokerOptions()
	}
	o := *opts
	o.normalize()
	return &Invoker{
		cc:     cc,
		opts:   o,
		tracer: otel.Tracer(instrumentationName),
	}
}

// Options returns a copy of the retry policy
func (inv *Invoker) Options() InvokerOptions {
	return inv.opts
}

// MaxAttempts returns how many times a command with the given idempotency
// would be attempted: Retries+1 for idempotent commands, 1 otherwise.
func (inv *Invoker) MaxAttempts(idempotent bool) int {
	if !idempotent {
		return 1
	}
	return inv.opts.Retries + 1
}

// Run executes cmd with input on inv.
//
// Attempts run strictly one after another. The first success is returned
// immediately. A failed attempt of an idempotent command is followed by a
// fixed RetryDelay sleep and another attempt until Retries+1 attempts have
// been made; a non-idempotent command gets exactly one attempt. When no
// attempt succeeds, Run returns an *SDKError with code CodeCommandFailed
// whose Cause is the error from the last attempt.
//
// If ctx ends while waiting between attempts, Run returns an *SDKError with
// code CodeCanceled. ctx is also passed to Execute.
//
// Example:
//
//	admins, err := sdk.Run(ctx, invoker, listAdministrations, url.Values{"page": {"1"}})
func Run[I, O any](ctx context.Context, inv *Invoker, cmd Command[I, O], input I) (O, error) {
	var result O
	err := inv.run(ctx, cmd.Name(), cmd.Idempotent(), func(ctx context.Context) error {
		out, err := cmd.Execute(ctx, input)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		var zero O
		return zero, err
	}
	return result, nil
}

// run is the untyped attempt loop behind Run
func (inv *Invoker) run(ctx context.Context, name string, idempotent bool, attemptFn func(ctx context.Context) error) error {
	maxAttempts := inv.MaxAttempts(idempotent)
	logger := inv.cc.logger()
	observer := inv.cc.observer()

	ctx, span := inv.tracer.Start(ctx, "command "+name, trace.WithAttributes(
		attribute.String("command.name", name),
		attribute.Bool("command.idempotent", idempotent),
		attribute.Int("command.max_attempts", maxAttempts),
	))
	defer span.End()

	runStart := time.Now()
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts = attempt + 1
		log := withFields(logger, logrus.Fields{
			"command":      name,
			"attempt":      attempts,
			"max_attempts": maxAttempts,
		})

		log.Debug(fmt.Sprintf("Executing command %q (attempt %d/%d)", name, attempts, maxAttempts))
		observer.OnAttemptStart(name, attempts, maxAttempts)

		start := time.Now()
		err := safeExecute(ctx, attemptFn)
		observer.OnAttemptEnd(name, attempts, time.Since(start), err)

		if err == nil {
			log.Info(fmt.Sprintf("Command %q executed successfully", name))
			span.SetAttributes(attribute.Int("command.attempts", attempts))
			span.SetStatus(codes.Ok, "")
			observer.OnRunEnd(name, attempts, time.Since(runStart), nil)
			return nil
		}

		lastErr = err
		withFields(log, logrus.Fields{"error": err.Error()}).
			Warn(fmt.Sprintf("Command %q failed on attempt %d: %s", name, attempts, err.Error()))
		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("command.attempt", attempts),
			attribute.String("error", err.Error()),
		))

		if attempts >= maxAttempts {
			break
		}
		if inv.opts.ShouldRetry != nil && !inv.opts.ShouldRetry(err) {
			log.Debug(fmt.Sprintf("Command %q error is not retryable, giving up", name))
			break
		}

		observer.OnRetry(name, attempts, inv.opts.RetryDelay, err)
		if waitErr := sleep(ctx, inv.opts.RetryDelay); waitErr != nil {
			sdkErr := NewSDKError(CodeCanceled,
				fmt.Sprintf("command %q canceled after %d attempt(s): %v", name, attempts, waitErr), lastErr)
			withFields(logger, logrus.Fields{"command": name, "attempts": attempts}).
				Error(fmt.Sprintf("Command %q canceled while waiting to retry", name))
			span.RecordError(sdkErr)
			span.SetStatus(codes.Error, sdkErr.Message)
			observer.OnRunEnd(name, attempts, time.Since(runStart), sdkErr)
			return sdkErr
		}
	}

	sdkErr := NewSDKError(CodeCommandFailed,
		fmt.Sprintf("command %q failed after %d attempt(s)", name, attempts), lastErr)
	withFields(logger, logrus.Fields{"command": name, "attempts": attempts}).
		Error(fmt.Sprintf("Command %q failed after %d attempt(s)", name, attempts))
	span.SetAttributes(attribute.Int("command.attempts", attempts))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, sdkErr.Message)
	observer.OnRunEnd(name, attempts, time.Since(runStart), sdkErr)
	return sdkErr
}

// safeExecute runs fn, converting a panic into an error
func safeExecute(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", e)
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
