package sdk

import (
	"context"
)

// Command is a named, typed unit of work executed by an Invoker.
//
// Idempotent is the single fact the Invoker uses to decide retry eligibility.
// It must be set by whoever authors the command: GETs and PUTs keyed by a
// deterministic id are safe to repeat, a POST creating a new resource without a
// client-supplied deduplication token is not. Marking a non-idempotent command
// idempotent risks duplicate side effects on retry.
//
// Execute reports failure by returning an error. A panic inside Execute is
// recovered by the Invoker and treated the same way.
type Command[I, O any] interface {
	// Name identifies the command in logs and diagnostics only
	Name() string
	// Idempotent reports whether Execute may safely run more than once
	Idempotent() bool
	// Execute performs the work
	Execute(ctx context.Context, input I) (O, error)
}

// CommandFunc is the function shape wrapped by NewCommand
type CommandFunc[I, O any] func(ctx context.Context, input I) (O, error)

// funcCommand adapts a CommandFunc to the Command interface
type funcCommand[I, O any] struct {
	name       string
	idempotent bool
	fn         CommandFunc[I, O]
}

// NewCommand builds a Command from a function.
//
// Example:
//
//	cmd := sdk.NewCommand("fetchAdministration", true,
//	    func(ctx context.Context, id string) (*Administration, error) {
//	        return loadAdministration(ctx, id)
//	    })
func NewCommand[I, O any](name string, idempotent bool, fn CommandFunc[I, O]) Command[I, O] {
	return &funcCommand[I, O]{
		name:       name,
		idempotent: idempotent,
		fn:         fn,
	}
}

func (c *funcCommand[I, O]) Name() string {
	return c.name
}

func (c *funcCommand[I, O]) Idempotent() bool {
	return c.idempotent
}

func (c *funcCommand[I, O]) Execute(ctx context.Context, input I) (O, error) {
	return c.fn(ctx, input)
}
