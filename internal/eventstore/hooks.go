package eventstore

import "context"

// Validator checks an aggregate before it is saved. A non-empty result
// aborts the save without error.
type Validator[T any] interface {
	Validate(ctx context.Context, agg T) []error
}

type ValidatorFunc[T any] func(ctx context.Context, agg T) []error

func (f ValidatorFunc[T]) Validate(ctx context.Context, agg T) []error { return f(ctx, agg) }

// Fulfiller injects runtime dependencies into an aggregate after it is
// loaded and before it is saved.
type Fulfiller[T any] interface {
	Fulfill(ctx context.Context, agg T) error
}

type FulfillerFunc[T any] func(ctx context.Context, agg T) error

func (f FulfillerFunc[T]) Fulfill(ctx context.Context, agg T) error { return f(ctx, agg) }

// SaveResult is the outcome of Save. Validation failures are reported here
// rather than as errors.
type SaveResult struct {
	Saved            bool
	Skipped          bool
	ValidationErrors []error
}

func (r SaveResult) Valid() bool { return len(r.ValidationErrors) == 0 }
