package feed

import (
	"context"
	"errors"
	"fmt"
)

// Optimistic applies a local change before the remote side confirms it.
//
// Run captures a snapshot, applies the local mutation, then asks for confirmation. A failed confirmation
// reapplies the snapshot through Rollback and returns the confirmation error.
type Optimistic[T any] struct {
	Snapshot func(ctx context.Context) (T, error)
	Apply    func(ctx context.Context, snapshot T) (T, error)
	Confirm  func(ctx context.Context, applied T) (T, error)
	Rollback func(ctx context.Context, snapshot T) error
}

// Run executes the snapshot/apply/confirm sequence and returns the confirmed value.
func (o Optimistic[T]) Run(ctx context.Context) (T, error) {
	var zero T

	snapshot, err := o.Snapshot(ctx)
	if err != nil {
		return zero, err
	}

	applied, err := o.Apply(ctx, snapshot)
	if err != nil {
		return zero, err
	}

	confirmed, err := o.Confirm(ctx, applied)
	if err == nil {
		return confirmed, nil
	}

	// The caller's context may already be done; the rollback is local and must still happen.
	if rbErr := o.Rollback(context.WithoutCancel(ctx), snapshot); rbErr != nil {
		return zero, errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
	}
	return zero, err
}
