package ports

import (
	"context"
	"time"
)

// AvailabilityGate owns the "lendable now" flag of every book. It is the
// only component allowed to change Book.IsAvailable.
type AvailabilityGate interface {
	// TryAcquire atomically flips the book from available to unavailable.
	// It returns domain.ErrBookNotFound when the book does not exist and
	// domain.ErrBookUnavailable when it is already lent. Of any number of
	// concurrent callers for the same book, at most one succeeds.
	TryAcquire(ctx context.Context, bookID string) error

	// Release marks the book available again. It is idempotent; releasing an
	// available book is not an error.
	Release(ctx context.Context, bookID string) error

	// ReleaseIfHeldBefore releases the book only if it is unavailable and
	// its availability last changed before the given instant. A book that
	// was acquired again since then is left alone and false is returned.
	ReleaseIfHeldBefore(ctx context.Context, bookID string, before time.Time) (bool, error)
}

// ReleaseRetrier takes over a Release that failed inline and keeps retrying
// it in the background. Enqueue never blocks.
type ReleaseRetrier interface {
	Enqueue(bookID string)
}
