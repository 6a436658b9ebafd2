package ports

import (
	"context"
	"time"

	"github.com/librarium/circulation/internal/core/domain"
)

// ListBorrowsFilter carries query parameters for listing borrows.
type ListBorrowsFilter struct {
	Status domain.BorrowStatus // empty = no filter
	Page   int                 // 1-based
	Limit  int                 // rows per page
}

// BorrowRepository persists the circulation ledger.
type BorrowRepository interface {
	// Create inserts a new borrow and sets its ID. A second active borrow for
	// the same book fails with domain.ErrBookUnavailable.
	Create(ctx context.Context, b *domain.Borrow) error
	FindByID(ctx context.Context, id string) (*domain.Borrow, error)

	// CloseOutstanding atomically marks the outstanding (active or overdue)
	// borrow id owned by userID as returned at returnedAt and returns the
	// updated record. Any mismatch (id, owner or status) yields
	// domain.ErrBorrowNotFound.
	CloseOutstanding(ctx context.Context, id, userID string, returnedAt time.Time) (*domain.Borrow, error)

	// CheckIn is CloseOutstanding without the owner predicate, for staff.
	CheckIn(ctx context.Context, id string, returnedAt time.Time) (*domain.Borrow, error)

	// HasOutstanding reports whether any borrow still holds bookID.
	HasOutstanding(ctx context.Context, bookID string) (bool, error)

	// UserHasOutstanding reports whether userID still holds any book.
	UserHasOutstanding(ctx context.Context, userID string) (bool, error)

	// List returns a page of borrows matching filter and the total count.
	List(ctx context.Context, filter ListBorrowsFilter) ([]*domain.Borrow, int64, error)

	// ListOverdue returns up to limit active borrows whose due date is before now.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Borrow, error)

	// MarkOverdue moves an active, past-due borrow to overdue. It reports
	// false when the record no longer qualifies (e.g. it was returned).
	MarkOverdue(ctx context.Context, id string, now time.Time) (bool, error)
}
