package ports

import (
	"context"
	"time"

	"github.com/librarium/circulation/internal/core/domain"
)

// BorrowInput carries everything needed to lend a book.
type BorrowInput struct {
	Identity domain.Identity
	BookID   string
	// IdempotencyKey is optional; a repeated key from the same user replays
	// the original result.
	IdempotencyKey string
}

// ReturnInput identifies the borrow the caller wants to close.
type ReturnInput struct {
	Identity domain.Identity
	BorrowID string
}

// CheckInInput identifies a borrow closed by staff on the member's behalf.
type CheckInInput struct {
	Identity domain.Identity
	BorrowID string
}

// BorrowerInfo is a read-only projection of the borrowing user.
type BorrowerInfo struct {
	ID    string
	Name  string
	Email string
}

// BookInfo is a read-only projection of the borrowed book.
type BookInfo struct {
	ID     string
	Title  string
	Author string
}

// BorrowResult is a borrow record together with its display projections.
type BorrowResult struct {
	ID         string
	Status     string
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt *time.Time
	Borrower   BorrowerInfo
	Book       BookInfo
	// AlreadyExisted is true when the Idempotency-Key matched an earlier borrow.
	AlreadyExisted bool
}

// ListBorrowsInput carries the parameters of the admin listing.
type ListBorrowsInput struct {
	Status   string
	Page     int
	PageSize int
}

// ListBorrowsResult is one page of the ledger.
type ListBorrowsResult struct {
	Items      []BorrowResult
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// BorrowService is the circulation ledger.
type BorrowService interface {
	Borrow(ctx context.Context, input BorrowInput) (*BorrowResult, error)
	Return(ctx context.Context, input ReturnInput) (*BorrowResult, error)
	CheckIn(ctx context.Context, input CheckInInput) (*BorrowResult, error)
	List(ctx context.Context, input ListBorrowsInput) (*ListBorrowsResult, error)
}
