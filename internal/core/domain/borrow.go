package domain

import (
	"errors"
	"time"
)

// BorrowStatus represents the lifecycle state of a borrow record.
type BorrowStatus string

const (
	BorrowActive   BorrowStatus = "active"
	BorrowReturned BorrowStatus = "returned"
	BorrowOverdue  BorrowStatus = "overdue"
)

// LoanPeriod is the fixed lending window applied to every new borrow.
const LoanPeriod = 14 * 24 * time.Hour

// validBorrowTransitions defines the allowed state machine transitions.
// returned is terminal. An overdue loan still holds its book until it is
// returned or checked in.
var validBorrowTransitions = map[BorrowStatus][]BorrowStatus{
	BorrowActive:  {BorrowReturned, BorrowOverdue},
	BorrowOverdue: {BorrowReturned},
}

var allBorrowStatuses = []BorrowStatus{BorrowActive, BorrowReturned, BorrowOverdue}

var ErrBorrowNotFound = errors.New("active borrow record not found")

// ErrIdempotencyKeyReused means the caller replayed an Idempotency-Key with
// a different book than the one it was first used for.
var ErrIdempotencyKeyReused = errors.New("idempotency key already used for a different book")

// Valid reports whether s is one of the known statuses.
func (s BorrowStatus) Valid() bool {
	switch s {
	case BorrowActive, BorrowReturned, BorrowOverdue:
		return true
	}
	return false
}

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s BorrowStatus) CanTransitionTo(next BorrowStatus) bool {
	for _, allowed := range validBorrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outstanding reports whether a borrow in status s still holds its book,
// i.e. it can still be closed by a return.
func (s BorrowStatus) Outstanding() bool {
	return s.CanTransitionTo(BorrowReturned)
}

// StatusesTransitioningTo lists every status that may move to next. Storage
// adapters use it to build their conditional update predicates.
func StatusesTransitioningTo(next BorrowStatus) []BorrowStatus {
	var out []BorrowStatus
	for _, s := range allBorrowStatuses {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// Borrow is a permanent ledger entry for one lending of one book.
type Borrow struct {
	ID         string
	UserID     string
	BookID     string
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt *time.Time
	Status     BorrowStatus
}

// NewBorrow builds an active borrow starting at now. The due date is
// derived here once and never recomputed.
func NewBorrow(userID, bookID string, now time.Time) *Borrow {
	now = now.UTC()
	return &Borrow{
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: now,
		DueDate:    now.Add(LoanPeriod),
		Status:     BorrowActive,
	}
}

// IsOverdueAt reports whether an active borrow has passed its due date.
func (b *Borrow) IsOverdueAt(now time.Time) bool {
	return b.Status == BorrowActive && b.DueDate.Before(now)
}
