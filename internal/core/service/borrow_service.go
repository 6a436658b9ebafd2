package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

const (
	defaultBorrowPageSize = 10
	maxBorrowPageSize     = 100
)

// IdempotencyStore abstracts the per-user Idempotency-Key memory (Redis).
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, key string) (borrowID string, found bool, err error)
	Remember(ctx context.Context, userID, key, borrowID string) error
}

// BorrowService implements the circulation ledger on top of the
// availability gate.
type BorrowService struct {
	borrows ports.BorrowRepository
	users   ports.UserRepository
	books   ports.BookRepository
	gate    ports.AvailabilityGate
	retrier ports.ReleaseRetrier
	idem    IdempotencyStore
	log     zerolog.Logger
	now     func() time.Time
}

// BorrowServiceDeps groups the collaborators of BorrowService. Idempotency
// is optional.
type BorrowServiceDeps struct {
	Borrows     ports.BorrowRepository
	Users       ports.UserRepository
	Books       ports.BookRepository
	Gate        ports.AvailabilityGate
	Retrier     ports.ReleaseRetrier
	Idempotency IdempotencyStore
	Logger      zerolog.Logger
}

func NewBorrowService(deps BorrowServiceDeps) *BorrowService {
	return &BorrowService{
		borrows: deps.Borrows,
		users:   deps.Users,
		books:   deps.Books,
		gate:    deps.Gate,
		retrier: deps.Retrier,
		idem:    deps.Idempotency,
		log:     deps.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Borrow lends a book to the calling user. The gate is acquired before the
// record is written, so no reader ever sees an active borrow for a book
// that still shows as available.
func (s *BorrowService) Borrow(ctx context.Context, in ports.BorrowInput) (*ports.BorrowResult, error) {
	if !domain.IsValidID(in.BookID) {
		return nil, fmt.Errorf("borrow: book id %q: %w", in.BookID, domain.ErrValidation)
	}

	user, err := s.users.FindByID(ctx, in.Identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("borrow: %w", err)
	}

	replay, err := s.replay(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("borrow: %w", err)
	}
	if replay != nil {
		return replay, nil
	}

	if err := s.gate.TryAcquire(ctx, in.BookID); err != nil {
		return nil, fmt.Errorf("borrow: %w", err)
	}

	borrow := domain.NewBorrow(user.ID, in.BookID, s.now())
	if err := s.borrows.Create(ctx, borrow); err != nil {
		if errors.Is(err, domain.ErrBookUnavailable) {
			// Another active borrow already holds the book; the gate is
			// correctly closed and must stay that way.
			s.log.Error().Str("book_id", in.BookID).Msg("gate was open while an active borrow existed")
			return nil, fmt.Errorf("borrow: %w", err)
		}
		s.releaseBook(ctx, in.BookID, "compensate")
		s.log.Error().Err(err).Str("book_id", in.BookID).Msg("failed to persist borrow, book released")
		return nil, fmt.Errorf("borrow: persist record: %w", err)
	}

	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.Remember(ctx, user.ID, in.IdempotencyKey, borrow.ID); err != nil {
			s.log.Warn().Err(err).Str("borrow_id", borrow.ID).Msg("failed to store idempotency key")
		}
	}

	s.log.Info().
		Str("borrow_id", borrow.ID).
		Str("user_id", user.ID).
		Str("book_id", borrow.BookID).
		Time("due_date", borrow.DueDate).
		Msg("book borrowed")

	res := toBorrowResult(borrow, user, s.findBook(ctx, borrow.BookID))
	return &res, nil
}

// replay returns the earlier result for a repeated Idempotency-Key, or nil.
// Store failures degrade to normal processing. A key first used for another
// book is rejected.
func (s *BorrowService) replay(ctx context.Context, in ports.BorrowInput) (*ports.BorrowResult, error) {
	if in.IdempotencyKey == "" || s.idem == nil {
		return nil, nil
	}

	borrowID, found, err := s.idem.Lookup(ctx, in.Identity.UserID, in.IdempotencyKey)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", in.Identity.UserID).Msg("idempotency lookup failed, processing anyway")
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	existing, err := s.borrows.FindByID(ctx, borrowID)
	if err != nil {
		s.log.Warn().Err(err).Str("borrow_id", borrowID).Msg("idempotency key points to missing borrow")
		return nil, nil
	}
	if existing.BookID != in.BookID {
		s.log.Warn().
			Str("idempotency_key", in.IdempotencyKey).
			Str("borrow_id", borrowID).
			Str("book_id", in.BookID).
			Msg("idempotency key reused for a different book")
		return nil, domain.ErrIdempotencyKeyReused
	}

	s.log.Info().Str("idempotency_key", in.IdempotencyKey).Str("borrow_id", borrowID).Msg("idempotent replay")
	res := toBorrowResult(existing, s.findUser(ctx, existing.UserID), s.findBook(ctx, existing.BookID))
	res.AlreadyExisted = true
	return &res, nil
}

// Return closes the caller's own outstanding borrow, active or overdue, and
// then reopens the book. Ownership is part of the lookup, so another user's
// loan is reported exactly like a missing one.
func (s *BorrowService) Return(ctx context.Context, in ports.ReturnInput) (*ports.BorrowResult, error) {
	if !domain.IsValidID(in.BorrowID) {
		return nil, fmt.Errorf("return: %w", domain.ErrBorrowNotFound)
	}

	borrow, err := s.borrows.CloseOutstanding(ctx, in.BorrowID, in.Identity.UserID, s.now())
	if err != nil {
		return nil, fmt.Errorf("return: %w", err)
	}
	return s.closed(ctx, borrow, "return"), nil
}

// CheckIn lets staff close any outstanding borrow, typically an overdue
// copy handed back at the desk.
func (s *BorrowService) CheckIn(ctx context.Context, in ports.CheckInInput) (*ports.BorrowResult, error) {
	if !in.Identity.IsAdmin {
		return nil, fmt.Errorf("check in: %w", domain.ErrForbidden)
	}
	if !domain.IsValidID(in.BorrowID) {
		return nil, fmt.Errorf("check in: %w", domain.ErrBorrowNotFound)
	}

	borrow, err := s.borrows.CheckIn(ctx, in.BorrowID, s.now())
	if err != nil {
		return nil, fmt.Errorf("check in: %w", err)
	}
	return s.closed(ctx, borrow, "check_in"), nil
}

// closed runs after a borrow record has been closed. The record is closed
// first; a failed release is retried in the background and never surfaced
// to the caller.
func (s *BorrowService) closed(ctx context.Context, borrow *domain.Borrow, reason string) *ports.BorrowResult {
	s.releaseBook(ctx, borrow.BookID, reason)

	s.log.Info().
		Str("borrow_id", borrow.ID).
		Str("user_id", borrow.UserID).
		Str("book_id", borrow.BookID).
		Str("reason", reason).
		Msg("book returned")

	res := toBorrowResult(borrow, s.findUser(ctx, borrow.UserID), s.findBook(ctx, borrow.BookID))
	return &res
}

// List returns one page of the ledger, optionally filtered by status.
func (s *BorrowService) List(ctx context.Context, in ports.ListBorrowsInput) (*ports.ListBorrowsResult, error) {
	status := domain.BorrowStatus(in.Status)
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("list borrows: status %q: %w", in.Status, domain.ErrValidation)
	}

	page, size := normalizePage(in.Page, in.PageSize, defaultBorrowPageSize, maxBorrowPageSize)

	borrows, total, err := s.borrows.List(ctx, ports.ListBorrowsFilter{
		Status: status,
		Page:   page,
		Limit:  size,
	})
	if err != nil {
		return nil, fmt.Errorf("list borrows: %w", err)
	}

	users, books := s.projections(ctx, borrows)

	items := make([]ports.BorrowResult, len(borrows))
	for i, b := range borrows {
		items[i] = toBorrowResult(b, users[b.UserID], books[b.BookID])
	}

	return &ports.ListBorrowsResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages(total, size),
	}, nil
}

// releaseBook reopens a book, handing it to the retrier when the inline
// attempt fails.
func (s *BorrowService) releaseBook(ctx context.Context, bookID, reason string) {
	err := s.gate.Release(ctx, bookID)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrBookNotFound) {
		s.log.Warn().Str("book_id", bookID).Str("reason", reason).Msg("released book no longer exists")
		return
	}

	s.log.Warn().Err(err).Str("book_id", bookID).Str("reason", reason).Msg("release failed, scheduling retry")
	if s.retrier != nil {
		s.retrier.Enqueue(bookID)
	}
}

func (s *BorrowService) projections(ctx context.Context, borrows []*domain.Borrow) (map[string]*domain.User, map[string]*domain.Book) {
	if len(borrows) == 0 {
		return nil, nil
	}

	userIDs := make([]string, 0, len(borrows))
	bookIDs := make([]string, 0, len(borrows))
	for _, b := range borrows {
		userIDs = append(userIDs, b.UserID)
		bookIDs = append(bookIDs, b.BookID)
	}

	users, err := s.users.FindByIDs(ctx, userIDs)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to load borrowers for listing")
	}
	books, err := s.books.FindByIDs(ctx, bookIDs)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to load books for listing")
	}
	return users, books
}

func (s *BorrowService) findUser(ctx context.Context, id string) *domain.User {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", id).Msg("borrower lookup failed")
		return nil
	}
	return u
}

func (s *BorrowService) findBook(ctx context.Context, id string) *domain.Book {
	b, err := s.books.FindByID(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("book_id", id).Msg("book lookup failed")
		return nil
	}
	return b
}

func toBorrowResult(b *domain.Borrow, u *domain.User, book *domain.Book) ports.BorrowResult {
	res := ports.BorrowResult{
		ID:         b.ID,
		Status:     string(b.Status),
		BorrowedAt: b.BorrowedAt,
		DueDate:    b.DueDate,
		ReturnedAt: b.ReturnedAt,
		Borrower:   ports.BorrowerInfo{ID: b.UserID},
		Book:       ports.BookInfo{ID: b.BookID},
	}
	if u != nil {
		res.Borrower.Name = u.Name
		res.Borrower.Email = u.Email
	}
	if book != nil {
		res.Book.Title = book.Title
		res.Book.Author = book.Author
	}
	return res
}
