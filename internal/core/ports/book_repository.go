package ports

import (
	"context"
	"io"
	"time"

	"github.com/librarium/circulation/internal/core/domain"
)

// ListBooksFilter carries catalog search parameters.
type ListBooksFilter struct {
	Title     string // optional: case-insensitive partial match
	Author    string // optional: case-insensitive partial match
	Category  string // optional: exact match
	Available *bool  // optional: availability flag
	Page      int
	Limit     int
}

// BookRepository is the catalog's persistence port.
type BookRepository interface {
	Create(ctx context.Context, b *domain.Book) error
	FindByID(ctx context.Context, id string) (*domain.Book, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Book, error)
	List(ctx context.Context, filter ListBooksFilter) ([]*domain.Book, int64, error)

	// Update rewrites the catalog fields of b. It never touches availability.
	Update(ctx context.Context, b *domain.Book) (*domain.Book, error)

	// DeleteIfAvailable removes a book that is not lent out. A lent book
	// yields domain.ErrBookUnavailable, a missing one domain.ErrBookNotFound.
	DeleteIfAvailable(ctx context.Context, id string) error

	SetCover(ctx context.Context, id, coverURL string) (*domain.Book, error)

	// ListStranded returns up to limit books that have been unavailable
	// since before the given instant while no borrow holds them.
	ListStranded(ctx context.Context, before time.Time, limit int) ([]*domain.Book, error)
}

// CoverStore keeps one cover image per book.
type CoverStore interface {
	Save(ctx context.Context, bookID, contentType string, data []byte) error
	Open(ctx context.Context, bookID string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, bookID string) error
}
