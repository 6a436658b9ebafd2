package ports

import (
	"context"
	"io"

	"github.com/librarium/circulation/internal/core/domain"
)

// CreateBookInput carries the catalog fields of a new book.
type CreateBookInput struct {
	Title      string
	Author     string
	ISBN       string
	Category   string
	CoverImage string
	AddedBy    string
}

// UpdateBookInput replaces the catalog fields of an existing book.
// Availability is not part of it.
type UpdateBookInput struct {
	Title      string
	Author     string
	ISBN       string
	Category   string
	CoverImage string
}

// ListBooksInput carries catalog search parameters.
type ListBooksInput struct {
	Title     string
	Author    string
	Category  string
	Available *bool
	Page      int
	Limit     int
}

// ListBooksResult is one page of the catalog.
type ListBooksResult struct {
	Items      []*domain.Book
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// BookService defines catalog use cases.
type BookService interface {
	CreateBook(ctx context.Context, input CreateBookInput) (*domain.Book, error)
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	ListBooks(ctx context.Context, input ListBooksInput) (*ListBooksResult, error)
	UpdateBook(ctx context.Context, id string, input UpdateBookInput) (*domain.Book, error)
	DeleteBook(ctx context.Context, id string) error
	UploadCover(ctx context.Context, id string, data []byte) (*domain.Book, error)
	OpenCover(ctx context.Context, id string) (io.ReadCloser, string, error)
}
