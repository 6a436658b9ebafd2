package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

const (
	defaultBookPageSize = 10
	maxBookPageSize     = 100
)

var errNoCoverStore = errors.New("cover storage is not configured")

// BookService is the catalog collaborator: it manages book metadata and
// covers but never touches availability after creation.
type BookService struct {
	repo   ports.BookRepository
	covers ports.CoverStore
	logger zerolog.Logger
}

// NewBookService creates a BookService. covers may be nil, in which case
// cover uploads fail.
func NewBookService(repo ports.BookRepository, covers ports.CoverStore, logger zerolog.Logger) *BookService {
	return &BookService{repo: repo, covers: covers, logger: logger}
}

// CoverURL is where the cover of a book is served.
func CoverURL(bookID string) string {
	return "/api/books/" + bookID + "/cover"
}

// CreateBook adds a new, available book to the catalog.
func (s *BookService) CreateBook(ctx context.Context, in ports.CreateBookInput) (*domain.Book, error) {
	category, err := bookCategory(in.Category)
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	now := time.Now().UTC()
	book := &domain.Book{
		Title:       strings.TrimSpace(in.Title),
		Author:      strings.TrimSpace(in.Author),
		ISBN:        strings.TrimSpace(in.ISBN),
		Category:    category,
		CoverImage:  in.CoverImage,
		IsAvailable: true,
		AddedBy:     in.AddedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, book); err != nil {
		s.logger.Error().Err(err).Str("isbn", book.ISBN).Msg("failed to create book")
		return nil, fmt.Errorf("create book: %w", err)
	}

	s.logger.Info().Str("book_id", book.ID).Str("added_by", in.AddedBy).Msg("book created")
	return book, nil
}

func (s *BookService) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrBookNotFound
	}
	return s.repo.FindByID(ctx, id)
}

func (s *BookService) ListBooks(ctx context.Context, in ports.ListBooksInput) (*ports.ListBooksResult, error) {
	page, limit := normalizePage(in.Page, in.Limit, defaultBookPageSize, maxBookPageSize)

	books, total, err := s.repo.List(ctx, ports.ListBooksFilter{
		Title:     in.Title,
		Author:    in.Author,
		Category:  in.Category,
		Available: in.Available,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	return &ports.ListBooksResult{
		Items:      books,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}

// UpdateBook replaces the catalog fields of a book. Whether the book is lent
// out is left exactly as it is.
func (s *BookService) UpdateBook(ctx context.Context, id string, in ports.UpdateBookInput) (*domain.Book, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrBookNotFound
	}
	category, err := bookCategory(in.Category)
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}

	book, err := s.repo.Update(ctx, &domain.Book{
		ID:         id,
		Title:      strings.TrimSpace(in.Title),
		Author:     strings.TrimSpace(in.Author),
		ISBN:       strings.TrimSpace(in.ISBN),
		Category:   category,
		CoverImage: in.CoverImage,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}

	s.logger.Info().Str("book_id", id).Msg("book updated")
	return book, nil
}

// DeleteBook removes a book from the catalog. A book that is lent out
// cannot be deleted; the check and the delete are one storage operation.
func (s *BookService) DeleteBook(ctx context.Context, id string) error {
	if !domain.IsValidID(id) {
		return domain.ErrBookNotFound
	}
	if err := s.repo.DeleteIfAvailable(ctx, id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	if s.covers != nil {
		if err := s.covers.Delete(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("book_id", id).Msg("failed to delete cover of removed book")
		}
	}

	s.logger.Info().Str("book_id", id).Msg("book deleted")
	return nil
}

// UploadCover stores data as the cover of a book and points the book at it.
func (s *BookService) UploadCover(ctx context.Context, id string, data []byte) (*domain.Book, error) {
	if s.covers == nil {
		return nil, errNoCoverStore
	}
	if !domain.IsValidID(id) {
		return nil, domain.ErrBookNotFound
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("upload cover: empty file: %w", domain.ErrValidation)
	}
	if len(data) > domain.MaxCoverBytes {
		return nil, fmt.Errorf("upload cover: larger than %d bytes: %w", domain.MaxCoverBytes, domain.ErrValidation)
	}

	mime := mimetype.Detect(data)
	contentType := mime.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !slices.Contains(domain.CoverContentTypes, contentType) {
		return nil, fmt.Errorf("upload cover: unsupported type %s: %w", contentType, domain.ErrValidation)
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, fmt.Errorf("upload cover: %w", err)
	}
	if err := s.covers.Save(ctx, id, contentType, data); err != nil {
		return nil, fmt.Errorf("upload cover: %w", err)
	}

	book, err := s.repo.SetCover(ctx, id, CoverURL(id))
	if err != nil {
		return nil, fmt.Errorf("upload cover: %w", err)
	}

	s.logger.Info().Str("book_id", id).Str("content_type", contentType).Int("bytes", len(data)).Msg("cover uploaded")
	return book, nil
}

// OpenCover streams the stored cover of a book with its content type.
func (s *BookService) OpenCover(ctx context.Context, id string) (io.ReadCloser, string, error) {
	if s.covers == nil {
		return nil, "", domain.ErrCoverNotFound
	}
	if !domain.IsValidID(id) {
		return nil, "", domain.ErrCoverNotFound
	}
	return s.covers.Open(ctx, id)
}

func bookCategory(category string) (string, error) {
	if category == "" {
		return domain.DefaultBookCategory, nil
	}
	if !slices.Contains(domain.BookCategories, category) {
		return "", fmt.Errorf("category %q: %w", category, domain.ErrValidation)
	}
	return category, nil
}
