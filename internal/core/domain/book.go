package domain

import (
	"errors"
	"time"
)

var ErrBookNotFound = errors.New("book not found")

// ErrBookUnavailable means the book exists but is currently lent out.
var ErrBookUnavailable = errors.New("book is not available")

var ErrDuplicateISBN = errors.New("book with this isbn already exists")

var ErrCoverNotFound = errors.New("cover not found")

// Book categories accepted by the catalog.
var BookCategories = []string{"Fiction", "Non-Fiction", "Science", "History", "Biography"}

const DefaultBookCategory = "Fiction"

// MaxCoverBytes is the largest cover image accepted.
const MaxCoverBytes = 2 << 20

// CoverContentTypes are the image formats accepted for cover uploads.
var CoverContentTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// Book is a catalog entry. Circulation only ever reads ID and flips
// IsAvailable through the availability gate.
type Book struct {
	ID          string
	Title       string
	Author      string
	ISBN        string
	Category    string
	CoverImage  string
	IsAvailable bool
	AddedBy     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
