package domain

import (
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")
var ErrUserExists = errors.New("user already exists")
var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrForbidden = errors.New("access forbidden")

// ErrUserHasLoans blocks deleting a member who still holds books.
var ErrUserHasLoans = errors.New("user still has outstanding borrows")

// User models a library member.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the authenticated caller attached to every request.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// CanActOn reports whether the caller may read or change the account
// userID: its own, or any account for an admin.
func (i Identity) CanActOn(userID string) bool {
	return i.IsAdmin || (i.UserID != "" && i.UserID == userID)
}
