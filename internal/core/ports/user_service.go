package ports

import (
	"context"

	"github.com/librarium/circulation/internal/core/domain"
)

// UpdateUserInput replaces a member's profile. An empty Password keeps the
// current one.
type UpdateUserInput struct {
	Name     string
	Email    string
	Password string
}

// ListUsersResult is one page of members.
type ListUsersResult struct {
	Items      []*domain.User
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// UserService manages member accounts. Every call carries the caller's
// identity; self-or-admin rules are enforced inside.
type UserService interface {
	ListUsers(ctx context.Context, caller domain.Identity, page, limit int) (*ListUsersResult, error)
	GetUser(ctx context.Context, caller domain.Identity, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, caller domain.Identity, id string, input UpdateUserInput) (*domain.User, error)
	DeleteUser(ctx context.Context, caller domain.Identity, id string) error
}
