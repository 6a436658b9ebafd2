package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

const (
	defaultUserPageSize = 10
	maxUserPageSize     = 100
)

// UserService manages member accounts after registration.
type UserService struct {
	users   ports.UserRepository
	borrows ports.BorrowRepository
	log     zerolog.Logger
}

func NewUserService(users ports.UserRepository, borrows ports.BorrowRepository, log zerolog.Logger) *UserService {
	return &UserService{users: users, borrows: borrows, log: log}
}

// ListUsers is restricted to admins.
func (s *UserService) ListUsers(ctx context.Context, caller domain.Identity, page, limit int) (*ports.ListUsersResult, error) {
	if !caller.IsAdmin {
		return nil, fmt.Errorf("list users: %w", domain.ErrForbidden)
	}

	page, limit = normalizePage(page, limit, defaultUserPageSize, maxUserPageSize)
	users, total, err := s.users.List(ctx, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return &ports.ListUsersResult{
		Items:      users,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}

func (s *UserService) GetUser(ctx context.Context, caller domain.Identity, id string) (*domain.User, error) {
	if !caller.CanActOn(id) {
		return nil, fmt.Errorf("get user: %w", domain.ErrForbidden)
	}
	if !domain.IsValidID(id) {
		return nil, domain.ErrUserNotFound
	}
	return s.users.FindByID(ctx, id)
}

// UpdateUser replaces name and email, and the password when one is given.
// The admin flag cannot be changed through this path.
func (s *UserService) UpdateUser(ctx context.Context, caller domain.Identity, id string, in ports.UpdateUserInput) (*domain.User, error) {
	if !caller.CanActOn(id) {
		return nil, fmt.Errorf("update user: %w", domain.ErrForbidden)
	}
	if !domain.IsValidID(id) {
		return nil, domain.ErrUserNotFound
	}

	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("update user: name and email are required: %w", domain.ErrValidation)
	}

	current, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	current.Name = name
	current.Email = email
	current.UpdatedAt = time.Now().UTC()
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		current.PasswordHash = string(hash)
	}

	updated, err := s.users.Update(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.log.Info().Str("user_id", id).Str("by", caller.UserID).Msg("user updated")
	return updated, nil
}

// DeleteUser removes an account that no longer holds any book. Its borrow
// history stays in the ledger.
func (s *UserService) DeleteUser(ctx context.Context, caller domain.Identity, id string) error {
	if !caller.CanActOn(id) {
		return fmt.Errorf("delete user: %w", domain.ErrForbidden)
	}
	if !domain.IsValidID(id) {
		return domain.ErrUserNotFound
	}

	holding, err := s.borrows.UserHasOutstanding(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if holding {
		return fmt.Errorf("delete user: %w", domain.ErrUserHasLoans)
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	s.log.Info().Str("user_id", id).Str("by", caller.UserID).Msg("user deleted")
	return nil
}
