package ports

import (
	"context"

	"github.com/librarium/circulation/internal/core/domain"
)

// UserRepository defines the interface for user persistence.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)

	// List returns a page of users in creation order and the total count.
	List(ctx context.Context, page, limit int) ([]*domain.User, int64, error)

	// Update rewrites name, email and password hash. The admin flag is
	// never changed here.
	Update(ctx context.Context, user *domain.User) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}
