package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

const testUserID = "65f1c0ffee0000000000a001"

type stubUserService struct {
	listFn   func(ctx context.Context, caller domain.Identity, page, limit int) (*ports.ListUsersResult, error)
	getFn    func(ctx context.Context, caller domain.Identity, id string) (*domain.User, error)
	updateFn func(ctx context.Context, caller domain.Identity, id string, in ports.UpdateUserInput) (*domain.User, error)
	deleteFn func(ctx context.Context, caller domain.Identity, id string) error
}

func (s *stubUserService) ListUsers(ctx context.Context, caller domain.Identity, page, limit int) (*ports.ListUsersResult, error) {
	return s.listFn(ctx, caller, page, limit)
}

func (s *stubUserService) GetUser(ctx context.Context, caller domain.Identity, id string) (*domain.User, error) {
	return s.getFn(ctx, caller, id)
}

func (s *stubUserService) UpdateUser(ctx context.Context, caller domain.Identity, id string, in ports.UpdateUserInput) (*domain.User, error) {
	return s.updateFn(ctx, caller, id, in)
}

func (s *stubUserService) DeleteUser(ctx context.Context, caller domain.Identity, id string) error {
	return s.deleteFn(ctx, caller, id)
}

func sampleUser() *domain.User {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.User{
		ID:           testUserID,
		Name:         "Alice",
		Email:        "alice@library.test",
		PasswordHash: "$2a$10$secret",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserHandler_List(t *testing.T) {
	var gotCaller domain.Identity
	var gotPage, gotLimit int
	h := NewUserHandler(&stubUserService{
		listFn: func(_ context.Context, caller domain.Identity, page, limit int) (*ports.ListUsersResult, error) {
			gotCaller, gotPage, gotLimit = caller, page, limit
			return &ports.ListUsersResult{
				Items:      []*domain.User{sampleUser()},
				Total:      11,
				Page:       2,
				Limit:      10,
				TotalPages: 2,
			}, nil
		},
	})

	c, rec := newJSONContext(http.MethodGet, "/api/users?page=2&limit=10", "")
	withIdentity(c, "admin", true)

	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Identity{UserID: "admin", IsAdmin: true}, gotCaller)
	assert.Equal(t, 2, gotPage)
	assert.Equal(t, 10, gotLimit)

	var resp listUsersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, paginationResponse{Total: 11, Page: 2, Limit: 10, TotalPages: 2}, resp.Pagination)
	assert.NotContains(t, rec.Body.String(), "secret")

	c, _ = newJSONContext(http.MethodGet, "/api/users?page=0", "")
	withIdentity(c, "admin", true)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, h.List(c)))
}

func TestUserHandler_Get(t *testing.T) {
	h := NewUserHandler(&stubUserService{
		getFn: func(_ context.Context, caller domain.Identity, id string) (*domain.User, error) {
			if !caller.CanActOn(id) {
				return nil, domain.ErrForbidden
			}
			return sampleUser(), nil
		},
	})

	c, rec := newJSONContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(testUserID)
	withIdentity(c, testUserID, false)
	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice@library.test", resp.Email)

	c, _ = newJSONContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(testUserID)
	withIdentity(c, "someone-else", false)
	assert.ErrorIs(t, h.Get(c), domain.ErrForbidden)

	c, _ = newJSONContext(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusUnauthorized, httpCode(t, h.Get(c)))
}

func TestUserHandler_Update(t *testing.T) {
	var got ports.UpdateUserInput
	h := NewUserHandler(&stubUserService{
		updateFn: func(_ context.Context, _ domain.Identity, _ string, in ports.UpdateUserInput) (*domain.User, error) {
			got = in
			u := sampleUser()
			u.Name = in.Name
			return u, nil
		},
	})

	c, rec := newJSONContext(http.MethodPut, "/",
		`{"name":"Alice B","email":"alice@library.test","is_admin":true}`)
	c.SetParamNames("id")
	c.SetParamValues(testUserID)
	withIdentity(c, testUserID, false)

	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ports.UpdateUserInput{Name: "Alice B", Email: "alice@library.test"}, got)

	var resp userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsAdmin)

	for _, body := range []string{
		`{"name":"Alice","email":"not-an-email"}`,
		`{"name":"Alice","email":"alice@library.test","password":"short"}`,
	} {
		c, _ := newJSONContext(http.MethodPut, "/", body)
		withIdentity(c, testUserID, false)
		assert.Equal(t, http.StatusBadRequest, httpCode(t, h.Update(c)), body)
	}
}

func TestUserHandler_Delete(t *testing.T) {
	h := NewUserHandler(&stubUserService{
		deleteFn: func(_ context.Context, _ domain.Identity, id string) error {
			if id == testUserID {
				return domain.ErrUserHasLoans
			}
			return nil
		},
	})

	c, rec := newJSONContext(http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("65f1c0ffee0000000000a002")
	withIdentity(c, "admin", true)
	require.NoError(t, h.Delete(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, _ = newJSONContext(http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(testUserID)
	withIdentity(c, "admin", true)
	assert.ErrorIs(t, h.Delete(c), domain.ErrUserHasLoans)
}
