package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/librarium/circulation/internal/core/domain"
)

// ctxIdentity extracts the identity injected by the Auth middleware and
// fails fast before any service call when it is missing.
func ctxIdentity(c echo.Context) (domain.Identity, error) {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return domain.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	isAdmin, _ := c.Get("is_admin").(bool)
	return domain.Identity{UserID: userID, IsAdmin: isAdmin}, nil
}
