package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/librarium/circulation/internal/api/metrics"
	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

// HeaderIdempotencyKey lets a client retry a borrow without creating a second record.
const HeaderIdempotencyKey = "Idempotency-Key"

// BorrowHandler handles HTTP requests for circulation operations.
type BorrowHandler struct {
	service ports.BorrowService
}

func NewBorrowHandler(service ports.BorrowService) *BorrowHandler {
	return &BorrowHandler{service: service}
}

// Create handles POST /api/borrows.
//
// @Summary      Borrow a book
// @Tags         borrows
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string               false  "Replays the original borrow when repeated"
// @Param        body             body      createBorrowRequest  true   "Book to borrow"
// @Success      201              {object}  borrowResponse
// @Success      200              {object}  borrowResponse       "Replayed by Idempotency-Key"
// @Failure      400              {object}  errorResponse
// @Failure      401              {object}  errorResponse
// @Failure      404              {object}  errorResponse
// @Failure      409              {object}  errorResponse
// @Failure      422              {object}  errorResponse
// @Failure      500              {object}  errorResponse
// @Router       /api/borrows [post]
func (h *BorrowHandler) Create(c echo.Context) error {
	var req createBorrowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		metrics.BorrowsTotal.WithLabelValues("invalid").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	key := c.Request().Header.Get(HeaderIdempotencyKey)
	result, err := h.service.Borrow(c.Request().Context(), toBorrowInput(req, id, key))
	if err != nil {
		metrics.BorrowsTotal.WithLabelValues(borrowOutcome(err)).Inc()
		return err
	}

	if result.AlreadyExisted {
		metrics.BorrowsTotal.WithLabelValues("replayed").Inc()
		return c.JSON(http.StatusOK, toBorrowResponse(result))
	}
	metrics.BorrowsTotal.WithLabelValues("created").Inc()
	return c.JSON(http.StatusCreated, toBorrowResponse(result))
}

// Return handles PATCH /api/borrows/:id/return.
//
// @Summary      Return a borrowed book
// @Tags         borrows
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Borrow id"
// @Success      200  {object}  borrowResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /api/borrows/{id}/return [patch]
func (h *BorrowHandler) Return(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	result, err := h.service.Return(c.Request().Context(), ports.ReturnInput{
		Identity: id,
		BorrowID: c.Param("id"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrBorrowNotFound) {
			metrics.ReturnsTotal.WithLabelValues("not_found").Inc()
		} else {
			metrics.ReturnsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	metrics.ReturnsTotal.WithLabelValues("returned").Inc()
	return c.JSON(http.StatusOK, toBorrowResponse(result))
}

// CheckIn handles PATCH /api/borrows/:id/check-in.
//
// @Summary      Check in a book on behalf of its borrower
// @Description  Closes an active or overdue borrow regardless of who holds it.
// @Tags         borrows
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Borrow id"
// @Success      200  {object}  borrowResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /api/borrows/{id}/check-in [patch]
func (h *BorrowHandler) CheckIn(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	result, err := h.service.CheckIn(c.Request().Context(), ports.CheckInInput{
		Identity: id,
		BorrowID: c.Param("id"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrBorrowNotFound) {
			metrics.ReturnsTotal.WithLabelValues("not_found").Inc()
		} else if !errors.Is(err, domain.ErrForbidden) {
			metrics.ReturnsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	metrics.ReturnsTotal.WithLabelValues("checked_in").Inc()
	return c.JSON(http.StatusOK, toBorrowResponse(result))
}

// List handles GET /api/borrows.
//
// @Summary      List borrow records
// @Tags         borrows
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Filter by status"  Enums(active, returned, overdue)
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Page size (default 10, max 100)"
// @Success      200     {object}  listBorrowsResponse
// @Failure      400     {object}  errorResponse
// @Failure      401     {object}  errorResponse
// @Failure      403     {object}  errorResponse
// @Failure      500     {object}  errorResponse
// @Router       /api/borrows [get]
func (h *BorrowHandler) List(c echo.Context) error {
	var q listBorrowsQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if err := c.Validate(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.List(c.Request().Context(), toListBorrowsInput(q))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toListBorrowsResponse(result))
}

func borrowOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrBookUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrBookNotFound):
		return "book_not_found"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		return "key_reused"
	default:
		return "error"
	}
}
