package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

// BookHandler exposes the catalog.
type BookHandler struct {
	service ports.BookService
}

func NewBookHandler(service ports.BookService) *BookHandler {
	return &BookHandler{service: service}
}

// Create handles POST /api/books.
//
// @Summary      Add a book to the catalog
// @Tags         books
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createBookRequest  true  "Book details"
// @Success      201   {object}  bookResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/books [post]
func (h *BookHandler) Create(c echo.Context) error {
	var req createBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	book, err := h.service.CreateBook(c.Request().Context(), ports.CreateBookInput{
		Title:      req.Title,
		Author:     req.Author,
		ISBN:       req.ISBN,
		Category:   req.Category,
		CoverImage: req.CoverImage,
		AddedBy:    id.UserID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toBookResponse(book))
}

// Get handles GET /api/books/:id.
//
// @Summary      Get a book
// @Tags         books
// @Produce      json
// @Param        id   path      string  true  "Book id"
// @Success      200  {object}  bookResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/books/{id} [get]
func (h *BookHandler) Get(c echo.Context) error {
	book, err := h.service.GetBook(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookResponse(book))
}

// List handles GET /api/books.
//
// @Summary      Search the catalog
// @Tags         books
// @Produce      json
// @Param        title     query     string  false  "Title contains (case-insensitive)"
// @Param        author    query     string  false  "Author contains (case-insensitive)"
// @Param        category  query     string  false  "Exact category"
// @Param        is_available  query  bool  false  "Only lendable (true) or lent (false) books"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Page size (default 10, max 100)"
// @Success      200       {object}  listBooksResponse
// @Failure      400       {object}  errorResponse
// @Router       /api/books [get]
func (h *BookHandler) List(c echo.Context) error {
	var q listBooksQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if err := c.Validate(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	in := ports.ListBooksInput{
		Title:    q.Title,
		Author:   q.Author,
		Category: q.Category,
		Page:     q.Page,
		Limit:    q.Limit,
	}
	if q.Available != "" {
		available, err := strconv.ParseBool(q.Available)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "is_available must be true or false")
		}
		in.Available = &available
	}

	result, err := h.service.ListBooks(c.Request().Context(), in)
	if err != nil {
		return err
	}

	data := make([]bookResponse, 0, len(result.Items))
	for _, b := range result.Items {
		data = append(data, toBookResponse(b))
	}
	return c.JSON(http.StatusOK, listBooksResponse{
		Data: data,
		Pagination: paginationResponse{
			Total:      result.Total,
			Page:       result.Page,
			Limit:      result.Limit,
			TotalPages: result.TotalPages,
		},
	})
}

// Update handles PUT /api/books/:id.
//
// @Summary      Update a book's catalog fields
// @Description  Availability is managed by borrows and returns and cannot be set here.
// @Tags         books
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "Book id"
// @Param        body  body      updateBookRequest  true  "Book details"
// @Success      200   {object}  bookResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/books/{id} [put]
func (h *BookHandler) Update(c echo.Context) error {
	var req updateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	book, err := h.service.UpdateBook(c.Request().Context(), c.Param("id"), ports.UpdateBookInput{
		Title:      req.Title,
		Author:     req.Author,
		ISBN:       req.ISBN,
		Category:   req.Category,
		CoverImage: req.CoverImage,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookResponse(book))
}

// Delete handles DELETE /api/books/:id.
//
// @Summary      Remove a book from the catalog
// @Description  A book that is currently lent cannot be removed.
// @Tags         books
// @Security     BearerAuth
// @Param        id   path  string  true  "Book id"
// @Success      204
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /api/books/{id} [delete]
func (h *BookHandler) Delete(c echo.Context) error {
	if err := h.service.DeleteBook(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UploadCover handles PATCH /api/books/:id/cover.
//
// @Summary      Upload a cover image
// @Tags         books
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true  "Book id"
// @Param        cover  formData  file    true  "JPEG, PNG, WebP or GIF image, at most 2 MiB"
// @Success      200    {object}  bookResponse
// @Failure      400    {object}  errorResponse
// @Failure      401    {object}  errorResponse
// @Failure      403    {object}  errorResponse
// @Failure      404    {object}  errorResponse
// @Router       /api/books/{id}/cover [patch]
func (h *BookHandler) UploadCover(c echo.Context) error {
	fh, err := c.FormFile("cover")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cover file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cover file is unreadable")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, domain.MaxCoverBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cover file is unreadable")
	}

	book, err := h.service.UploadCover(c.Request().Context(), c.Param("id"), data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookResponse(book))
}

// Cover handles GET /api/books/:id/cover.
//
// @Summary      Download a book's cover image
// @Tags         books
// @Produce      image/jpeg,image/png,image/webp,image/gif
// @Param        id   path  string  true  "Book id"
// @Success      200
// @Failure      404  {object}  errorResponse
// @Router       /api/books/{id}/cover [get]
func (h *BookHandler) Cover(c echo.Context) error {
	rc, contentType, err := h.service.OpenCover(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	defer rc.Close()

	c.Response().Header().Set("Cache-Control", "public, max-age=300")
	return c.Stream(http.StatusOK, contentType, rc)
}

func toBookResponse(b *domain.Book) bookResponse {
	return bookResponse{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		ISBN:        b.ISBN,
		Category:    b.Category,
		CoverImage:  b.CoverImage,
		IsAvailable: b.IsAvailable,
		AddedBy:     b.AddedBy,
		CreatedAt:   b.CreatedAt.UTC(),
		UpdatedAt:   b.UpdatedAt.UTC(),
	}
}
