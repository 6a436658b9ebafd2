package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

type stubBookService struct {
	createFn func(ctx context.Context, in ports.CreateBookInput) (*domain.Book, error)
	getFn    func(ctx context.Context, id string) (*domain.Book, error)
	listFn   func(ctx context.Context, in ports.ListBooksInput) (*ports.ListBooksResult, error)
	updateFn func(ctx context.Context, id string, in ports.UpdateBookInput) (*domain.Book, error)
	deleteFn func(ctx context.Context, id string) error
	uploadFn func(ctx context.Context, id string, data []byte) (*domain.Book, error)
	openFn   func(ctx context.Context, id string) (io.ReadCloser, string, error)
}

func (s *stubBookService) CreateBook(ctx context.Context, in ports.CreateBookInput) (*domain.Book, error) {
	return s.createFn(ctx, in)
}

func (s *stubBookService) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	return s.getFn(ctx, id)
}

func (s *stubBookService) ListBooks(ctx context.Context, in ports.ListBooksInput) (*ports.ListBooksResult, error) {
	return s.listFn(ctx, in)
}

func (s *stubBookService) UpdateBook(ctx context.Context, id string, in ports.UpdateBookInput) (*domain.Book, error) {
	return s.updateFn(ctx, id, in)
}

func (s *stubBookService) DeleteBook(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *stubBookService) UploadCover(ctx context.Context, id string, data []byte) (*domain.Book, error) {
	return s.uploadFn(ctx, id, data)
}

func (s *stubBookService) OpenCover(ctx context.Context, id string) (io.ReadCloser, string, error) {
	return s.openFn(ctx, id)
}

func sampleBook() *domain.Book {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.Book{
		ID:          testBookID,
		Title:       "Dune",
		Author:      "Frank Herbert",
		ISBN:        "9780441172719",
		Category:    "Fiction",
		IsAvailable: true,
		AddedBy:     "admin-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestBookHandler_Create(t *testing.T) {
	var got ports.CreateBookInput
	h := NewBookHandler(&stubBookService{
		createFn: func(_ context.Context, in ports.CreateBookInput) (*domain.Book, error) {
			got = in
			return sampleBook(), nil
		},
	})

	c, rec := newJSONContext(http.MethodPost, "/api/books",
		`{"title":"Dune","author":"Frank Herbert","isbn":"9780441172719"}`)
	withIdentity(c, "admin-1", true)

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "admin-1", got.AddedBy)
	assert.Equal(t, "9780441172719", got.ISBN)

	var resp bookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsAvailable)
	assert.Equal(t, testBookID, resp.ID)
}

func TestBookHandler_Create_Invalid(t *testing.T) {
	h := NewBookHandler(&stubBookService{})

	c, _ := newJSONContext(http.MethodPost, "/api/books", `{"title":"Dune"}`)
	withIdentity(c, "admin-1", true)

	assert.Equal(t, http.StatusBadRequest, httpCode(t, h.Create(c)))
}

func TestBookHandler_Get(t *testing.T) {
	h := NewBookHandler(&stubBookService{
		getFn: func(_ context.Context, id string) (*domain.Book, error) {
			if id != testBookID {
				return nil, domain.ErrBookNotFound
			}
			return sampleBook(), nil
		},
	})

	c, rec := newJSONContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(testBookID)
	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, _ = newJSONContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("65f1c0ffee0000000000ffff")
	assert.ErrorIs(t, h.Get(c), domain.ErrBookNotFound)
}

func TestBookHandler_List(t *testing.T) {
	var got ports.ListBooksInput
	h := NewBookHandler(&stubBookService{
		listFn: func(_ context.Context, in ports.ListBooksInput) (*ports.ListBooksResult, error) {
			got = in
			return &ports.ListBooksResult{
				Items:      []*domain.Book{sampleBook()},
				Total:      1,
				Page:       1,
				Limit:      5,
				TotalPages: 1,
			}, nil
		},
	})

	c, rec := newJSONContext(http.MethodGet, "/api/books?title=dune&category=Fiction&limit=5", "")
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ports.ListBooksInput{Title: "dune", Category: "Fiction", Limit: 5}, got)

	var resp listBooksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Dune", resp.Data[0].Title)
	assert.Equal(t, 5, resp.Pagination.Limit)
}

func TestBookHandler_List_Availability(t *testing.T) {
	var got ports.ListBooksInput
	h := NewBookHandler(&stubBookService{
		listFn: func(_ context.Context, in ports.ListBooksInput) (*ports.ListBooksResult, error) {
			got = in
			return &ports.ListBooksResult{Page: 1, Limit: 10}, nil
		},
	})

	c, _ := newJSONContext(http.MethodGet, "/api/books?is_available=false", "")
	require.NoError(t, h.List(c))
	require.NotNil(t, got.Available)
	assert.False(t, *got.Available)

	c, _ = newJSONContext(http.MethodGet, "/api/books", "")
	require.NoError(t, h.List(c))
	assert.Nil(t, got.Available)

	for _, target := range []string{"/api/books?is_available=maybe", "/api/books?page=1000001"} {
		c, _ = newJSONContext(http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, httpCode(t, h.List(c)), target)
	}
}

func TestBookHandler_Update(t *testing.T) {
	var gotID string
	var got ports.UpdateBookInput
	h := NewBookHandler(&stubBookService{
		updateFn: func(_ context.Context, id string, in ports.UpdateBookInput) (*domain.Book, error) {
			gotID, got = id, in
			b := sampleBook()
			b.Title = in.Title
			b.IsAvailable = false
			return b, nil
		},
	})

	c, rec := newJSONContext(http.MethodPut, "/",
		`{"title":"Dune Messiah","author":"Frank Herbert","isbn":"9780441172696","is_available":true}`)
	c.SetParamNames("id")
	c.SetParamValues(testBookID)

	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testBookID, gotID)
	assert.Equal(t, ports.UpdateBookInput{Title: "Dune Messiah", Author: "Frank Herbert", ISBN: "9780441172696"}, got)

	var resp bookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsAvailable)

	c, _ = newJSONContext(http.MethodPut, "/", `{"title":"Dune"}`)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, h.Update(c)))
}

func TestBookHandler_Delete(t *testing.T) {
	h := NewBookHandler(&stubBookService{
		deleteFn: func(_ context.Context, id string) error {
			if id == testBookID {
				return domain.ErrBookUnavailable
			}
			return nil
		},
	})

	c, rec := newJSONContext(http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("65f1c0ffee0000000000b002")
	require.NoError(t, h.Delete(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, _ = newJSONContext(http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(testBookID)
	assert.ErrorIs(t, h.Delete(c), domain.ErrBookUnavailable)
}

func newCoverContext(t *testing.T, field string, data []byte) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "cover.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPatch, "/", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(testBookID)
	return c, rec
}

func TestBookHandler_UploadCover(t *testing.T) {
	var got []byte
	h := NewBookHandler(&stubBookService{
		uploadFn: func(_ context.Context, _ string, data []byte) (*domain.Book, error) {
			got = data
			b := sampleBook()
			b.CoverImage = "/api/books/" + testBookID + "/cover"
			return b, nil
		},
	})

	c, rec := newCoverContext(t, "cover", []byte("image-bytes"))
	require.NoError(t, h.UploadCover(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("image-bytes"), got)

	var resp bookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/api/books/"+testBookID+"/cover", resp.CoverImage)

	t.Run("reads at most one byte past the limit", func(t *testing.T) {
		c, _ := newCoverContext(t, "cover", make([]byte, domain.MaxCoverBytes+100))
		require.NoError(t, h.UploadCover(c))
		assert.Len(t, got, domain.MaxCoverBytes+1)
	})

	t.Run("missing file", func(t *testing.T) {
		c, _ := newCoverContext(t, "image", []byte("x"))
		assert.Equal(t, http.StatusBadRequest, httpCode(t, h.UploadCover(c)))
	})
}

func TestBookHandler_Cover(t *testing.T) {
	h := NewBookHandler(&stubBookService{
		openFn: func(_ context.Context, id string) (io.ReadCloser, string, error) {
			if id != testBookID {
				return nil, "", domain.ErrCoverNotFound
			}
			return io.NopCloser(strings.NewReader("png-data")), "image/png", nil
		},
	})

	c, rec := newJSONContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(testBookID)
	require.NoError(t, h.Cover(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "png-data", rec.Body.String())

	c, _ = newJSONContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("65f1c0ffee0000000000ffff")
	assert.ErrorIs(t, h.Cover(c), domain.ErrCoverNotFound)
}
