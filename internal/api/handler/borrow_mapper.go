package handler

import (
	"github.com/librarium/circulation/internal/core/domain"
	"github.com/librarium/circulation/internal/core/ports"
)

// --- Request → Service input ---

func toBorrowInput(req createBorrowRequest, id domain.Identity, idempotencyKey string) ports.BorrowInput {
	return ports.BorrowInput{
		Identity:       id,
		BookID:         req.BookID,
		IdempotencyKey: idempotencyKey,
	}
}

func toListBorrowsInput(q listBorrowsQuery) ports.ListBorrowsInput {
	return ports.ListBorrowsInput{
		Status:   q.Status,
		Page:     q.Page,
		PageSize: q.Limit,
	}
}

// --- Service result → HTTP response ---

func toBorrowResponse(r *ports.BorrowResult) borrowResponse {
	resp := borrowResponse{
		ID:         r.ID,
		Status:     r.Status,
		BorrowedAt: r.BorrowedAt.UTC(),
		DueDate:    r.DueDate.UTC(),
		Borrower: borrowerResponse{
			ID:    r.Borrower.ID,
			Name:  r.Borrower.Name,
			Email: r.Borrower.Email,
		},
		Book: borrowedBookResponse{
			ID:     r.Book.ID,
			Title:  r.Book.Title,
			Author: r.Book.Author,
		},
		Links: borrowLinks{Self: "/api/borrows/" + r.ID},
	}
	if r.ReturnedAt != nil {
		t := r.ReturnedAt.UTC()
		resp.ReturnedAt = &t
	}
	if domain.BorrowStatus(r.Status).Outstanding() {
		resp.Links.Return = "/api/borrows/" + r.ID + "/return"
	}
	return resp
}

func toListBorrowsResponse(r *ports.ListBorrowsResult) listBorrowsResponse {
	data := make([]borrowResponse, 0, len(r.Items))
	for i := range r.Items {
		data = append(data, toBorrowResponse(&r.Items[i]))
	}
	return listBorrowsResponse{
		Data: data,
		Pagination: paginationResponse{
			Total:      r.Total,
			Page:       r.Page,
			Limit:      r.PageSize,
			TotalPages: r.TotalPages,
		},
	}
}
