package handler

import "time"

type createBorrowRequest struct {
	BookID string `json:"book_id" validate:"required,mongodb"`
}

type listBorrowsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=active returned overdue"`
	Page   int    `query:"page"   validate:"omitempty,min=1,max=1000000"`
	Limit  int    `query:"limit"  validate:"omitempty,min=1"`
}

// Response-only types owned by the transport layer.

type borrowerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type borrowedBookResponse struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type borrowLinks struct {
	Self   string `json:"self"`
	Return string `json:"return,omitempty"`
}

type borrowResponse struct {
	ID         string               `json:"id"`
	Status     string               `json:"status"`
	BorrowedAt time.Time            `json:"borrowed_at"`
	DueDate    time.Time            `json:"due_date"`
	ReturnedAt *time.Time           `json:"returned_at,omitempty"`
	Borrower   borrowerResponse     `json:"borrower"`
	Book       borrowedBookResponse `json:"book"`
	Links      borrowLinks          `json:"_links"`
}

type listBorrowsResponse struct {
	Data       []borrowResponse   `json:"data"`
	Pagination paginationResponse `json:"pagination"`
}
