package handler

import "time"

type createBookRequest struct {
	Title      string `json:"title"       validate:"required,max=200"`
	Author     string `json:"author"      validate:"required,max=200"`
	ISBN       string `json:"isbn"        validate:"required,min=10,max=17"`
	Category   string `json:"category"    validate:"omitempty,max=50"`
	CoverImage string `json:"cover_image" validate:"omitempty,uri"`
}

type updateBookRequest struct {
	Title      string `json:"title"       validate:"required,max=200"`
	Author     string `json:"author"      validate:"required,max=200"`
	ISBN       string `json:"isbn"        validate:"required,min=10,max=17"`
	Category   string `json:"category"    validate:"omitempty,max=50"`
	CoverImage string `json:"cover_image" validate:"omitempty,uri"`
}

type listBooksQuery struct {
	Title     string `query:"title"`
	Author    string `query:"author"`
	Category  string `query:"category"`
	Available string `query:"is_available"`
	Page      int    `query:"page"         validate:"omitempty,min=1,max=1000000"`
	Limit     int    `query:"limit"        validate:"omitempty,min=1"`
}

type bookResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	ISBN        string    `json:"isbn"`
	Category    string    `json:"category"`
	CoverImage  string    `json:"cover_image,omitempty"`
	IsAvailable bool      `json:"is_available"`
	AddedBy     string    `json:"added_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type listBooksResponse struct {
	Data       []bookResponse     `json:"data"`
	Pagination paginationResponse `json:"pagination"`
}
