package pagination

import (
	"net/http"
	"strconv"
)

// MaxPerPage caps the page size a client may request.
const MaxPerPage = 100

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns the first page of 20.
func DefaultParams() Params {
	return Params{
		Page:    1,
		PerPage: 20,
		Offset:  0,
	}
}

// FromRequest extracts page and per_page from the query string. Invalid or
// out-of-range values fall back to the defaults.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()

	if page := r.URL.Query().Get("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 0 {
			p.Page = v
		}
	}

	if perPage := r.URL.Query().Get("per_page"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= MaxPerPage {
			p.PerPage = v
		}
	}

	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// Result wraps one page of an in-memory collection.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// Paginate slices items according to params. A page past the end yields an
// empty, non-nil Data slice.
func Paginate[T any](items []T, params Params) Result[T] {
	total := len(items)
	totalPages := total / params.PerPage
	if total%params.PerPage > 0 {
		totalPages++
	}

	start := min(params.Offset, total)
	end := min(start+params.PerPage, total)
	page := make([]T, end-start)
	copy(page, items[start:end])

	return Result[T]{
		Data:       page,
		TotalCount: total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
