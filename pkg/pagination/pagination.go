package pagination

import (
	"net/http"
	"strconv"
)

// Defaults applied at the API boundary. Handlers clamp here so the layers
// below can assume page >= 1 and 1 <= page_size <= 100.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// DefaultParams returns the boundary defaults.
func DefaultParams() Params {
	return Params{
		Page:     DefaultPage,
		PageSize: DefaultPageSize,
	}
}

// FromRequest extracts pagination parameters from an HTTP request, clamping
// out-of-range values back to the defaults. A page below 1 becomes 1; a
// page_size outside 1..100 becomes the default.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()

	if page := r.URL.Query().Get("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v >= 1 {
			p.Page = v
		}
	}

	if size := r.URL.Query().Get("page_size"); size != "" {
		if v, err := strconv.Atoi(size); err == nil && v >= 1 && v <= MaxPageSize {
			p.PageSize = v
		}
	}

	return p
}

// Offset computes the result offset for the current page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}
