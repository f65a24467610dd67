package common

import (
	"net/http"
	"strconv"
)

const (
	// DefaultPageSize is used when the caller does not specify a limit.
	DefaultPageSize = 20
	// MaxPageSize caps a single page regardless of the requested limit.
	MaxPageSize = 100
)

// PageParams represents limit/offset pagination parameters.
type PageParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// DefaultPageParams returns the default pagination parameters.
func DefaultPageParams() PageParams {
	return PageParams{Limit: DefaultPageSize, Offset: 0}
}

// ExtractPageParams extracts limit/offset from request query parameters.
func ExtractPageParams(r *http.Request) PageParams {
	params := DefaultPageParams()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			if l > MaxPageSize {
				l = MaxPageSize
			}
			params.Limit = l
		}
	}

	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			params.Offset = o
		}
	}

	return params
}

// Normalize clamps out-of-range values to usable ones.
func (p PageParams) Normalize() PageParams {
	out := p
	if out.Limit <= 0 {
		out.Limit = DefaultPageSize
	}
	if out.Limit > MaxPageSize {
		out.Limit = MaxPageSize
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

// Page is the standard paginated list envelope.
type Page[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// NewPage builds a page envelope from an already-sliced item window.
func NewPage[T any](items []T, total int, params PageParams) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:   items,
		Total:   total,
		Offset:  params.Offset,
		Limit:   params.Limit,
		HasMore: params.Offset+len(items) < total,
	}
}

// SlicePage applies limit/offset to a full result set and wraps it in a
// page envelope. Used by stores that materialize the filtered set first.
func SlicePage[T any](all []T, params PageParams) Page[T] {
	params = params.Normalize()
	total := len(all)

	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	return NewPage(all[start:end], total, params)
}
