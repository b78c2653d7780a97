package query

import (
	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

// Pagination bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 1000
)

// Pagination is a validated 1-based page request.
type Pagination struct {
	Page  int
	Limit int
}

// NewPagination validates page and limit. Non-positive values and limits
// above MaxLimit are rejected rather than clamped.
func NewPagination(page, limit int) (Pagination, error) {
	if page < 1 {
		return Pagination{}, domainerrors.InvalidArgumentf("page must be >= 1, got %d", page).
			WithDetails(map[string]any{"field": "page", "value": page})
	}
	if limit < 1 {
		return Pagination{}, domainerrors.InvalidArgumentf("limit must be >= 1, got %d", limit).
			WithDetails(map[string]any{"field": "limit", "value": limit})
	}
	if limit > MaxLimit {
		return Pagination{}, domainerrors.InvalidArgumentf("limit must be <= %d, got %d", MaxLimit, limit).
			WithDetails(map[string]any{"field": "limit", "value": limit})
	}
	return Pagination{Page: page, Limit: limit}, nil
}

// DefaultPagination is the first page at the default limit.
func DefaultPagination() Pagination {
	return Pagination{Page: DefaultPage, Limit: DefaultLimit}
}

// Offset is the number of rows skipped before this page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}
