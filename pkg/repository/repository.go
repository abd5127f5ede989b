// Package repository provides a typed repository layer on top of a storage
// adapter.
package repository

import "context"

// Reader provides read operations for entities
type Reader[T any] interface {
	FindByID(ctx context.Context, id any) (*T, error)
	FindAll(ctx context.Context, opts QueryOptions) ([]*T, error)
	First(ctx context.Context) (*T, error)
	Last(ctx context.Context) (*T, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

// Writer provides write operations for entities
type Writer[T any] interface {
	Save(ctx context.Context, entity *T) (*T, error)
	Create(ctx context.Context, entity *T) (*T, error)
	Update(ctx context.Context, entity *T) (*T, error)
	Delete(ctx context.Context, entity *T) error
	DeleteWhere(ctx context.Context, filter Filter) error
	Clear(ctx context.Context) error
}

// Repository combines Reader and Writer interfaces for complete CRUD
// operations
type Repository[T any] interface {
	Reader[T]
	Writer[T]
}

// QueryOptions encapsulates filtering, sorting, and pagination options for
// queries
type QueryOptions struct {
	Filter     Filter
	Sort       Sort
	Pagination Pagination
}

// Filter represents field-based filtering criteria, combined with AND
// logic
type Filter map[string]any

// Sort specifies field and direction for sorting results
type Sort struct {
	Field string
	Order SortOrder
}

// SortOrder defines the sort direction for queries.
type SortOrder string

// Sort order constants
const (
	// SortAsc sorts in ascending order
	SortAsc SortOrder = "asc"
	// SortDesc sorts in descending order
	SortDesc SortOrder = "desc"
)

// Pagination specifies page-based pagination parameters
type Pagination struct {
	Page     int
	PageSize int
}

// Offset calculates the offset for queries
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Limit returns the page size for queries
func (p Pagination) Limit() int {
	return p.PageSize
}
