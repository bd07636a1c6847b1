package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/martpos/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Archive(ctx context.Context, id string) (*Response, error)
	// FindByBarcode returns nil, nil when no active product carries code.
	FindByBarcode(ctx context.Context, code string) (*Product, error)
	// Lookup loads a product inside tx, or the default connection when tx is nil.
	Lookup(ctx context.Context, tx *gorm.DB, id int64) (*Product, error)
	AdjustStock(ctx context.Context, tx *gorm.DB, id int64, delta int64) error
}

type ListRequest struct {
	Name   string
	Active *bool
	// Sort is "asc" (oldest first, default) or "desc".
	Sort string
	pagination.Pagination
}

type ListResponse struct {
	Items    []Response          `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type CreateRequest struct {
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Barcode     *string        `json:"barcode"`
	Price       int64          `json:"price"`
	Stock       int64          `json:"stock"`
	Active      *bool          `json:"active"`
	Metadata    map[string]any `json:"metadata"`
}

type UpdateRequest struct {
	ID          string         `json:"-"`
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Barcode     *string        `json:"barcode"`
	Price       *int64         `json:"price"`
	Stock       *int64         `json:"stock"`
	Active      *bool          `json:"active"`
	Metadata    map[string]any `json:"metadata"`
}

type Response struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Barcode     *string        `json:"barcode,omitempty"`
	Price       int64          `json:"price"`
	Stock       int64          `json:"stock"`
	Active      bool           `json:"active"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

const MaxBarcodeLength = 64

var (
	ErrInvalidCode       = errors.New("invalid_code")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrInvalidStock      = errors.New("invalid_stock")
	ErrInvalidBarcode    = errors.New("invalid_barcode")
	ErrInvalidSort       = errors.New("invalid_sort")
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("not_found")
	ErrConflict          = errors.New("product_conflict")
	ErrInsufficientStock = errors.New("insufficient_stock")
)
