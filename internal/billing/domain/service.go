package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/martpos/internal/authorization"
	"github.com/smallbiznis/martpos/pkg/db/pagination"
)

type Service interface {
	CreateBill(ctx context.Context, cashier authorization.Identity, req CreateBillRequest) (*BillResponse, error)
	Get(ctx context.Context, id string) (*BillResponse, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	SalesSummary(ctx context.Context, req SummaryRequest) (*SalesSummary, error)
	// Receipt renders the bill as a PDF document.
	Receipt(ctx context.Context, id string) (*ReceiptFile, error)
}

const MaxLines = 200

type LineInput struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type CreateBillRequest struct {
	Lines []LineInput `json:"lines"`
}

type ListRequest struct {
	From *time.Time
	To   *time.Time
	pagination.Pagination
}

type ListResponse struct {
	Items    []BillResponse      `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type SummaryRequest struct {
	From *time.Time
	To   *time.Time
	Top  int
}

type LineResponse struct {
	Position    int     `json:"position"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Barcode     *string `json:"barcode,omitempty"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   int64   `json:"unit_price"`
	Amount      int64   `json:"amount"`
}

type BillResponse struct {
	ID        string         `json:"id"`
	Number    string         `json:"number"`
	CashierID string         `json:"cashier_id"`
	Total     int64          `json:"total"`
	ItemCount int64          `json:"item_count"`
	CreatedAt time.Time      `json:"created_at"`
	Lines     []LineResponse `json:"lines,omitempty"`
}

type TopProduct struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	Revenue     int64  `json:"revenue"`
}

type SalesSummary struct {
	From        *time.Time   `json:"from,omitempty"`
	To          *time.Time   `json:"to,omitempty"`
	BillCount   int64        `json:"bill_count"`
	ItemCount   int64        `json:"item_count"`
	Revenue     int64        `json:"revenue"`
	AverageBill int64        `json:"average_bill"`
	TopProducts []TopProduct `json:"top_products"`
}

type ReceiptFile struct {
	Filename string
	Content  []byte
}

var (
	ErrEmptyBill        = errors.New("empty_bill")
	ErrTooManyLines     = errors.New("too_many_lines")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidProduct   = errors.New("invalid_product_id")
	ErrProductInactive  = errors.New("product_inactive")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrNotFound         = errors.New("not_found")
	ErrAmountOverflow   = errors.New("amount_overflow")
)
