package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ListFilter struct {
	From     *time.Time
	To       *time.Time
	BeforeID int64
	Limit    int
}

type Totals struct {
	BillCount int64
	ItemCount int64
	Revenue   int64
}

type ProductSales struct {
	ProductID   int64
	ProductName string
	Quantity    int64
	Revenue     int64
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, bill *Bill) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Bill, error)
	// List returns bills newest first without their lines.
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Bill, error)
	CountBetween(ctx context.Context, db *gorm.DB, from, to time.Time) (int64, error)
	Totals(ctx context.Context, db *gorm.DB, from, to *time.Time) (Totals, error)
	TopProducts(ctx context.Context, db *gorm.DB, from, to *time.Time, limit int) ([]ProductSales, error)
}
