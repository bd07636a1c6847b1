package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ListFilter struct {
	Name    string
	Active  *bool
	Desc    bool
	AfterID int64
	Limit   int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	Update(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	FindByBarcode(ctx context.Context, db *gorm.DB, barcode string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Product, error)
	// AddStock applies delta only when the result stays non-negative and
	// reports how many rows changed.
	AddStock(ctx context.Context, db *gorm.DB, id int64, delta int64, at time.Time) (int64, error)
}
