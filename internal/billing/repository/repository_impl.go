package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/martpos/internal/billing/domain"
	"github.com/smallbiznis/martpos/pkg/db/option"
	"github.com/smallbiznis/martpos/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func bills(db *gorm.DB) repository.Repository[domain.Bill] {
	return repository.ProvideStore[domain.Bill](db)
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, bill *domain.Bill) error {
	return bills(db).Create(ctx, bill)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Bill, error) {
	return bills(db).FindOne(ctx,
		&domain.Bill{ID: snowflake.ID(id)},
		option.WithPreload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}),
	)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Bill, error) {
	opts := rangeOptions("created_at", filter.From, filter.To)
	if filter.BeforeID > 0 {
		opts = append(opts, option.WithWhere("id < ?", filter.BeforeID))
	}
	opts = append(opts,
		option.WithOrder("id", true),
		option.WithLimit(filter.Limit),
	)
	return bills(db).Find(ctx, nil, opts...)
}

func (r *repo) CountBetween(ctx context.Context, db *gorm.DB, from, to time.Time) (int64, error) {
	return bills(db).Count(ctx, nil, rangeOptions("created_at", &from, &to)...)
}

func (r *repo) Totals(ctx context.Context, db *gorm.DB, from, to *time.Time) (domain.Totals, error) {
	var row struct {
		BillCount int64
		ItemCount int64
		Revenue   int64
	}
	q := db.WithContext(ctx).
		Model(&domain.Bill{}).
		Select("COUNT(*) AS bill_count, COALESCE(SUM(item_count), 0) AS item_count, COALESCE(SUM(total), 0) AS revenue")
	for _, opt := range rangeOptions("created_at", from, to) {
		q = opt.Apply(q)
	}
	if err := q.Scan(&row).Error; err != nil {
		return domain.Totals{}, err
	}
	return domain.Totals{BillCount: row.BillCount, ItemCount: row.ItemCount, Revenue: row.Revenue}, nil
}

func (r *repo) TopProducts(ctx context.Context, db *gorm.DB, from, to *time.Time, limit int) ([]domain.ProductSales, error) {
	var rows []domain.ProductSales
	q := db.WithContext(ctx).
		Table("bill_lines").
		Select("bill_lines.product_id AS product_id, MAX(bill_lines.product_name) AS product_name, SUM(bill_lines.quantity) AS quantity, SUM(bill_lines.amount) AS revenue").
		Joins("JOIN bills ON bills.id = bill_lines.bill_id")
	for _, opt := range rangeOptions("bills.created_at", from, to) {
		q = opt.Apply(q)
	}
	err := q.Group("bill_lines.product_id").
		Order("revenue DESC").
		Order("bill_lines.product_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// rangeOptions builds a half-open [from, to) filter on column.
func rangeOptions(column string, from, to *time.Time) []option.QueryOption {
	var opts []option.QueryOption
	if from != nil {
		opts = append(opts, option.WithWhere(column+" >= ?", from.UTC()))
	}
	if to != nil {
		opts = append(opts, option.WithWhere(column+" < ?", to.UTC()))
	}
	return opts
}
