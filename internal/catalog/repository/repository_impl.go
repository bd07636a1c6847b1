package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/martpos/internal/catalog/domain"
	"github.com/smallbiznis/martpos/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	tx := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", product.ID).
		Select("name", "description", "barcode", "price", "stock", "active", "metadata", "updated_at").
		Updates(product)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByBarcode(ctx context.Context, db *gorm.DB, barcode string) (*domain.Product, error) {
	return first(db.WithContext(ctx).Where("barcode = ? AND active = ?", barcode, true))
}

func first(stmt *gorm.DB) (*domain.Product, error) {
	var p domain.Product
	err := stmt.First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Product, error) {
	opts := []option.QueryOption{option.WithOrder("id", filter.Desc), option.WithLimit(filter.Limit)}
	if filter.Name != "" {
		opts = append(opts, option.WithWhere("LOWER(name) LIKE ?", "%"+filter.Name+"%"))
	}
	if filter.Active != nil {
		opts = append(opts, option.WithWhere("active = ?", *filter.Active))
	}
	if filter.AfterID != 0 {
		if filter.Desc {
			opts = append(opts, option.WithWhere("id < ?", filter.AfterID))
		} else {
			opts = append(opts, option.WithWhere("id > ?", filter.AfterID))
		}
	}

	stmt := db.WithContext(ctx).Model(&domain.Product{})
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var items []domain.Product
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AddStock(ctx context.Context, db *gorm.DB, id int64, delta int64, at time.Time) (int64, error) {
	tx := db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock + ?, updated_at = ?
		 WHERE id = ? AND stock + ? >= 0`,
		delta, at, id, delta,
	)
	return tx.RowsAffected, tx.Error
}
