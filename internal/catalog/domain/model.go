package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Product is a sellable catalog item. Price is in minor currency units.
type Product struct {
	ID          int64             `json:"id" gorm:"primaryKey"`
	Code        string            `json:"code" gorm:"type:text;not null;uniqueIndex:ux_products_code"`
	Name        string            `json:"name" gorm:"type:text;not null"`
	Description *string           `json:"description,omitempty" gorm:"type:text"`
	Barcode     *string           `json:"barcode,omitempty" gorm:"type:text;uniqueIndex:ux_products_barcode"`
	Price       int64             `json:"price" gorm:"not null"`
	Stock       int64             `json:"stock" gorm:"not null"`
	Active      bool              `json:"active" gorm:"not null"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }
