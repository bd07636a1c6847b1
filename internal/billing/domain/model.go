package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Bill is a completed sale. Rows are written once and never updated.
type Bill struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Number    string       `gorm:"type:text;not null;uniqueIndex"`
	CashierID snowflake.ID `gorm:"not null;index"`
	Total     int64        `gorm:"not null"`
	ItemCount int64        `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;index"`
	Lines     []BillLine   `gorm:"foreignKey:BillID;constraint:OnDelete:CASCADE"`
}

func (Bill) TableName() string { return "bills" }

// BillLine snapshots the product name and price at the time of sale.
type BillLine struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	BillID      snowflake.ID `gorm:"not null;index"`
	Position    int          `gorm:"not null"`
	ProductID   int64        `gorm:"not null;index"`
	ProductName string       `gorm:"type:text;not null"`
	Barcode     *string      `gorm:"type:text"`
	Quantity    int64        `gorm:"not null"`
	UnitPrice   int64        `gorm:"not null"`
	Amount      int64        `gorm:"not null"`
}

func (BillLine) TableName() string { return "bill_lines" }
