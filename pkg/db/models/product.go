package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable digital good. Stock is the set of Item rows carrying
// its code, not a counter on the product itself.
type Product struct {
	Code      string          `gorm:"column:code;primaryKey"`
	Name      string          `gorm:"column:name;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Active    bool            `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
