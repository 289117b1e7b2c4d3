package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/putrabttart/dropstore-backend/pkg/enums"
)

// Item is one deliverable inventory unit. Payload is the opaque secret handed
// to the buyer once the unit is sold. OrderID tags the unit while reserved or
// sold; an item is never tagged by more than one order.
type Item struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey"`
	ProductCode string           `gorm:"column:product_code;not null;index"`
	Payload     string           `gorm:"column:payload;not null"`
	Status      enums.ItemStatus `gorm:"column:status;not null;default:'available';index"`
	OrderID     *string          `gorm:"column:order_id;index"`
	ReservedAt  *time.Time       `gorm:"column:reserved_at"`
	SoldAt      *time.Time       `gorm:"column:sold_at"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
