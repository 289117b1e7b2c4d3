package models

import (
	"time"

	"github.com/putrabttart/dropstore-backend/pkg/enums"
)

// Reservation is the durable hold backing one order. At most one non-released
// reservation exists per order id.
type Reservation struct {
	OrderID     string                  `gorm:"column:order_id;primaryKey"`
	ProductCode string                  `gorm:"column:product_code;not null"`
	Qty         int                     `gorm:"column:qty;not null"`
	Status      enums.ReservationStatus `gorm:"column:status;not null;default:'reserved';index"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt   time.Time               `gorm:"column:expires_at;not null;index"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
