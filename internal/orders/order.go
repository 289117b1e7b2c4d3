package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/putrabttart/dropstore-backend/pkg/enums"
)

// Order is one in-flight purchase. It lives in the registry from reservation
// until a grace period after its terminal state; durable truth about the
// goods themselves stays in the inventory store.
type Order struct {
	ID          string
	BuyerRef    string
	ChatRef     string
	ProductCode string
	Qty         int
	UnitPrice   decimal.Decimal
	TotalAmount decimal.Decimal
	Status      enums.OrderStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time

	// ChargeRef is the gateway's reference for the open charge.
	ChargeRef string

	// PendingMessageIDs are transient chat artifacts (QR code, processing
	// notices) deleted on fulfillment or cancellation.
	PendingMessageIDs []int64

	// NeedsRecovery marks a paid order whose finalize or delivery failed; an
	// operator resolves it manually, the system never re-charges.
	NeedsRecovery bool
}

// Expired reports whether the order passed its payment deadline at now.
func (o *Order) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
