package enums

// OrderStatus tracks an in-flight order through the purchase flow.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusFulfilling      OrderStatus = "fulfilling"
	OrderStatusFulfilled       OrderStatus = "fulfilled"
	OrderStatusReleased        OrderStatus = "released"
	OrderStatusExpired         OrderStatus = "expired"
)

// IsTerminal reports whether no further state-mutating transition may succeed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFulfilled, OrderStatusReleased, OrderStatusExpired:
		return true
	}
	return false
}
