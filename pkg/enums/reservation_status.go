package enums

// ReservationStatus tracks the durable hold backing one order.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"
	ReservationStatusFinalized ReservationStatus = "finalized"
	ReservationStatusReleased  ReservationStatus = "released"
)
