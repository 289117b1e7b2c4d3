package enums

// ItemStatus tracks a single inventory unit.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusReserved  ItemStatus = "reserved"
	ItemStatusSold      ItemStatus = "sold"
	ItemStatusInvalid   ItemStatus = "invalid"
)
