package enums

// PaymentStatus is the gateway-reported state of a charge. Unknown is the
// distinguishable transient-failure result of a poll, never written by the
// gateway itself.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSettled   PaymentStatus = "settled"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusDenied    PaymentStatus = "denied"
	PaymentStatusUnknown   PaymentStatus = "unknown"
)

// OutcomeClass collapses gateway transaction statuses into the classes that
// drive webhook deduplication and dispatch.
type OutcomeClass string

const (
	OutcomeSuccess OutcomeClass = "success"
	OutcomeFailure OutcomeClass = "failure"
	OutcomePending OutcomeClass = "pending"
)

// ClassifyTransactionStatus maps a raw webhook transaction_status onto an
// outcome class. Unrecognized statuses classify as pending so they are
// acknowledged without any state change.
func ClassifyTransactionStatus(raw string) OutcomeClass {
	switch raw {
	case "settlement", "capture":
		return OutcomeSuccess
	case "expire", "cancel", "deny":
		return OutcomeFailure
	default:
		return OutcomePending
	}
}

// StatusFromTransaction maps a raw webhook transaction_status onto the poll
// status vocabulary so both channels branch on the same enum.
func StatusFromTransaction(raw string) PaymentStatus {
	switch raw {
	case "settlement", "capture":
		return PaymentStatusSettled
	case "expire":
		return PaymentStatusExpired
	case "cancel":
		return PaymentStatusCancelled
	case "deny":
		return PaymentStatusDenied
	case "pending":
		return PaymentStatusPending
	default:
		return PaymentStatusUnknown
	}
}
