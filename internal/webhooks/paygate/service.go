package paygatewebhook

import (
	"context"

	"github.com/putrabttart/dropstore-backend/internal/fulfillment"
	"github.com/putrabttart/dropstore-backend/pkg/enums"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
	"github.com/putrabttart/dropstore-backend/pkg/paygate"
)

// Notification is the gateway's payment event body.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	PaymentType       string `json:"payment_type,omitempty"`
}

type dispatcher interface {
	Dispatch(ctx context.Context, orderID, source string) error
	Cancel(ctx context.Context, orderID, reason string) error
}

type guard interface {
	CheckAndMark(ctx context.Context, orderID string, class enums.OutcomeClass) (bool, error)
	Delete(ctx context.Context, orderID string, class enums.OutcomeClass) error
}

// ServiceParams configure the webhook receiver.
type ServiceParams struct {
	Logger     *logger.Logger
	Dispatcher dispatcher
	Guard      guard
	ServerKey  string
}

// Service verifies, deduplicates, and routes gateway notifications.
type Service struct {
	logg       *logger.Logger
	dispatcher dispatcher
	guard      guard
	serverKey  string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dispatcher required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.ServerKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "server key required")
	}
	return &Service{
		logg:       params.Logger,
		dispatcher: params.Dispatcher,
		guard:      params.Guard,
		serverKey:  params.ServerKey,
	}, nil
}

// HandleEvent verifies and deduplicates one notification. A nil return means
// the gateway gets an ack and stops redelivering; errors carry the code the
// controller maps to a status. Settlement work continues in the background
// after the idempotency mark is taken, so the ack never waits on fulfillment.
func (s *Service) HandleEvent(ctx context.Context, event *Notification) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification body required")
	}
	if event.OrderID == "" || event.StatusCode == "" || event.GrossAmount == "" ||
		event.SignatureKey == "" || event.TransactionStatus == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "notification fields missing")
	}
	if !paygate.VerifySignature(event.OrderID, event.StatusCode, event.GrossAmount, event.SignatureKey, s.serverKey) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "notification signature mismatch")
	}

	ctx = s.logg.WithOrderID(ctx, event.OrderID)
	class := s.classify(event)
	if class == enums.OutcomePending {
		s.logg.Info(s.logg.WithField(ctx, "transaction_status", event.TransactionStatus),
			"notification acknowledged without action")
		return nil
	}

	duplicate, err := s.guard.CheckAndMark(ctx, event.OrderID, class)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency check")
	}
	if duplicate {
		s.logg.Info(ctx, "duplicate notification suppressed")
		return nil
	}

	// The mark already suppresses a concurrent redelivery, so the gateway
	// can be acked now. Fulfillment runs a finalize transaction plus chat
	// round trips; gateways drop slow connections and redeliver.
	go s.settle(context.WithoutCancel(ctx), event.OrderID, class, event.TransactionStatus)
	return nil
}

func (s *Service) settle(ctx context.Context, orderID string, class enums.OutcomeClass, rawStatus string) {
	var err error
	switch class {
	case enums.OutcomeSuccess:
		err = s.dispatcher.Dispatch(ctx, orderID, fulfillment.SourceWebhook)
	case enums.OutcomeFailure:
		err = s.dispatcher.Cancel(ctx, orderID, "payment "+rawStatus)
	}
	if err == nil {
		return
	}
	s.logg.Error(ctx, "settling notification", err)
	// Unmark so the gateway's redelivery gets another attempt.
	if delErr := s.guard.Delete(ctx, orderID, class); delErr != nil {
		s.logg.Error(ctx, "unmarking failed notification", delErr)
	}
}

// classify folds transaction and fraud status into one outcome. A challenged
// capture stays pending until the gateway re-notifies with a verdict.
func (s *Service) classify(event *Notification) enums.OutcomeClass {
	class := enums.ClassifyTransactionStatus(event.TransactionStatus)
	if class != enums.OutcomeSuccess {
		return class
	}
	switch event.FraudStatus {
	case "", "accept":
		return enums.OutcomeSuccess
	case "challenge":
		return enums.OutcomePending
	default:
		return enums.OutcomeFailure
	}
}
