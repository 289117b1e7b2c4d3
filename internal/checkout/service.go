package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/putrabttart/dropstore-backend/internal/orders"
	"github.com/putrabttart/dropstore-backend/pkg/chat"
	"github.com/putrabttart/dropstore-backend/pkg/enums"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
	"github.com/putrabttart/dropstore-backend/pkg/paygate"
)

type reserver interface {
	ReserveItems(ctx context.Context, orderID, productCode string, qty int, expiresAt time.Time) (int, error)
	ReleaseItems(ctx context.Context, orderID string) (int, error)
}

type charger interface {
	CreateCharge(ctx context.Context, orderID string, amount decimal.Decimal, lineItems []paygate.LineItem) (*paygate.Charge, error)
}

type taskStarter interface {
	Start(orderID string)
	Stop(orderID string)
}

// PurchaseInput is one buy request from the chat frontend.
type PurchaseInput struct {
	BuyerRef    string
	ChatRef     string
	ProductCode string
	Qty         int
}

// PurchaseResult is what the frontend needs to present the payment step.
type PurchaseResult struct {
	OrderID     string
	ProductCode string
	Qty         int
	TotalAmount decimal.Decimal
	ExpiresAt   time.Time
	QRPayload   string
	ActionURLs  []string
}

// ServiceParams configure the coordinator.
type ServiceParams struct {
	Logger     *logger.Logger
	Products   ProductRepository
	Inventory  reserver
	Registry   orders.Registry
	Paygate    charger
	Chat       chat.Sender
	Tasks      taskStarter
	PaymentTTL time.Duration
	Now        func() time.Time
	NewOrderID func() string
}

// Service opens orders: it holds stock, creates the gateway charge, and hands
// the order to the payment channels.
type Service struct {
	logg       *logger.Logger
	products   ProductRepository
	inventory  reserver
	registry   orders.Registry
	paygate    charger
	chat       chat.Sender
	tasks      taskStarter
	paymentTTL time.Duration
	now        func() time.Time
	newOrderID func() string
}

// NewService builds the coordinator.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if params.Paygate == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Chat == nil {
		return nil, fmt.Errorf("chat sender required")
	}
	if params.PaymentTTL <= 0 {
		return nil, fmt.Errorf("payment ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	newOrderID := params.NewOrderID
	if newOrderID == nil {
		newOrderID = func() string { return "DS-" + uuid.NewString() }
	}
	return &Service{
		logg:       params.Logger,
		products:   params.Products,
		inventory:  params.Inventory,
		registry:   params.Registry,
		paygate:    params.Paygate,
		chat:       params.Chat,
		tasks:      params.Tasks,
		paymentTTL: params.PaymentTTL,
		now:        now,
		newOrderID: newOrderID,
	}, nil
}

// Execute opens one order end to end. The reservation is taken before the
// charge exists, so any later failure must hand the stock back.
func (s *Service) Execute(ctx context.Context, input PurchaseInput) (*PurchaseResult, error) {
	if input.BuyerRef == "" || input.ChatRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and chat references required")
	}
	if input.ProductCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product code required")
	}
	if input.Qty < 1 || input.Qty > 999 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be between 1 and 999")
	}

	product, err := s.products.FindByCode(ctx, input.ProductCode)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.paymentTTL)
	orderID := s.newOrderID()
	ctx = s.logg.WithOrderID(s.logg.WithBuyerRef(ctx, input.BuyerRef), orderID)

	if _, err := s.inventory.ReserveItems(ctx, orderID, product.Code, input.Qty, expiresAt); err != nil {
		return nil, err
	}

	total := product.UnitPrice.Mul(decimal.NewFromInt(int64(input.Qty)))
	order := &orders.Order{
		ID:          orderID,
		BuyerRef:    input.BuyerRef,
		ChatRef:     input.ChatRef,
		ProductCode: product.Code,
		Qty:         input.Qty,
		UnitPrice:   product.UnitPrice,
		TotalAmount: total,
		Status:      enums.OrderStatusPending,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	if err := s.registry.Put(order); err != nil {
		s.releaseQuietly(ctx, orderID)
		return nil, err
	}
	s.startTask(orderID)

	charge, err := s.paygate.CreateCharge(ctx, orderID, total, []paygate.LineItem{{
		Name:      product.Name,
		Qty:       input.Qty,
		UnitPrice: product.UnitPrice,
	}})
	if err != nil {
		s.stopTask(orderID)
		s.registry.Remove(orderID)
		s.releaseQuietly(ctx, orderID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create charge")
	}

	s.registry.CompareAndSwapStatus(orderID, enums.OrderStatusAwaitingPayment, enums.OrderStatusPending)
	s.registry.Update(orderID, func(o *orders.Order) { o.ChargeRef = orderID })

	s.presentQR(ctx, order, charge)

	s.logg.Info(s.logg.WithField(ctx, "total", total.StringFixed(2)), "order opened")
	return &PurchaseResult{
		OrderID:     orderID,
		ProductCode: product.Code,
		Qty:         input.Qty,
		TotalAmount: total,
		ExpiresAt:   expiresAt,
		QRPayload:   charge.QRPayload,
		ActionURLs:  charge.ActionURLs,
	}, nil
}

// presentQR pushes the payment QR into the chat and remembers the message so
// fulfillment or cancellation can clean it up. Failure is not fatal; the
// frontend also receives the payload in the response.
func (s *Service) presentQR(ctx context.Context, order *orders.Order, charge *paygate.Charge) {
	caption := fmt.Sprintf("Order %s\nTotal: %s\nPay within %s or the reservation is released.",
		order.ID, order.TotalAmount.StringFixed(2), s.paymentTTL)
	messageID, err := s.chat.SendPhoto(ctx, order.ChatRef, charge.QRPayload, caption)
	if err != nil {
		s.logg.Warn(ctx, "sending payment QR to chat failed")
		return
	}
	s.registry.Update(order.ID, func(o *orders.Order) {
		o.PendingMessageIDs = append(o.PendingMessageIDs, messageID)
	})
}

func (s *Service) releaseQuietly(ctx context.Context, orderID string) {
	if _, err := s.inventory.ReleaseItems(ctx, orderID); err != nil {
		s.logg.Error(ctx, "releasing reservation after failed checkout", err)
	}
}

func (s *Service) startTask(orderID string) {
	if s.tasks == nil {
		return
	}
	s.tasks.Start(orderID)
}

func (s *Service) stopTask(orderID string) {
	if s.tasks == nil {
		return
	}
	s.tasks.Stop(orderID)
}
