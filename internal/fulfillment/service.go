package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/putrabttart/dropstore-backend/internal/inventory"
	"github.com/putrabttart/dropstore-backend/internal/orders"
	"github.com/putrabttart/dropstore-backend/pkg/chat"
	"github.com/putrabttart/dropstore-backend/pkg/enums"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
	"github.com/putrabttart/dropstore-backend/pkg/metrics"
)

// Trigger sources for dispatch metrics.
const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
	SourceReaper  = "reaper"
)

type inventoryStore interface {
	FinalizeItems(ctx context.Context, orderID, buyerRef string) ([]inventory.ItemPayload, error)
	ReleaseItems(ctx context.Context, orderID string) (int, error)
}

type taskStopper interface {
	Stop(orderID string)
}

// ServiceParams configure the dispatcher.
type ServiceParams struct {
	Logger      *logger.Logger
	Registry    orders.Registry
	Inventory   inventoryStore
	Chat        chat.Sender
	Tasks       taskStopper
	Metrics     *metrics.FulfillmentMetrics
	GracePeriod time.Duration
}

// Service is the single fulfillment entry point. Webhook, poll, and reaper
// contexts all funnel through the same guarded status transition, which is
// what makes dispatch at-most-once.
type Service struct {
	logg      *logger.Logger
	registry  orders.Registry
	inventory inventoryStore
	chat      chat.Sender
	tasks     taskStopper
	metrics   *metrics.FulfillmentMetrics
	grace     time.Duration
}

// NewService builds the dispatcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	if params.Chat == nil {
		return nil, fmt.Errorf("chat sender required")
	}
	if params.GracePeriod <= 0 {
		return nil, fmt.Errorf("grace period must be positive")
	}
	return &Service{
		logg:      params.Logger,
		registry:  params.Registry,
		inventory: params.Inventory,
		chat:      params.Chat,
		tasks:     params.Tasks,
		metrics:   params.Metrics,
		grace:     params.GracePeriod,
	}, nil
}

// SetTasks wires the poll task registry after construction. The reconciler
// needs the dispatcher to exist first, so this is called once during startup
// before any traffic is served.
func (s *Service) SetTasks(tasks taskStopper) {
	s.tasks = tasks
}

// Dispatch completes a paid order exactly once. A losing transition is a
// success for the caller: the other channel already won, or the order is
// gone, and "too late" is not an error.
func (s *Service) Dispatch(ctx context.Context, orderID, source string) error {
	ctx = s.logg.WithOrderID(ctx, orderID)

	won := s.registry.CompareAndSwapStatus(orderID, enums.OrderStatusFulfilling,
		enums.OrderStatusPending, enums.OrderStatusAwaitingPayment)
	if !won {
		s.metrics.IncDuplicate(source)
		s.logg.Info(s.logg.WithField(ctx, "source", source), "fulfillment already claimed, skipping")
		return nil
	}
	s.metrics.IncDispatch(source)

	order, ok := s.registry.Get(orderID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "order vanished after claiming fulfillment")
	}

	s.deleteTransientMessages(ctx, order)

	payloads, err := s.inventory.FinalizeItems(ctx, orderID, order.BuyerRef)
	if err != nil {
		// Paid order with unfinalized inventory: keep it in fulfilling,
		// flagged for an operator. Never release, never re-charge.
		s.registry.Update(orderID, func(o *orders.Order) { o.NeedsRecovery = true })
		s.logg.Error(ctx, "finalize failed for paid order, manual recovery required", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize inventory")
	}

	if err := s.deliver(ctx, order, payloads); err != nil {
		// Payment and inventory truth are final; the buyer re-requests
		// delivery through the status path instead of a second finalize.
		s.registry.Update(orderID, func(o *orders.Order) { o.NeedsRecovery = true })
		s.logg.Error(ctx, "delivery failed after finalize, order flagged for recovery", err)
	}

	s.registry.CompareAndSwapStatus(orderID, enums.OrderStatusFulfilled, enums.OrderStatusFulfilling)
	s.registry.RemoveAfter(orderID, s.grace)
	s.stopTask(orderID)
	s.logg.Info(s.logg.WithField(ctx, "items", len(payloads)), "order fulfilled")
	return nil
}

// Cancel releases an unpaid order, notifies the buyer, and removes it. A
// losing transition means a settlement won the race; that is a no-op, not an
// error.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) error {
	return s.terminate(ctx, orderID, enums.OrderStatusReleased, reason)
}

// Expire is the reaper's and timeout path's cancellation; same transition,
// terminal status expired.
func (s *Service) Expire(ctx context.Context, orderID string) error {
	return s.terminate(ctx, orderID, enums.OrderStatusExpired, "payment window expired")
}

func (s *Service) terminate(ctx context.Context, orderID string, terminal enums.OrderStatus, reason string) error {
	ctx = s.logg.WithOrderID(ctx, orderID)

	won := s.registry.CompareAndSwapStatus(orderID, terminal,
		enums.OrderStatusPending, enums.OrderStatusAwaitingPayment)
	if !won {
		return nil
	}

	order, ok := s.registry.Get(orderID)
	if !ok {
		return nil
	}

	if _, err := s.inventory.ReleaseItems(ctx, orderID); err != nil {
		// The scheduled reservation sweep re-releases anything missed here.
		s.logg.Error(ctx, "releasing reservation failed, sweep will retry", err)
	}

	s.deleteTransientMessages(ctx, order)

	text := fmt.Sprintf("Order %s was closed: %s. Reserved stock has been returned.", order.ID, reason)
	if _, err := s.chat.SendText(ctx, order.ChatRef, text); err != nil {
		s.logg.Error(ctx, "buyer cancellation notice failed", err)
	}

	s.registry.Remove(orderID)
	s.stopTask(orderID)
	s.logg.Info(s.logg.WithField(ctx, "reason", reason), "order released")
	return nil
}

func (s *Service) deliver(ctx context.Context, order *orders.Order, payloads []inventory.ItemPayload) error {
	lines := make([]string, 0, len(payloads)+1)
	lines = append(lines, fmt.Sprintf("Your order %s is ready:", order.ID))
	for i, item := range payloads {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, item.Payload))
	}
	if _, err := s.chat.SendText(ctx, order.ChatRef, strings.Join(lines, "\n")); err != nil {
		return err
	}

	receipt := fmt.Sprintf("Receipt %s\n%s x%d\nTotal: %s",
		order.ID, order.ProductCode, order.Qty, order.TotalAmount.StringFixed(2))
	if _, err := s.chat.SendText(ctx, order.ChatRef, receipt); err != nil {
		return err
	}
	return nil
}

func (s *Service) deleteTransientMessages(ctx context.Context, order *orders.Order) {
	for _, messageID := range order.PendingMessageIDs {
		if err := s.chat.DeleteMessage(ctx, order.ChatRef, messageID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "message_id", messageID), "transient message cleanup failed")
		}
	}
	s.registry.Update(order.ID, func(o *orders.Order) { o.PendingMessageIDs = nil })
}

func (s *Service) stopTask(orderID string) {
	if s.tasks == nil {
		return
	}
	s.tasks.Stop(orderID)
}
