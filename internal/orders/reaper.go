package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/putrabttart/dropstore-backend/pkg/enums"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
)

// expirer is the cancellation entry point shared with the payment channels.
// It must use the same guarded status transition, so a last-moment settlement
// and the sweep can never both win.
type expirer interface {
	Expire(ctx context.Context, orderID string) error
}

// ReaperParams configure the expiry sweep.
type ReaperParams struct {
	Logger   *logger.Logger
	Registry Registry
	Expirer  expirer
	Interval time.Duration
	Now      func() time.Time
}

// Reaper periodically releases unpaid orders that passed their deadline.
type Reaper struct {
	logg     *logger.Logger
	registry Registry
	expirer  expirer
	interval time.Duration
	now      func() time.Time
}

// NewReaper builds the expiry sweep.
func NewReaper(params ReaperParams) (*Reaper, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("expirer required")
	}
	if params.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Reaper{
		logg:     params.Logger,
		registry: params.Registry,
		expirer:  params.Expirer,
		interval: params.Interval,
		now:      now,
	}, nil
}

// Run sweeps on a fixed cadence until the context is canceled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "expiry reaper context canceled")
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep expires every overdue unpaid order once.
func (r *Reaper) Sweep(ctx context.Context) {
	now := r.now().UTC()
	count := 0
	for _, order := range r.registry.Snapshot() {
		if !order.Expired(now) {
			continue
		}
		switch order.Status {
		case enums.OrderStatusPending, enums.OrderStatusAwaitingPayment:
		default:
			continue
		}
		orderCtx := r.logg.WithOrderID(ctx, order.ID)
		if err := r.expirer.Expire(orderCtx, order.ID); err != nil {
			r.logg.Error(orderCtx, "expiring overdue order failed", err)
			continue
		}
		count++
	}
	if count > 0 {
		r.logg.Info(r.logg.WithField(ctx, "count", count), "expiry sweep released overdue orders")
	}
}
