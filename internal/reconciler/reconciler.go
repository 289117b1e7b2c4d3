package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/putrabttart/dropstore-backend/internal/fulfillment"
	"github.com/putrabttart/dropstore-backend/internal/orders"
	"github.com/putrabttart/dropstore-backend/pkg/enums"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
	"github.com/putrabttart/dropstore-backend/pkg/metrics"
)

type poller interface {
	PollStatus(ctx context.Context, orderID string) (enums.PaymentStatus, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, orderID, source string) error
	Cancel(ctx context.Context, orderID, reason string) error
}

// ReconcilerParams configure the poll reconciler.
type ReconcilerParams struct {
	Logger      *logger.Logger
	Registry    orders.Registry
	Paygate     poller
	Dispatcher  dispatcher
	Metrics     *metrics.FulfillmentMetrics
	Backoff     []time.Duration
	MaxAttempts int
}

// Reconciler runs one polling goroutine per open order. Polling is the
// fallback confirmation channel; it defers to the webhook by exiting quietly
// whenever the order has already reached a terminal state or left the
// registry.
type Reconciler struct {
	logg        *logger.Logger
	registry    orders.Registry
	paygate     poller
	dispatcher  dispatcher
	metrics     *metrics.FulfillmentMetrics
	backoff     []time.Duration
	maxAttempts int

	mu     sync.Mutex
	tasks  map[string]*task
	wg     sync.WaitGroup
	closed bool
}

type task struct {
	cancel context.CancelFunc
}

// NewReconciler builds the task registry.
func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if params.Paygate == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if len(params.Backoff) == 0 {
		return nil, fmt.Errorf("backoff schedule required")
	}
	if params.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be positive")
	}
	return &Reconciler{
		logg:        params.Logger,
		registry:    params.Registry,
		paygate:     params.Paygate,
		dispatcher:  params.Dispatcher,
		metrics:     params.Metrics,
		backoff:     params.Backoff,
		maxAttempts: params.MaxAttempts,
		tasks:       make(map[string]*task),
	}, nil
}

// Start spawns the poll loop for an order. Starting an order that already has
// a task is a no-op.
func (r *Reconciler) Start(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, running := r.tasks[orderID]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry := &task{cancel: cancel}
	r.tasks[orderID] = entry
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.finish(orderID, entry)
		r.poll(ctx, orderID)
	}()
}

// Stop cancels the order's poll loop if one is running.
func (r *Reconciler) Stop(orderID string) {
	r.mu.Lock()
	entry, ok := r.tasks[orderID]
	if ok {
		delete(r.tasks, orderID)
	}
	r.mu.Unlock()
	if ok {
		entry.cancel()
	}
}

// finish removes the loop's own entry; it must not remove a successor task
// started after an external Stop.
func (r *Reconciler) finish(orderID string, entry *task) {
	r.mu.Lock()
	if current, ok := r.tasks[orderID]; ok && current == entry {
		delete(r.tasks, orderID)
	}
	r.mu.Unlock()
	entry.cancel()
}

// Shutdown cancels every loop and waits for them to exit.
func (r *Reconciler) Shutdown() {
	r.mu.Lock()
	r.closed = true
	entries := make([]*task, 0, len(r.tasks))
	for _, entry := range r.tasks {
		entries = append(entries, entry)
	}
	r.tasks = make(map[string]*task)
	r.mu.Unlock()
	for _, entry := range entries {
		entry.cancel()
	}
	r.wg.Wait()
}

// Running reports whether the order currently has a poll task.
func (r *Reconciler) Running(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[orderID]
	return ok
}

func (r *Reconciler) poll(ctx context.Context, orderID string) {
	logCtx := r.logg.WithOrderID(ctx, orderID)

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if !r.sleep(ctx, r.delayFor(attempt)) {
			return
		}
		if !r.stillOpen(orderID) {
			return
		}

		r.metrics.IncPollAttempt()
		status, err := r.paygate.PollStatus(ctx, orderID)
		if err != nil {
			// The client maps transport failures to unknown; anything else
			// here is a programming error worth logging, not a loop killer.
			r.logg.Error(logCtx, "status poll returned error", err)
			continue
		}

		switch status {
		case enums.PaymentStatusSettled:
			if err := r.dispatcher.Dispatch(ctx, orderID, fulfillment.SourcePoll); err != nil {
				r.logg.Error(logCtx, "poll-triggered dispatch failed", err)
			}
			return
		case enums.PaymentStatusExpired, enums.PaymentStatusCancelled, enums.PaymentStatusDenied:
			if err := r.dispatcher.Cancel(ctx, orderID, "payment "+string(status)); err != nil {
				r.logg.Error(logCtx, "poll-triggered cancel failed", err)
			}
			return
		case enums.PaymentStatusPending, enums.PaymentStatusUnknown:
			// Consumes the attempt.
		}
	}

	r.metrics.IncPollTimeout()
	r.logg.Warn(logCtx, "poll schedule exhausted, abandoning order")
	if err := r.dispatcher.Cancel(ctx, orderID, "payment confirmation timed out"); err != nil {
		r.logg.Error(logCtx, "timeout cancel failed", err)
	}
}

// delayFor repeats the last schedule entry once the schedule runs out.
func (r *Reconciler) delayFor(attempt int) time.Duration {
	if attempt < len(r.backoff) {
		return r.backoff[attempt]
	}
	return r.backoff[len(r.backoff)-1]
}

func (r *Reconciler) sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *Reconciler) stillOpen(orderID string) bool {
	order, ok := r.registry.Get(orderID)
	if !ok {
		return false
	}
	return !order.Status.IsTerminal() && order.Status != enums.OrderStatusFulfilling
}
