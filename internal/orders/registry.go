package orders

import (
	"sync"
	"time"

	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/enums"
)

// Registry is the single source of truth for in-flight order state. Every
// status mutation is a compare-and-swap on the status field; there is no
// read-then-write path, which makes the swap the only synchronization needed
// across webhook, poll, and reaper contexts.
type Registry interface {
	Put(order *Order) error
	Get(orderID string) (*Order, bool)
	// CompareAndSwapStatus atomically moves the order to the target status
	// when its current status is one of from. Returns false when the order is
	// missing or the swap loses.
	CompareAndSwapStatus(orderID string, to enums.OrderStatus, from ...enums.OrderStatus) bool
	// Update mutates non-status fields under the registry lock.
	Update(orderID string, fn func(order *Order)) bool
	Remove(orderID string)
	// RemoveAfter schedules removal once the grace period for late duplicate
	// notifications has passed.
	RemoveAfter(orderID string, grace time.Duration)
	Snapshot() []*Order
	Len() int
}

// MemoryRegistry is the process-local Registry implementation.
type MemoryRegistry struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

// NewMemoryRegistry builds an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{orders: make(map[string]*Order)}
}

// Put registers a new order. Order ids are globally unique; a duplicate is a
// conflict, never an overwrite.
func (r *MemoryRegistry) Put(order *Order) error {
	if order == nil || order.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order with id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return pkgerrors.New(pkgerrors.CodeConflict, "order already registered")
	}
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

// Get returns a copy of the order so callers never share registry memory.
func (r *MemoryRegistry) Get(orderID string) (*Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, false
	}
	clone := *order
	clone.PendingMessageIDs = append([]int64(nil), order.PendingMessageIDs...)
	return &clone, true
}

// CompareAndSwapStatus performs the guarded transition. Terminal states never
// transition again regardless of from.
func (r *MemoryRegistry) CompareAndSwapStatus(orderID string, to enums.OrderStatus, from ...enums.OrderStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return false
	}
	if order.Status.IsTerminal() {
		return false
	}
	for _, candidate := range from {
		if order.Status == candidate {
			order.Status = to
			return true
		}
	}
	return false
}

// Update runs fn on the live order under the registry lock. The status field
// must not be touched here; transitions go through CompareAndSwapStatus.
func (r *MemoryRegistry) Update(orderID string, fn func(order *Order)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return false
	}
	fn(order)
	return true
}

// Remove drops the order immediately.
func (r *MemoryRegistry) Remove(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, orderID)
}

// RemoveAfter drops the order once the grace period passes. Removing an
// already-removed order is harmless.
func (r *MemoryRegistry) RemoveAfter(orderID string, grace time.Duration) {
	if grace <= 0 {
		r.Remove(orderID)
		return
	}
	time.AfterFunc(grace, func() { r.Remove(orderID) })
}

// Snapshot returns copies of every registered order.
func (r *MemoryRegistry) Snapshot() []*Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Order, 0, len(r.orders))
	for _, order := range r.orders {
		clone := *order
		clone.PendingMessageIDs = append([]int64(nil), order.PendingMessageIDs...)
		out = append(out, &clone)
	}
	return out
}

// Len reports how many orders are in flight.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
