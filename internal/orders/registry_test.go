package orders

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/putrabttart/dropstore-backend/pkg/enums"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
)

func newOrder(id string, status enums.OrderStatus) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:          id,
		BuyerRef:    "buyer-1",
		ChatRef:     "chat-1",
		ProductCode: "NFLX1M",
		Qty:         1,
		UnitPrice:   decimal.NewFromInt(15000),
		TotalAmount: decimal.NewFromInt(15000),
		Status:      status,
		CreatedAt:   now,
		ExpiresAt:   now.Add(15 * time.Minute),
	}
}

func TestPutRejectsDuplicates(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	if err := reg.Put(newOrder("O1", enums.OrderStatusPending)); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := reg.Put(newOrder("O1", enums.OrderStatusPending))
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	order := newOrder("O1", enums.OrderStatusPending)
	order.PendingMessageIDs = []int64{10}
	if err := reg.Put(order); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := reg.Get("O1")
	if !ok {
		t.Fatalf("expected order")
	}
	got.Status = enums.OrderStatusFulfilled
	got.PendingMessageIDs[0] = 99

	again, _ := reg.Get("O1")
	if again.Status != enums.OrderStatusPending {
		t.Fatalf("registry state mutated through a copy")
	}
	if again.PendingMessageIDs[0] != 10 {
		t.Fatalf("message refs mutated through a copy")
	}
}

func TestCompareAndSwapStatus(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	if err := reg.Put(newOrder("O1", enums.OrderStatusAwaitingPayment)); err != nil {
		t.Fatalf("put: %v", err)
	}

	if !reg.CompareAndSwapStatus("O1", enums.OrderStatusFulfilling, enums.OrderStatusPending, enums.OrderStatusAwaitingPayment) {
		t.Fatalf("expected swap to win")
	}
	if reg.CompareAndSwapStatus("O1", enums.OrderStatusFulfilling, enums.OrderStatusPending, enums.OrderStatusAwaitingPayment) {
		t.Fatalf("second swap must lose")
	}
	got, _ := reg.Get("O1")
	if got.Status != enums.OrderStatusFulfilling {
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestCompareAndSwapStatusTerminalNeverTransitions(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	if err := reg.Put(newOrder("O1", enums.OrderStatusFulfilled)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if reg.CompareAndSwapStatus("O1", enums.OrderStatusReleased, enums.OrderStatusFulfilled) {
		t.Fatalf("terminal order must never transition")
	}
}

func TestCompareAndSwapStatusMissingOrder(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	if reg.CompareAndSwapStatus("ghost", enums.OrderStatusFulfilling, enums.OrderStatusPending) {
		t.Fatalf("missing order must fail the swap")
	}
}

func TestConcurrentSwapsExactlyOneWins(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	if err := reg.Put(newOrder("O1", enums.OrderStatusAwaitingPayment)); err != nil {
		t.Fatalf("put: %v", err)
	}

	const contenders = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.CompareAndSwapStatus("O1", enums.OrderStatusFulfilling, enums.OrderStatusPending, enums.OrderStatusAwaitingPayment) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	total := 0
	for range wins {
		total++
	}
	if total != 1 {
		t.Fatalf("expected exactly one winner, got %d", total)
	}
}

func TestUpdateMutatesUnderLock(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	if err := reg.Put(newOrder("O1", enums.OrderStatusPending)); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok := reg.Update("O1", func(order *Order) {
		order.ChargeRef = "charge-1"
		order.PendingMessageIDs = append(order.PendingMessageIDs, 42)
	})
	if !ok {
		t.Fatalf("expected update to find the order")
	}
	got, _ := reg.Get("O1")
	if got.ChargeRef != "charge-1" || len(got.PendingMessageIDs) != 1 {
		t.Fatalf("update lost: %+v", got)
	}
}

func TestRemoveAfterGracePeriod(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	if err := reg.Put(newOrder("O1", enums.OrderStatusFulfilled)); err != nil {
		t.Fatalf("put: %v", err)
	}
	reg.RemoveAfter("O1", 20*time.Millisecond)

	if _, ok := reg.Get("O1"); !ok {
		t.Fatalf("order removed before grace period")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := reg.Get("O1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("order not removed after grace period")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRemoveAfterZeroGraceRemovesNow(t *testing.T) {
	t.Parallel()

	reg := NewMemoryRegistry()
	if err := reg.Put(newOrder("O1", enums.OrderStatusReleased)); err != nil {
		t.Fatalf("put: %v", err)
	}
	reg.RemoveAfter("O1", 0)
	if _, ok := reg.Get("O1"); ok {
		t.Fatalf("expected immediate removal")
	}
}
