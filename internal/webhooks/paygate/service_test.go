package paygatewebhook

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putrabttart/dropstore-backend/pkg/enums"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
)

const testServerKey = "server-secret"

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeDispatcher struct {
	mu          sync.Mutex
	dispatched  []string
	cancelled   []string
	reasons     []string
	dispatchErr error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, orderID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return f.dispatchErr
	}
	f.dispatched = append(f.dispatched, orderID)
	return nil
}

func (f *fakeDispatcher) Cancel(_ context.Context, orderID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	f.reasons = append(f.reasons, reason)
	return nil
}

func (f *fakeDispatcher) setDispatchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatchErr = err
}

func (f *fakeDispatcher) dispatchedOrders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dispatched...)
}

func (f *fakeDispatcher) cancelledOrders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *fakeDispatcher) cancelReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reasons...)
}

type memoryGuard struct {
	mu     sync.Mutex
	marked map[string]bool
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{marked: map[string]bool{}}
}

func (g *memoryGuard) CheckAndMark(_ context.Context, orderID string, class enums.OutcomeClass) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := orderID + ":" + string(class)
	if g.marked[key] {
		return true, nil
	}
	g.marked[key] = true
	return false, nil
}

func (g *memoryGuard) Delete(_ context.Context, orderID string, class enums.OutcomeClass) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.marked, orderID+":"+string(class))
	return nil
}

func (g *memoryGuard) markCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.marked)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func signedNotification(orderID, statusCode, grossAmount, transactionStatus string) *Notification {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + testServerKey))
	return &Notification{
		OrderID:           orderID,
		StatusCode:        statusCode,
		GrossAmount:       grossAmount,
		SignatureKey:      hex.EncodeToString(sum[:]),
		TransactionStatus: transactionStatus,
	}
}

func newTestService(t *testing.T, dispatcher dispatcher, guard guard) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:     testLogger(),
		Dispatcher: dispatcher,
		Guard:      guard,
		ServerKey:  testServerKey,
	})
	require.NoError(t, err)
	return svc
}

func TestHandleEventSettlementDispatches(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{}
	svc := newTestService(t, dispatcher, newMemoryGuard())

	event := signedNotification("O-1", "200", "30000.00", "settlement")
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Eventually(t, func() bool {
		orders := dispatcher.dispatchedOrders()
		return len(orders) == 1 && orders[0] == "O-1"
	}, waitFor, tick)
}

func TestHandleEventDuplicateSettlementSuppressed(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{}
	svc := newTestService(t, dispatcher, newMemoryGuard())

	event := signedNotification("O-1", "200", "30000.00", "settlement")
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	assert.Eventually(t, func() bool {
		return len(dispatcher.dispatchedOrders()) == 1
	}, waitFor, tick)
	assert.Never(t, func() bool {
		return len(dispatcher.dispatchedOrders()) > 1
	}, 50*time.Millisecond, tick)
}

func TestHandleEventFailureStatusCancels(t *testing.T) {
	t.Parallel()

	for _, status := range []string{"expire", "cancel", "deny"} {
		dispatcher := &fakeDispatcher{}
		svc := newTestService(t, dispatcher, newMemoryGuard())

		event := signedNotification("O-1", "407", "30000.00", status)
		require.NoError(t, svc.HandleEvent(context.Background(), event))
		assert.Eventually(t, func() bool {
			return len(dispatcher.cancelledOrders()) == 1
		}, waitFor, tick, status)
		assert.Empty(t, dispatcher.dispatchedOrders(), status)
		assert.Contains(t, dispatcher.cancelReasons()[0], status)
	}
}

func TestHandleEventPendingAcksWithoutAction(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{}
	guard := newMemoryGuard()
	svc := newTestService(t, dispatcher, guard)

	event := signedNotification("O-1", "201", "30000.00", "pending")
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Never(t, func() bool {
		return len(dispatcher.dispatchedOrders()) > 0 || len(dispatcher.cancelledOrders()) > 0
	}, 50*time.Millisecond, tick)
	assert.Zero(t, guard.markCount())
}

func TestHandleEventMissingFieldsUnauthorized(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeDispatcher{}, newMemoryGuard())

	event := signedNotification("O-1", "200", "30000.00", "settlement")
	event.SignatureKey = ""
	err := svc.HandleEvent(context.Background(), event)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}

func TestHandleEventTamperedAmountUnauthorized(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeDispatcher{}, newMemoryGuard())

	event := signedNotification("O-1", "200", "30000.00", "settlement")
	event.GrossAmount = "1.00"
	err := svc.HandleEvent(context.Background(), event)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}

func TestHandleEventAcksBeforeSlowDispatchCompletes(t *testing.T) {
	t.Parallel()

	dispatcher := &blockingDispatcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newTestService(t, dispatcher, newMemoryGuard())

	event := signedNotification("O-1", "200", "30000.00", "settlement")
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	// The handler already returned; the dispatch is still in flight.
	select {
	case <-dispatcher.started:
	case <-time.After(waitFor):
		t.Fatal("dispatch never started")
	}
	assert.False(t, dispatcher.isDone())

	close(dispatcher.release)
	assert.Eventually(t, dispatcher.isDone, waitFor, tick)
}

type blockingDispatcher struct {
	mu      sync.Mutex
	started chan struct{}
	release chan struct{}
	done    bool
}

func (d *blockingDispatcher) Dispatch(_ context.Context, _, _ string) error {
	close(d.started)
	<-d.release
	d.mu.Lock()
	d.done = true
	d.mu.Unlock()
	return nil
}

func (d *blockingDispatcher) Cancel(context.Context, string, string) error { return nil }

func (d *blockingDispatcher) isDone() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func TestHandleEventDispatchFailureUnmarksGuard(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{dispatchErr: errors.New("finalize failed")}
	guard := newMemoryGuard()
	svc := newTestService(t, dispatcher, guard)

	event := signedNotification("O-1", "200", "30000.00", "settlement")
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Eventually(t, func() bool {
		return guard.markCount() == 0
	}, waitFor, tick)

	// The gateway's redelivery succeeds once the dependency recovers.
	dispatcher.setDispatchErr(nil)
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Eventually(t, func() bool {
		orders := dispatcher.dispatchedOrders()
		return len(orders) == 1 && orders[0] == "O-1"
	}, waitFor, tick)
}

func TestHandleEventFraudChallengeStaysPending(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{}
	svc := newTestService(t, dispatcher, newMemoryGuard())

	event := signedNotification("O-1", "200", "30000.00", "capture")
	event.FraudStatus = "challenge"
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Never(t, func() bool {
		return len(dispatcher.dispatchedOrders()) > 0
	}, 50*time.Millisecond, tick)

	event.FraudStatus = "deny"
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Eventually(t, func() bool {
		return len(dispatcher.cancelledOrders()) == 1
	}, waitFor, tick)
}

func TestNewIdempotencyGuardValidates(t *testing.T) {
	t.Parallel()

	_, err := NewIdempotencyGuard(nil, time.Minute)
	assert.Error(t, err)
}
