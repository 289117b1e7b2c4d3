package paygatewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/putrabttart/dropstore-backend/pkg/enums"
	"github.com/putrabttart/dropstore-backend/pkg/redis"
)

const guardScope = "webhook"

// IdempotencyGuard deduplicates gateway notifications per order and outcome
// class. Gateways redeliver aggressively; a settlement and an expiry for the
// same order are distinct events, a second settlement is not.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
	}, nil
}

// CheckAndMark records the event before it is acted on. It returns true when
// an equivalent event was already marked.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, orderID string, class enums.OutcomeClass) (bool, error) {
	if orderID == "" {
		return false, errors.New("order id is required")
	}
	key := g.store.IdempotencyKey(guardScope, orderID+":"+string(class))
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete unmarks a failed event so the gateway's retry is processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, orderID string, class enums.OutcomeClass) error {
	if orderID == "" {
		return errors.New("order id is required")
	}
	key := g.store.IdempotencyKey(guardScope, orderID+":"+string(class))
	return g.store.Del(ctx, key)
}
