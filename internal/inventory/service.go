package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/putrabttart/dropstore-backend/pkg/db/models"
	"github.com/putrabttart/dropstore-backend/pkg/enums"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
)

const (
	minReserveQty = 1
	maxReserveQty = 999
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ItemPayload is one sold unit's deliverable.
type ItemPayload struct {
	ProductCode string
	Payload     string
}

// Store is the atomic inventory surface. Every operation runs in a single
// transaction; finalize and release are idempotent so either payment channel
// may call them after the other already has.
type Store interface {
	ReserveItems(ctx context.Context, orderID, productCode string, qty int, expiresAt time.Time) (int, error)
	FinalizeItems(ctx context.Context, orderID, buyerRef string) ([]ItemPayload, error)
	ReleaseItems(ctx context.Context, orderID string) (int, error)
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
	AvailableCount(ctx context.Context, productCode string) (int64, error)
}

type store struct {
	tx  txRunner
	now func() time.Time
}

// NewStore builds the inventory store.
func NewStore(tx txRunner) (Store, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &store{tx: tx, now: time.Now}, nil
}

// ReserveItems atomically tags qty available units with the order id and
// records the backing reservation. Fails whole when fewer than qty units are
// available; a partial hold is never left behind.
func (s *store) ReserveItems(ctx context.Context, orderID, productCode string, qty int, expiresAt time.Time) (int, error) {
	if orderID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if qty < minReserveQty || qty > maxReserveQty {
		return 0, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity must be between %d and %d", minReserveQty, maxReserveQty))
	}

	reserved := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, "code = ? AND active = ?", productCode, true).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		var ids []uuid.UUID
		if err := tx.Model(&models.Item{}).
			Where("product_code = ? AND status = ?", productCode, enums.ItemStatusAvailable).
			Limit(qty).
			Pluck("id", &ids).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select available items")
		}
		if len(ids) < qty {
			return pkgerrors.New(pkgerrors.CodeOutOfStock,
				fmt.Sprintf("product %s has %d of %d units available", productCode, len(ids), qty)).
				WithDetails(map[string]any{"available": len(ids), "requested": qty})
		}

		now := s.now().UTC()
		res := tx.Model(&models.Item{}).
			Where("id IN ? AND status = ?", ids, enums.ItemStatusAvailable).
			Updates(map[string]any{
				"status":      enums.ItemStatusReserved,
				"order_id":    orderID,
				"reserved_at": now,
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve items")
		}
		// A concurrent reservation may have claimed a selected unit between
		// the select and the conditional update; treat that as out of stock.
		if int(res.RowsAffected) < qty {
			return pkgerrors.New(pkgerrors.CodeOutOfStock,
				fmt.Sprintf("product %s lost %d units to a concurrent reservation", productCode, qty-int(res.RowsAffected)))
		}

		hold := models.Reservation{
			OrderID:     orderID,
			ProductCode: productCode,
			Qty:         qty,
			Status:      enums.ReservationStatusReserved,
			ExpiresAt:   expiresAt.UTC(),
		}
		if err := tx.Create(&hold).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reservation")
		}

		reserved = qty
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reserved, nil
}

// FinalizeItems converts the order's hold into a permanent sale and returns
// the sold payloads. Calling it again returns the identical item set without
// touching inventory.
func (s *store) FinalizeItems(ctx context.Context, orderID, buyerRef string) ([]ItemPayload, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var payloads []ItemPayload
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		hold, err := loadReservation(tx, orderID)
		if err != nil {
			return err
		}

		switch hold.Status {
		case enums.ReservationStatusFinalized:
			payloads, err = soldPayloads(tx, orderID)
			return err
		case enums.ReservationStatusReleased:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation already released")
		}

		now := s.now().UTC()
		res := tx.Model(&models.Item{}).
			Where("order_id = ? AND status = ?", orderID, enums.ItemStatusReserved).
			Updates(map[string]any{
				"status":  enums.ItemStatusSold,
				"sold_at": now,
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark items sold")
		}
		if int(res.RowsAffected) != hold.Qty {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("expected %d reserved units for order, found %d", hold.Qty, res.RowsAffected))
		}

		if err := tx.Model(&models.Reservation{}).
			Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusReserved).
			Update("status", enums.ReservationStatusFinalized).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize reservation")
		}

		payloads, err = soldPayloads(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payloads, nil
}

// ReleaseItems returns the order's reserved units to the pool. A no-op when
// the reservation is already finalized or released; sold units never return
// to available.
func (s *store) ReleaseItems(ctx context.Context, orderID string) (int, error) {
	if orderID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	released := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		hold, err := loadReservation(tx, orderID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return nil
			}
			return err
		}
		if hold.Status != enums.ReservationStatusReserved {
			return nil
		}
		count, err := releaseHold(tx, orderID)
		if err != nil {
			return err
		}
		released = count
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// ReleaseExpired releases every reservation whose expiry passed while still
// held. Used by the scheduled sweep for restart recovery. Each hold gets its
// own transaction so one poisoned row cannot block the rest of the sweep.
func (s *store) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	var stale []models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.
			Where("status = ? AND expires_at < ?", enums.ReservationStatusReserved, now.UTC()).
			Find(&stale).Error
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query stale reservations")
	}

	released := 0
	var errs []error
	for _, hold := range stale {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			count, err := releaseHold(tx, hold.OrderID)
			if err != nil {
				return err
			}
			released += count
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("release order %s: %w", hold.OrderID, err))
		}
	}
	return released, multierr.Combine(errs...)
}

// AvailableCount reports units currently available for a product.
func (s *store) AvailableCount(ctx context.Context, productCode string) (int64, error) {
	var count int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.Item{}).
			Where("product_code = ? AND status = ?", productCode, enums.ItemStatusAvailable).
			Count(&count).Error
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count available items")
	}
	return count, nil
}

func loadReservation(tx *gorm.DB, orderID string) (*models.Reservation, error) {
	var hold models.Reservation
	if err := tx.First(&hold, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	return &hold, nil
}

func releaseHold(tx *gorm.DB, orderID string) (int, error) {
	res := tx.Model(&models.Item{}).
		Where("order_id = ? AND status = ?", orderID, enums.ItemStatusReserved).
		Updates(map[string]any{
			"status":      enums.ItemStatusAvailable,
			"order_id":    nil,
			"reserved_at": nil,
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release items")
	}
	if err := tx.Model(&models.Reservation{}).
		Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusReserved).
		Update("status", enums.ReservationStatusReleased).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reservation released")
	}
	return int(res.RowsAffected), nil
}

func soldPayloads(tx *gorm.DB, orderID string) ([]ItemPayload, error) {
	var items []models.Item
	if err := tx.
		Where("order_id = ? AND status = ?", orderID, enums.ItemStatusSold).
		Order("id").
		Find(&items).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sold items")
	}
	payloads := make([]ItemPayload, len(items))
	for i, item := range items {
		payloads[i] = ItemPayload{ProductCode: item.ProductCode, Payload: item.Payload}
	}
	return payloads, nil
}
