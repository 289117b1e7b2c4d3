package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/putrabttart/dropstore-backend/api/responses"
	"github.com/putrabttart/dropstore-backend/api/validators"
	"github.com/putrabttart/dropstore-backend/internal/checkout"
	"github.com/putrabttart/dropstore-backend/internal/orders"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
)

type purchaseService interface {
	Execute(ctx context.Context, input checkout.PurchaseInput) (*checkout.PurchaseResult, error)
}

type orderReader interface {
	Get(orderID string) (*orders.Order, bool)
}

type purchaseRequest struct {
	BuyerRef    string `json:"buyer_ref" validate:"required"`
	ChatRef     string `json:"chat_ref" validate:"required"`
	ProductCode string `json:"product_code" validate:"required"`
	Qty         int    `json:"qty" validate:"required,min=1,max=999"`
}

type purchaseResponse struct {
	OrderID     string          `json:"order_id"`
	ProductCode string          `json:"product_code"`
	Qty         int             `json:"qty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ExpiresAt   time.Time       `json:"expires_at"`
	QRPayload   string          `json:"qr_payload"`
	ActionURLs  []string        `json:"action_urls,omitempty"`
}

type purchaseStatusResponse struct {
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
	NeedsRecovery bool      `json:"needs_recovery"`
}

// CreatePurchase opens an order for the chat frontend.
func CreatePurchase(svc purchaseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req purchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Execute(ctx, checkout.PurchaseInput{
			BuyerRef:    req.BuyerRef,
			ChatRef:     req.ChatRef,
			ProductCode: req.ProductCode,
			Qty:         req.Qty,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, purchaseResponse{
			OrderID:     result.OrderID,
			ProductCode: result.ProductCode,
			Qty:         result.Qty,
			TotalAmount: result.TotalAmount,
			ExpiresAt:   result.ExpiresAt,
			QRPayload:   result.QRPayload,
			ActionURLs:  result.ActionURLs,
		})
	}
}

// PurchaseStatus reports where an open order stands. It only reads; a paid
// order is fulfilled by the payment channels, never by a status check.
func PurchaseStatus(registry orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		orderID := chi.URLParam(r, "orderID")
		if orderID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id required"))
			return
		}

		order, ok := registry.Get(orderID)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		responses.WriteSuccess(w, purchaseStatusResponse{
			OrderID:       order.ID,
			Status:        string(order.Status),
			ExpiresAt:     order.ExpiresAt,
			NeedsRecovery: order.NeedsRecovery,
		})
	}
}
