package webhooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/putrabttart/dropstore-backend/api/responses"
	paygatewebhook "github.com/putrabttart/dropstore-backend/internal/webhooks/paygate"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
)

const signatureHeader = "X-Callback-Signature"

type PaygateWebhookService interface {
	HandleEvent(ctx context.Context, event *paygatewebhook.Notification) error
}

// PaygateWebhook receives payment notifications from the gateway. A 200 stops
// redelivery, so it is returned only after the service accepted or
// deliberately ignored the event.
func PaygateWebhook(svc PaygateWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var event paygatewebhook.Notification
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed notification body"))
			return
		}

		// Some gateway configurations carry the signature in a header
		// instead of the body; both must verify identically.
		if event.SignatureKey == "" {
			event.SignatureKey = r.Header.Get(signatureHeader)
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
