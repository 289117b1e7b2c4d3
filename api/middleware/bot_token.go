package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/putrabttart/dropstore-backend/api/responses"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
)

const botTokenHeader = "X-Bot-Token"

// BotToken authenticates the chat frontend. The purchase surface is not
// public; only the bot process holds the shared token.
func BotToken(logg *logger.Logger, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(botTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid bot token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
