package shared

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
)

// RequireTenant rejects requests whose session lacks a user or carrier and
// stores the resolved Tenant in the request context.
func RequireTenant(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" || sess.Carrier() == "" {
				httpx.RespondError(w, logger, ErrNotAuthenticated)
				return
			}
			userID, err := uuid.Parse(sess.User())
			if err != nil {
				httpx.RespondError(w, logger, ErrNotAuthenticated)
				return
			}
			carrierID, err := uuid.Parse(sess.Carrier())
			if err != nil {
				httpx.RespondError(w, logger, ErrNotAuthenticated)
				return
			}
			ctx := ContextWithTenant(r.Context(), Tenant{UserID: userID, CarrierID: carrierID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
