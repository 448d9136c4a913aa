package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRequireTenant(t *testing.T) {
	var seen Tenant
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := TenantFromContext(r.Context())
		require.True(t, ok)
		seen = tenant
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireTenant(nil)(next)

	t.Run("no session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"code":401,"errors":[{"message":"Not authenticated"}]}`, rec.Body.String())
	})

	t.Run("user without carrier", func(t *testing.T) {
		sess := &Session{}
		sess.SetUser(uuid.NewString(), "")
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(ContextWithSession(req.Context(), sess))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("scoped", func(t *testing.T) {
		userID, carrierID := uuid.New(), uuid.New()
		sess := &Session{}
		sess.SetUser(userID.String(), carrierID.String())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(ContextWithSession(req.Context(), sess))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, Tenant{UserID: userID, CarrierID: carrierID}, seen)
	})
}
