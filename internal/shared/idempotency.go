package shared

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/db"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
)

// IdempotencyHeader is the request header carrying the client key.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, module+":"+key, module, s.now())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := s.now().Add(-olderThan)
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, module+":"+key)
	return err
}

// Idempotent guards a handler with the Idempotency-Key header. Requests without
// the header pass through. Keys are scoped to the caller's carrier and the
// request path, so a replay only collides with the same tenant posting to the
// same resource. A replayed key is answered with 409; a failed request
// releases its key so the client may retry.
func Idempotent(store *IdempotencyStore, module string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyHeader)
			if clientKey == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := scopedKey(r, clientKey)
			if err := store.CheckAndInsert(r.Context(), key, module); err != nil {
				httpx.RespondError(w, logger, err)
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				if err := store.Delete(context.WithoutCancel(r.Context()), key, module); err != nil && logger != nil {
					logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", err))
				}
			}
		})
	}
}

func scopedKey(r *http.Request, clientKey string) string {
	scope := "anonymous"
	if tenant, ok := TenantFromContext(r.Context()); ok {
		scope = tenant.CarrierID.String()
	}
	return scope + ":" + r.URL.Path + ":" + clientKey
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}
