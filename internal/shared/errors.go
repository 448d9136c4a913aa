package shared

import (
	"errors"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
)

var (
	// ErrNotAuthenticated is returned when a request carries no usable session.
	ErrNotAuthenticated = httpx.NewError(httpx.ErrUnauthorized, "Not authenticated")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = httpx.NewError(httpx.ErrUnauthorized, "Invalid email or password")
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = httpx.NewError(httpx.ErrDuplicate, "Request already processed")
	// ErrAuditInvalid is returned for audit entries missing required fields.
	ErrAuditInvalid = errors.New("audit log requires action/entity/entity_id")
)
