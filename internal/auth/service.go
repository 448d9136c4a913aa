package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/shared"
)

// ErrNoCarrier is returned for accounts not attached to any carrier.
var ErrNoCarrier = httpx.NewError(httpx.ErrForbidden, "No carrier is assigned to this account")

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. Unknown, inactive and
// mismatched accounts are reported identically.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if user.DefaultCarrierID == nil {
		return nil, ErrNoCarrier
	}
	return user, nil
}
