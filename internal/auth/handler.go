package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		validator:      httpx.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(shared.RequireTenant(h.logger)).Get("/session", h.handleSession)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, h.logger, shared.ErrNotAuthenticated)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	// fresh id on privilege change
	h.sessionManager.Rotate(sess)
	sess.SetUser(user.ID.String(), user.DefaultCarrierID.String())
	h.logger.Info("user logged in", slog.String("user_id", user.ID.String()))
	httpx.OK(w, map[string]any{"user": user})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	httpx.OK(w, map[string]any{"message": "Logged out"})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	httpx.OK(w, map[string]any{"userId": tenant.UserID, "carrierId": tenant.CarrierID})
}
