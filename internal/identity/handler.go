// Package identity exposes the caller identity resolved from the bearer token.
package identity

import (
	"net/http"

	"github.com/bissquit/amber-relay/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for the identity module.
type Handler struct{}

// NewHandler creates a new identity handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// MeResponse describes the authenticated caller.
type MeResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	httputil.Success(w, http.StatusOK, MeResponse{
		UserID: userID,
		Role:   string(httputil.GetRole(r.Context())),
	})
}
