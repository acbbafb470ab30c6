package bootstrap

import (
	"net/http"
	"strings"

	"github.com/noah-isme/checkout-gateway/internal/common"
)

// Handler exposes the session bootstrap endpoint.
type Handler struct {
	Svc *Service
}

// SetInitialData seeds the gateway state for the shopper's session.
func (h *Handler) SetInitialData(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BOOTSTRAP_NOT_CONFIGURED", "bootstrap handler unavailable", nil)
		return
	}
	sessionID := strings.TrimSpace(r.Header.Get("X-Session-ID"))
	if sessionID == "" {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "X-Session-ID header is required", nil)
		return
	}
	data, err := h.Svc.SetInitialData(r.Context(), sessionID)
	if err != nil {
		common.JSONError(w, http.StatusBadGateway, "BOOTSTRAP_FAILED", "could not bootstrap session", nil)
		return
	}
	common.JSON(w, http.StatusOK, data)
}
