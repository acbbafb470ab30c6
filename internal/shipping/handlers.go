package shipping

import (
	"net/http"
	"strings"

	"github.com/noah-isme/checkout-gateway/internal/common"
)

// Handler exposes the shipping methods endpoint.
type Handler struct {
	Svc *Service
}

// List returns the shipping methods for the shopper's cart.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "SHIPPING_NOT_CONFIGURED", "shipping handler unavailable", nil)
		return
	}
	sessionID := strings.TrimSpace(r.Header.Get("X-Session-ID"))
	if sessionID == "" {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "X-Session-ID header is required", nil)
		return
	}
	methods, err := h.Svc.Methods(r.Context(), sessionID)
	if err != nil {
		common.JSONError(w, http.StatusBadGateway, "SHIPPING_FETCH_FAILED", "could not load shipping methods", nil)
		return
	}
	common.JSON(w, http.StatusOK, methods)
}
