package notify

import (
	"net/http"
	"strings"

	"github.com/noah-isme/checkout-gateway/internal/common"
)

// Handler exposes the notification polling endpoint.
type Handler struct {
	Store *Store
}

// List drains and returns pending notifications for the caller's session.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOTIFY_NOT_CONFIGURED", "notification store unavailable", nil)
		return
	}
	sessionID := strings.TrimSpace(r.Header.Get("X-Session-ID"))
	if sessionID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "X-Session-ID header is required", nil)
		return
	}
	items, err := h.Store.Drain(r.Context(), sessionID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "NOTIFY_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"notifications": items})
}
