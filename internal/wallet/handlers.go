package wallet

import (
	"net/http"

	"github.com/noah-isme/greenmart/internal/common"
)

// Handler exposes the caller's wallet.
type Handler struct {
	Svc *Service
}

// Mine lists the vouchers held by the authenticated user.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	holdings, err := h.Svc.Holdings(r.Context(), userID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load wallet", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": holdings})
}
