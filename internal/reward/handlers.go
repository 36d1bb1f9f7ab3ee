package reward

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/noah-isme/greenmart/internal/common"
	"github.com/noah-isme/greenmart/internal/ratelimit"
)

// Handler exposes the lucky wheel.
type Handler struct {
	Svc *Service
}

// Spin draws and commits a prize for the authenticated user.
func (h *Handler) Spin(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	result, err := h.Svc.Spin(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Wheel lists the wheel segments so clients can render them.
func (h *Handler) Wheel(w http.ResponseWriter, r *http.Request) {
	prizes, err := h.Svc.Wheel(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load wheel", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": prizes})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var limitErr *LimitError
	switch {
	case errors.As(err, &limitErr):
		w.Header().Set("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(limitErr.ResetAt)))
		common.JSONError(w, http.StatusTooManyRequests, "SPIN_LIMIT_REACHED", "no spins left, try again later", map[string]any{"resetAt": limitErr.ResetAt})
	case errors.Is(err, ErrSpinLimitReached):
		common.JSONError(w, http.StatusTooManyRequests, "SPIN_LIMIT_REACHED", "no spins left, try again later", nil)
	case errors.Is(err, ErrSpinInProgress):
		common.JSONError(w, http.StatusConflict, "SPIN_IN_PROGRESS", "a spin is already in progress", nil)
	case errors.Is(err, ErrCommitFailed):
		common.JSONError(w, http.StatusBadGateway, "COMMIT_FAILED", "your prize could not be saved, please spin again", nil)
	case errors.Is(err, ErrUserRequired):
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "spin failed", nil)
	}
}
