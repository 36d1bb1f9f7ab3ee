package audit

import (
	"net/http"

	"github.com/noah-isme/greenmart/internal/common"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	Store Store
}

// List returns a page of audit entries, newest first.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 50)
	entries, err := h.Store.List(r.Context(), limit, (page-1)*limit)
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       entries,
		"pagination": common.Page{Page: page, Limit: limit},
	})
}
