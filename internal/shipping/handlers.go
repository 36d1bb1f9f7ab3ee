package shipping

import (
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/greenmart/internal/common"
)

// Handler exposes the shipping quote endpoint.
type Handler struct {
	Quoter    Quoter
	Validator *validator.Validate
}

type quoteRequest struct {
	District string `json:"district" validate:"required"`
	Ward     string `json:"ward" validate:"required"`
}

// Quote prices delivery to the requested district and ward.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := common.DecodeAndValidate(w, r, h.Validator, &req); err != nil {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Quoter.Quote(req.District, req.Ward)})
}
