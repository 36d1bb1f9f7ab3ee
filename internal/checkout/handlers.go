package checkout

import (
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/greenmart/internal/common"
	"github.com/noah-isme/greenmart/internal/pricing"
)

// Handler exposes the checkout summary endpoint.
type Handler struct {
	Svc       *Service
	Validator *validator.Validate
}

type summaryItem struct {
	Qty       int   `json:"qty" validate:"gte=1,lte=100000"`
	UnitPrice int64 `json:"unitPrice" validate:"gte=0,lte=1000000000000000"`
}

type summaryRequest struct {
	Items     []summaryItem `json:"items" validate:"required,min=1,dive"`
	VoucherID *string       `json:"voucherId" validate:"omitempty,uuid"`
	Address   struct {
		District string `json:"district" validate:"required"`
		Ward     string `json:"ward" validate:"required"`
	} `json:"address"`
}

// Summary prices the posted basket for the authenticated user.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var req summaryRequest
	if err := common.DecodeAndValidate(w, r, h.Validator, &req); err != nil {
		return
	}
	in := Input{
		Items:   make([]pricing.Item, 0, len(req.Items)),
		Address: Address{District: req.Address.District, Ward: req.Address.Ward},
	}
	in.UserID, _ = common.UserID(r.Context())
	for _, it := range req.Items {
		in.Items = append(in.Items, pricing.Item{Qty: it.Qty, UnitPrice: it.UnitPrice})
	}
	if req.VoucherID != nil {
		id := uuid.MustParse(*req.VoucherID)
		in.VoucherID = &id
	}
	out, err := h.Svc.Summary(r.Context(), in)
	if err != nil {
		common.WriteError(w, err, http.StatusInternalServerError, "INTERNAL")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}
