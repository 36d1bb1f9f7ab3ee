package voucher

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/greenmart/internal/common"
)

// Handler exposes voucher catalog and administration endpoints.
type Handler struct {
	Svc       *Service
	Validator *validator.Validate
}

type voucherPayload struct {
	Code      string    `json:"code" validate:"required,max=64"`
	Kind      string    `json:"discountType" validate:"required,oneof=percent amount"`
	Value     int64     `json:"discountValue" validate:"gte=0,lte=1000000000000000"`
	MinOrder  int64     `json:"minOrder" validate:"gte=0,lte=1000000000000000"`
	ExpiresAt time.Time `json:"expiresAt" validate:"required"`
	IsActive  *bool     `json:"isActive"`
	MaxUsage  *int32    `json:"maxUsage" validate:"omitempty,gte=0"`
}

func (p voucherPayload) toVoucher() Voucher {
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	return Voucher{
		Code:      strings.TrimSpace(p.Code),
		Kind:      Kind(p.Kind),
		Value:     p.Value,
		MinOrder:  p.MinOrder,
		ExpiresAt: p.ExpiresAt,
		IsActive:  active,
		MaxUsage:  p.MaxUsage,
	}
}

type previewRequest struct {
	VoucherID string `json:"voucherId" validate:"required,uuid"`
	Subtotal  int64  `json:"subtotal" validate:"gte=0,lte=1000000000000000"`
}

// ListEligible returns the vouchers currently on offer.
func (h *Handler) ListEligible(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.Svc.Eligible(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": vouchers})
}

// Get returns a single voucher.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid voucher id", nil)
		return
	}
	v, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

// Preview returns the discount a voucher would grant without touching state.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := common.DecodeAndValidate(w, r, h.Validator, &req); err != nil {
		return
	}
	result, err := h.Svc.Preview(r.Context(), uuid.MustParse(req.VoucherID), req.Subtotal)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// AdminList returns a page of the full catalog.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	page, limit := common.ParsePagination(r, 50)
	vouchers, total, err := h.Svc.List(r.Context(), limit, (page-1)*limit)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       vouchers,
		"pagination": common.Page{Page: page, Limit: limit, Total: total},
	})
}

// Create inserts a new voucher.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload voucherPayload
	if err := common.DecodeAndValidate(w, r, h.Validator, &payload); err != nil {
		return
	}
	created, err := h.Svc.Create(r.Context(), payload.toVoucher())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update replaces a voucher's editable fields.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid voucher id", nil)
		return
	}
	var payload voucherPayload
	if err := common.DecodeAndValidate(w, r, h.Validator, &payload); err != nil {
		return
	}
	v := payload.toVoucher()
	v.ID = id
	updated, err := h.Svc.Update(r.Context(), v)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrNotEligible):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOT_ELIGIBLE", err.Error(), nil)
	case errors.Is(err, ErrMinimumOrderUnmet):
		common.JSONError(w, http.StatusUnprocessableEntity, "MINIMUM_ORDER_UNMET", err.Error(), nil)
	case errors.Is(err, ErrDuplicateCode):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrInvalidVoucher):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher request failed", nil)
	}
}
