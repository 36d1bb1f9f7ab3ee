package voucher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, vouchers ...Voucher) http.Handler {
	t.Helper()
	svc, _, _, _ := newTestService(t, vouchers...)
	h := &Handler{Svc: svc, Validator: validator.New()}
	r := chi.NewRouter()
	r.Get("/vouchers", h.ListEligible)
	r.Get("/vouchers/{id}", h.Get)
	r.Post("/vouchers/preview", h.Preview)
	r.Get("/admin/vouchers", h.AdminList)
	r.Post("/admin/vouchers", h.Create)
	r.Put("/admin/vouchers/{id}", h.Update)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(context.Background())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerPreview(t *testing.T) {
	v := newVoucher(KindAmount, 50000, 300000)
	router := newTestRouter(t, v)

	rr := doJSON(t, router, http.MethodPost, "/vouchers/preview", map[string]any{"voucherId": v.ID.String(), "subtotal": 500000})
	require.Equal(t, http.StatusOK, rr.Code)
	var ok struct {
		Data PreviewResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ok))
	require.Equal(t, int64(50000), ok.Data.Discount)

	rr = doJSON(t, router, http.MethodPost, "/vouchers/preview", map[string]any{"voucherId": v.ID.String(), "subtotal": 1000})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "MINIMUM_ORDER_UNMET")

	rr = doJSON(t, router, http.MethodPost, "/vouchers/preview", map[string]any{"voucherId": "nope"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerGetAndList(t *testing.T) {
	v := newVoucher(KindPercent, 10, 0)
	router := newTestRouter(t, v)

	rr := doJSON(t, router, http.MethodGet, "/vouchers/"+v.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/vouchers/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/vouchers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), v.ID.String())

	rr = doJSON(t, router, http.MethodGet, "/admin/vouchers?page=1&limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total":1`)
}

func TestHandlerCreateAndUpdate(t *testing.T) {
	router := newTestRouter(t)

	payload := map[string]any{
		"code":          "WELCOME",
		"discountType":  "amount",
		"discountValue": 20000,
		"minOrder":      100000,
		"expiresAt":     now.Add(72 * time.Hour).Format(time.RFC3339),
	}
	rr := doJSON(t, router, http.MethodPost, "/admin/vouchers", payload)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		Data Voucher `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.True(t, created.Data.IsActive)

	rr = doJSON(t, router, http.MethodPost, "/admin/vouchers", payload)
	require.Equal(t, http.StatusConflict, rr.Code)

	payload["discountType"] = "bogus"
	rr = doJSON(t, router, http.MethodPost, "/admin/vouchers", payload)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	payload["discountType"] = "percent"
	payload["discountValue"] = 15
	rr = doJSON(t, router, http.MethodPut, "/admin/vouchers/"+created.Data.ID.String(), payload)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"discountType":"percent"`)
}
