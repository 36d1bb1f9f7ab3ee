package common_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/greenmart/internal/common"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", 1, 50},
		{"?page=3&limit=10", 3, 10},
		{"?page=0&limit=-4", 1, 50},
		{"?page=abc&limit=9999", 1, common.MaxPageSize},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/vouchers"+tc.query, nil)
		page, limit := common.ParsePagination(req, 50)
		require.Equal(t, tc.wantPage, page, tc.query)
		require.Equal(t, tc.wantLimit, limit, tc.query)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5123"
	require.Equal(t, "10.0.0.9", common.ClientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.4")
	require.Equal(t, "172.16.0.4", common.ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	require.Equal(t, "203.0.113.7", common.ClientIP(req))
}

func TestAppErrorRendering(t *testing.T) {
	cause := errors.New("ledger offline")
	err := common.NewAppError("CHECKOUT_FAILED", "could not price order", http.StatusServiceUnavailable, cause).
		WithDetails(map[string]string{"stage": "voucher"})

	wrapped := errors.Join(errors.New("checkout"), err)
	appErr, ok := common.AsAppError(wrapped)
	require.True(t, ok)
	require.ErrorIs(t, appErr, cause)

	rr := httptest.NewRecorder()
	common.WriteError(rr, wrapped, http.StatusInternalServerError, "INTERNAL")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"error":{"code":"CHECKOUT_FAILED","message":"could not price order","details":{"stage":"voucher"}}}`, rr.Body.String())
}

func TestWriteErrorFallback(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("boom"), http.StatusBadGateway, "UPSTREAM")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), `"code":"UPSTREAM"`)
}

func TestAtoiDefault(t *testing.T) {
	require.Equal(t, 7, common.AtoiDefault(" 7 ", 1))
	require.Equal(t, 1, common.AtoiDefault("", 1))
	require.Equal(t, 1, common.AtoiDefault("seven", 1))
}
