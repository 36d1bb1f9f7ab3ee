package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestPprofRequiresBasicAuth(t *testing.T) {
	r := chi.NewRouter()
	r.Mount(pprofPrefix, NewPprofHandler("ops", "s3cret"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Header().Get("WWW-Authenticate"), "greenmart-pprof")

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.SetBasicAuth("ops", "s3cret")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "goroutine")
}

func TestPprofDisabledByDefault(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := serve(h, http.MethodGet, "/debug/pprof/", "", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}
