package wallet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/greenmart/internal/common"
	"github.com/noah-isme/greenmart/internal/resilience"
	"github.com/noah-isme/greenmart/internal/voucher"
)

type memLedger struct {
	mu        sync.Mutex
	wallets   map[string]OwnedSet
	grantErr  error
	ownedHits int
}

func newMemLedger() *memLedger {
	return &memLedger{wallets: map[string]OwnedSet{}}
}

func (m *memLedger) Owned(_ context.Context, userID string) (OwnedSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownedHits++
	return m.wallets[userID].Clone(), nil
}

func (m *memLedger) Holdings(_ context.Context, userID string) ([]Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Holding, 0)
	for id, qty := range m.wallets[userID] {
		out = append(out, Holding{Voucher: voucher.Voucher{ID: id}, Quantity: qty})
	}
	return out, nil
}

func (m *memLedger) Grant(_ context.Context, userID string, voucherID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grantErr != nil {
		return 0, m.grantErr
	}
	if m.wallets[userID] == nil {
		m.wallets[userID] = OwnedSet{}
	}
	m.wallets[userID][voucherID]++
	return m.wallets[userID][voucherID], nil
}

type countingCatalog struct{ calls int }

func (c *countingCatalog) Invalidate(context.Context) { c.calls++ }

func newTestService(t *testing.T) (*Service, *memLedger, *miniredis.Miniredis, *countingCatalog) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ledger := newMemLedger()
	catalog := &countingCatalog{}
	return &Service{Ledger: ledger, Cache: NewCache(client, time.Minute), Catalog: catalog}, ledger, mr, catalog
}

func TestOwnedSetHolds(t *testing.T) {
	id := uuid.New()
	owned := OwnedSet{id: 2, uuid.New(): 0}
	require.True(t, owned.Holds(id))
	require.False(t, owned.Holds(uuid.New()))
	var empty OwnedSet
	require.False(t, empty.Holds(id))
}

func TestOwnedReadsThroughCache(t *testing.T) {
	svc, ledger, mr, _ := newTestService(t)
	id := uuid.New()
	ledger.wallets["u1"] = OwnedSet{id: 2}

	owned, err := svc.Owned(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 2, owned[id])
	require.True(t, mr.Exists("wallet:u1"))

	owned, err = svc.Owned(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 2, owned[id])
	require.Equal(t, 1, ledger.ownedHits)
}

func TestOwnedEmptyWalletIsCached(t *testing.T) {
	svc, ledger, _, _ := newTestService(t)
	for range 3 {
		owned, err := svc.Owned(context.Background(), "fresh")
		require.NoError(t, err)
		require.Empty(t, owned)
	}
	require.Equal(t, 1, ledger.ownedHits)
}

func TestOwnedRequiresUser(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Owned(context.Background(), "  ")
	require.ErrorIs(t, err, ErrUserRequired)
}

func TestGrantReconcilesCache(t *testing.T) {
	svc, _, mr, catalog := newTestService(t)
	id := uuid.New()
	_, err := svc.Owned(context.Background(), "u1")
	require.NoError(t, err)

	qty, err := svc.Grant(context.Background(), "u1", id)
	require.NoError(t, err)
	require.Equal(t, 1, qty)
	qty, err = svc.Grant(context.Background(), "u1", id)
	require.NoError(t, err)
	require.Equal(t, 2, qty)
	require.Equal(t, "2", mr.HGet("wallet:u1", id.String()))
	require.Equal(t, 2, catalog.calls)

	owned, err := svc.Owned(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 2, owned[id])
}

func TestGrantFailureRollsBack(t *testing.T) {
	svc, ledger, mr, catalog := newTestService(t)
	id := uuid.New()
	_, err := svc.Owned(context.Background(), "u1")
	require.NoError(t, err)

	ledger.grantErr = ErrVoucherUnavailable
	_, err = svc.Grant(context.Background(), "u1", id)
	require.ErrorIs(t, err, ErrVoucherUnavailable)
	require.Empty(t, mr.HGet("wallet:u1", id.String()))
	require.Equal(t, 1, catalog.calls)

	owned, err := svc.Owned(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, owned.Holds(id))

	ledger.grantErr = errors.New("connection reset")
	_, err = svc.Grant(context.Background(), "u1", id)
	require.ErrorContains(t, err, "connection reset")
	require.Equal(t, 1, catalog.calls)
}

func TestGrantWithoutCache(t *testing.T) {
	ledger := newMemLedger()
	svc := &Service{Ledger: ledger}
	qty, err := svc.Grant(context.Background(), "u1", uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, qty)
}

func TestGrantBreakerOpensOnLedgerFailures(t *testing.T) {
	svc, ledger, mr, _ := newTestService(t)
	svc.Breaker = resilience.NewBreaker(resilience.Settings{
		Name:        "wallet-ledger",
		MinRequests: 2,
		OpenFor:     time.Minute,
		IsFailure:   LedgerFailure,
	})
	id := uuid.New()
	_, err := svc.Owned(context.Background(), "u1")
	require.NoError(t, err)

	ledger.grantErr = ErrVoucherUnavailable
	for range 3 {
		_, err = svc.Grant(context.Background(), "u1", id)
		require.ErrorIs(t, err, ErrVoucherUnavailable)
	}
	require.Equal(t, resilience.Closed, svc.Breaker.State())

	ledger.grantErr = errors.New("connection reset")
	for range 2 {
		_, err = svc.Grant(context.Background(), "u1", id)
		require.ErrorContains(t, err, "connection reset")
	}
	require.Equal(t, resilience.Open, svc.Breaker.State())

	ledger.grantErr = nil
	_, err = svc.Grant(context.Background(), "u1", id)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Empty(t, mr.HGet("wallet:u1", id.String()))
}

func TestHandlerMine(t *testing.T) {
	svc, ledger, _, _ := newTestService(t)
	ledger.wallets["u1"] = OwnedSet{uuid.New(): 3}
	h := &Handler{Svc: svc}

	rr := httptest.NewRecorder()
	h.Mine(rr, httptest.NewRequest(http.MethodGet, "/api/v1/users/me/vouchers", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me/vouchers", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "u1"))
	rr = httptest.NewRecorder()
	h.Mine(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"quantity":3`)
}
