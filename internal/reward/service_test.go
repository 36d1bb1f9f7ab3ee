package reward

import (
	"context"
	"errors"
	"math/rand/v2"
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
	"github.com/noah-isme/greenmart/internal/events"
	"github.com/noah-isme/greenmart/internal/lock"
	"github.com/noah-isme/greenmart/internal/ratelimit"
	"github.com/noah-isme/greenmart/internal/voucher"
	"github.com/noah-isme/greenmart/internal/wallet"
)

type staticCatalog struct {
	vouchers []voucher.Voucher
	err      error
}

func (c staticCatalog) Eligible(context.Context) ([]voucher.Voucher, error) {
	return c.vouchers, c.err
}

type fakeWallet struct {
	mu       sync.Mutex
	owned    map[string]wallet.OwnedSet
	grantErr error
	grants   int
	// stall makes Grant wait for its context to end.
	stall bool
}

func (f *fakeWallet) Owned(_ context.Context, userID string) (wallet.OwnedSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owned[userID].Clone(), nil
}

func (f *fakeWallet) Grant(ctx context.Context, userID string, voucherID uuid.UUID) (int, error) {
	if f.stall {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return 0, f.grantErr
	}
	if f.owned == nil {
		f.owned = map[string]wallet.OwnedSet{}
	}
	if f.owned[userID] == nil {
		f.owned[userID] = wallet.OwnedSet{}
	}
	f.owned[userID][voucherID]++
	f.grants++
	return f.owned[userID][voucherID], nil
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

type fixture struct {
	svc     *Service
	wallet  *fakeWallet
	emitter *captureEmitter
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T, catalog Catalog, draws ...int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	w := &fakeWallet{}
	emitter := &captureEmitter{}
	svc := &Service{
		Catalog:     catalog,
		Wallet:      w,
		Locker:      lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
		Allowance:   ratelimit.Limiter{Client: client},
		Events:      emitter,
		MaxRetries:  DefaultMaxRetries,
		SpinsPerDay: 1,
		SpinWindow:  24 * time.Hour,
		LockTTL:     time.Second,
		LockWait:    20 * time.Millisecond,
	}
	if len(draws) > 0 {
		svc.NewRNG = func() RNG { return &scriptedRNG{draws: draws} }
	}
	return &fixture{svc: svc, wallet: w, emitter: emitter, mr: mr}
}

func TestSpinWinCommits(t *testing.T) {
	a := testVoucher("A")
	f := newFixture(t, staticCatalog{vouchers: []voucher.Voucher{a}}, 0)

	res, err := f.svc.Spin(context.Background(), "u1")
	require.NoError(t, err)
	got, ok := res.Prize.Voucher()
	require.True(t, ok)
	require.Equal(t, a.ID, got.ID)
	require.Equal(t, 1, res.Quantity)
	require.NotNil(t, res.RemainingSpins)
	require.Zero(t, *res.RemainingSpins)
	require.Equal(t, []string{events.TopicRewardGranted}, f.emitter.topics)
	require.True(t, f.wallet.owned["u1"].Holds(a.ID))
}

func TestSpinCommitBoundedByLockLease(t *testing.T) {
	a := testVoucher("A")
	f := newFixture(t, staticCatalog{vouchers: []voucher.Voucher{a}}, 0, 0)
	f.svc.LockTTL = 200 * time.Millisecond
	f.wallet.stall = true

	start := time.Now()
	_, err := f.svc.Spin(context.Background(), "u1")
	require.ErrorIs(t, err, ErrCommitFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), f.svc.LockTTL)

	f.wallet.stall = false
	res, err := f.svc.Spin(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Quantity)
}

func TestSpinNoWinSkipsGrant(t *testing.T) {
	a := testVoucher("A")
	f := newFixture(t, staticCatalog{vouchers: []voucher.Voucher{a}}, 1)

	res, err := f.svc.Spin(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, res.Prize.IsWin())
	require.Zero(t, f.wallet.grants)
	require.Empty(t, f.emitter.topics)
}

func TestSpinEmptyCatalog(t *testing.T) {
	f := newFixture(t, staticCatalog{})
	f.svc.SpinsPerDay = 0
	for range 20 {
		res, err := f.svc.Spin(context.Background(), "u1")
		require.NoError(t, err)
		require.False(t, res.Prize.IsWin())
		require.Nil(t, res.RemainingSpins)
	}
}

func TestSpinLimitReached(t *testing.T) {
	f := newFixture(t, staticCatalog{vouchers: []voucher.Voucher{testVoucher("A")}}, 1)

	_, err := f.svc.Spin(context.Background(), "u1")
	require.NoError(t, err)

	_, err = f.svc.Spin(context.Background(), "u1")
	require.ErrorIs(t, err, ErrSpinLimitReached)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	require.True(t, limitErr.ResetAt.After(time.Now()))

	_, err = f.svc.Spin(context.Background(), "u2")
	require.NoError(t, err)
}

func TestSpinCommitFailureAnnouncesNothing(t *testing.T) {
	a := testVoucher("A")
	f := newFixture(t, staticCatalog{vouchers: []voucher.Voucher{a}}, 0)
	f.wallet.grantErr = wallet.ErrVoucherUnavailable

	res, err := f.svc.Spin(context.Background(), "u1")
	require.ErrorIs(t, err, ErrCommitFailed)
	require.ErrorIs(t, err, wallet.ErrVoucherUnavailable)
	require.False(t, res.Prize.IsWin())
	require.Equal(t, []string{events.TopicRewardGrantFailed}, f.emitter.topics)

	f.wallet.grantErr = nil
	res, err = f.svc.Spin(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, res.Prize.IsWin())
}

func TestSpinInProgress(t *testing.T) {
	f := newFixture(t, staticCatalog{}, 0)
	require.NoError(t, f.mr.Set("spin:u1", "other-token"))

	_, err := f.svc.Spin(context.Background(), "u1")
	require.ErrorIs(t, err, ErrSpinInProgress)

	f.mr.Del("spin:u1")
	_, err = f.svc.Spin(context.Background(), "u1")
	require.NoError(t, err)
}

func TestSpinCatalogError(t *testing.T) {
	f := newFixture(t, staticCatalog{err: errors.New("db down")})
	_, err := f.svc.Spin(context.Background(), "u1")
	require.ErrorContains(t, err, "db down")

	remaining, _, rerr := ratelimit.Limiter{Client: redis.NewClient(&redis.Options{Addr: f.mr.Addr()})}.
		Remaining(context.Background(), "spins:u1", 24*time.Hour, 1)
	require.NoError(t, rerr)
	require.Equal(t, 1, remaining)
}

func TestSpinRequiresUser(t *testing.T) {
	f := newFixture(t, staticCatalog{})
	_, err := f.svc.Spin(context.Background(), " ")
	require.ErrorIs(t, err, ErrUserRequired)
}

func TestSpinWithoutInfrastructure(t *testing.T) {
	a, b := testVoucher("A"), testVoucher("B")
	svc := &Service{
		Catalog:    staticCatalog{vouchers: []voucher.Voucher{a, b}},
		Wallet:     &fakeWallet{},
		MaxRetries: DefaultMaxRetries,
		NewRNG:     func() RNG { return rand.New(rand.NewPCG(7, 7)) },
	}
	for range 10 {
		_, err := svc.Spin(context.Background(), "u1")
		require.NoError(t, err)
	}
}

func TestHandlerSpinStatuses(t *testing.T) {
	a := testVoucher("FREESHIP")
	f := newFixture(t, staticCatalog{vouchers: []voucher.Voucher{a}}, 0)
	h := &Handler{Svc: f.svc}

	call := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rewards/spin", nil)
		if userID != "" {
			req = req.WithContext(common.WithUserID(req.Context(), userID))
		}
		rr := httptest.NewRecorder()
		h.Spin(rr, req)
		return rr
	}

	require.Equal(t, http.StatusUnauthorized, call("").Code)

	rr := call("u1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"win":true`)

	rr = call("u1")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))

	f.wallet.grantErr = errors.New("tx aborted")
	rr = call("u2")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.NotContains(t, rr.Body.String(), a.Code)

	require.NoError(t, f.mr.Set("spin:u3", "held"))
	rr = call("u3")
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerWheel(t *testing.T) {
	f := newFixture(t, staticCatalog{vouchers: []voucher.Voucher{testVoucher("A")}})
	h := &Handler{Svc: f.svc}
	rr := httptest.NewRecorder()
	h.Wheel(rr, httptest.NewRequest(http.MethodGet, "/api/v1/rewards/wheel", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Better luck next time")
}
