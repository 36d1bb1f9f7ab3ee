package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("postgres down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func newClockedBreaker(minRequests int, openFor time.Duration, isFailure func(error) bool) (*Breaker, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(Settings{
		Name:         "wallet-ledger",
		MinRequests:  minRequests,
		FailureRatio: 0.5,
		OpenFor:      openFor,
		IsFailure:    isFailure,
		Now:          func() time.Time { return now },
	})
	return b, &now
}

func TestBreakerTransitions(t *testing.T) {
	ctx := context.Background()
	b, now := newClockedBreaker(2, time.Second, nil)

	require.ErrorIs(t, b.Execute(ctx, fail), errDown)
	require.ErrorIs(t, b.Execute(ctx, fail), errDown)
	require.Equal(t, Open, b.State())
	require.ErrorIs(t, b.Execute(ctx, ok), ErrOpenCircuit)

	*now = now.Add(time.Second)
	require.NoError(t, b.Execute(ctx, ok))
	require.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b, now := newClockedBreaker(1, time.Second, nil)

	require.Error(t, b.Execute(ctx, fail))
	require.Equal(t, Open, b.State())

	*now = now.Add(2 * time.Second)
	require.ErrorIs(t, b.Execute(ctx, fail), errDown)
	require.Equal(t, Open, b.State())
}

func TestBreakerIgnoresBusinessErrors(t *testing.T) {
	ctx := context.Background()
	errSoldOut := errors.New("sold out")
	b, _ := newClockedBreaker(1, time.Second, func(err error) bool { return err != nil && !errors.Is(err, errSoldOut) })

	for range 5 {
		require.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return errSoldOut }), errSoldOut)
	}
	require.Equal(t, Closed, b.State())
}

func TestBreakerIgnoredErrorsDoNotDiluteFailures(t *testing.T) {
	ctx := context.Background()
	errSoldOut := errors.New("sold out")
	b, _ := newClockedBreaker(2, time.Second, func(err error) bool { return err != nil && !errors.Is(err, errSoldOut) })
	soldOut := func(context.Context) error { return errSoldOut }

	for range 3 {
		require.ErrorIs(t, b.Execute(ctx, soldOut), errSoldOut)
	}
	require.ErrorIs(t, b.Execute(ctx, fail), errDown)
	require.Equal(t, Closed, b.State())
	require.ErrorIs(t, b.Execute(ctx, fail), errDown)
	require.Equal(t, Open, b.State())
}

func TestHalfOpenIgnoredProbeKeepsProbing(t *testing.T) {
	ctx := context.Background()
	b, now := newClockedBreaker(1, time.Second, nil)
	require.Error(t, b.Execute(ctx, fail))

	*now = now.Add(time.Second)
	canceled := func(context.Context) error { return context.Canceled }
	require.ErrorIs(t, b.Execute(ctx, canceled), context.Canceled)
	require.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, ok))
	require.Equal(t, Closed, b.State())
}

func TestBreakerCancellationIsNotFailure(t *testing.T) {
	b, _ := newClockedBreaker(1, time.Second, nil)
	err := b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, Closed, b.State())
}

func TestNilBreakerRunsCall(t *testing.T) {
	var b *Breaker
	require.NoError(t, b.Execute(context.Background(), ok))
}

func TestBreakerMetrics(t *testing.T) {
	MustRegisterMetrics("greenmart_test", prometheus.NewRegistry())
	BreakerState.Reset()
	BreakerTransitions.Reset()

	ctx := context.Background()
	b, now := newClockedBreaker(1, time.Second, nil)
	require.Error(t, b.Execute(ctx, fail))
	require.Equal(t, 1.0, testutil.ToFloat64(BreakerState.WithLabelValues("wallet-ledger")))

	*now = now.Add(time.Second)
	require.NoError(t, b.Execute(ctx, ok))
	require.Equal(t, 0.0, testutil.ToFloat64(BreakerState.WithLabelValues("wallet-ledger")))
	require.Equal(t, 1.0, testutil.ToFloat64(BreakerTransitions.WithLabelValues("wallet-ledger", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(BreakerTransitions.WithLabelValues("wallet-ledger", "half_open", "closed")))
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	ctx := context.Background()
	b, now := newClockedBreaker(1, time.Second, nil)
	require.Error(t, b.Execute(ctx, fail))

	*now = now.Add(time.Second)
	release := make(chan struct{})
	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	require.Equal(t, HalfOpen, b.State())
	require.ErrorIs(t, b.Execute(ctx, ok), ErrOpenCircuit)
	close(release)
	require.NoError(t, <-done)
	require.Equal(t, Closed, b.State())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "half_open", HalfOpen.String())
	require.Equal(t, "unknown", State(7).String())
}
