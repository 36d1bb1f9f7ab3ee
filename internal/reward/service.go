package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/greenmart/internal/events"
	"github.com/noah-isme/greenmart/internal/lock"
	"github.com/noah-isme/greenmart/internal/obs"
	"github.com/noah-isme/greenmart/internal/voucher"
	"github.com/noah-isme/greenmart/internal/wallet"
)

var (
	// ErrSpinInProgress is returned when another spin for the same user holds the lock.
	ErrSpinInProgress = errors.New("reward: spin already in progress")
	// ErrSpinLimitReached is returned when the user used up the spins for the window.
	ErrSpinLimitReached = errors.New("reward: spin limit reached")
	// ErrCommitFailed is returned when a winning draw could not be credited.
	ErrCommitFailed = errors.New("reward: prize could not be committed")
	// ErrUserRequired is returned when no user identifier is supplied.
	ErrUserRequired = errors.New("reward: user id is required")
)

// LimitError carries when the next spin becomes available.
type LimitError struct {
	ResetAt time.Time
}

func (e *LimitError) Error() string { return ErrSpinLimitReached.Error() }

// Is makes errors.Is(err, ErrSpinLimitReached) hold.
func (e *LimitError) Is(target error) bool { return target == ErrSpinLimitReached }

// Catalog supplies the vouchers currently on the wheel.
type Catalog interface {
	Eligible(ctx context.Context) ([]voucher.Voucher, error)
}

// Wallet reads and credits user wallets.
type Wallet interface {
	Owned(ctx context.Context, userID string) (wallet.OwnedSet, error)
	Grant(ctx context.Context, userID string, voucherID uuid.UUID) (int, error)
}

// Locker serialises spins per user.
type Locker interface {
	WithLockWait(ctx context.Context, key string, ttl, wait time.Duration, fn func(context.Context) error) error
}

// Allowance tracks spins per user within a sliding window.
type Allowance interface {
	Remaining(ctx context.Context, key string, window time.Duration, limit int) (int, time.Time, error)
	Record(ctx context.Context, key string, window time.Duration) error
}

// SpinResult is the committed outcome of a spin.
type SpinResult struct {
	Prize          Prize     `json:"prize"`
	Quantity       int       `json:"quantity"`
	SpunAt         time.Time `json:"spunAt"`
	RemainingSpins *int      `json:"remainingSpins,omitempty"`
}

// Service runs lucky wheel spins.
type Service struct {
	Catalog   Catalog
	Wallet    Wallet
	Locker    Locker
	Allowance Allowance
	Events    events.Emitter
	Logger    zerolog.Logger
	NewRNG    func() RNG
	Now       func() time.Time

	MaxRetries  int
	SpinsPerDay int
	SpinWindow  time.Duration
	LockTTL     time.Duration
	LockWait    time.Duration
}

// Wheel returns the segments currently on the wheel.
func (s *Service) Wheel(ctx context.Context) ([]Prize, error) {
	if s == nil || s.Catalog == nil {
		return nil, errors.New("reward: service not configured")
	}
	eligible, err := s.Catalog.Eligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("load eligible vouchers: %w", err)
	}
	return Wheel(eligible), nil
}

// Spin draws a prize for userID and credits it before returning. A win that
// cannot be committed is never reported.
func (s *Service) Spin(ctx context.Context, userID string) (SpinResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SpinResult{}, ErrUserRequired
	}
	if s == nil || s.Catalog == nil || s.Wallet == nil {
		return SpinResult{}, errors.New("reward: service not configured")
	}
	start := time.Now()
	ctx, span := otel.Tracer("greenmart.reward").Start(ctx, "reward.Spin")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var result SpinResult
	run := func(ctx context.Context) error {
		// The spin must settle while the lease is still held, otherwise a
		// second spin could see the allowance unspent.
		ctx, cancel := context.WithTimeout(ctx, s.spinBudget())
		defer cancel()
		var err error
		result, err = s.spin(ctx, userID)
		return err
	}
	var err error
	if s.Locker != nil {
		err = s.Locker.WithLockWait(ctx, "spin:"+userID, s.lockTTL(), s.LockWait, run)
		if errors.Is(err, lock.ErrNotAcquired) {
			err = ErrSpinInProgress
		}
	} else {
		err = run(ctx)
	}

	outcome := spinOutcome(result, err)
	obs.ObserveSpin(outcome, time.Since(start))
	span.SetAttributes(attribute.String("reward.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return SpinResult{}, err
	}
	return result, nil
}

func (s *Service) spin(ctx context.Context, userID string) (SpinResult, error) {
	log := s.Logger.With().Str("user_id", userID).Logger()
	key := "spins:" + userID

	var remaining *int
	if s.Allowance != nil && s.SpinsPerDay > 0 {
		left, resetAt, err := s.Allowance.Remaining(ctx, key, s.window(), s.SpinsPerDay)
		if err != nil {
			return SpinResult{}, fmt.Errorf("check spin allowance: %w", err)
		}
		if left <= 0 {
			return SpinResult{}, &LimitError{ResetAt: resetAt}
		}
		left--
		remaining = &left
	}

	var (
		eligible []voucher.Voucher
		owned    wallet.OwnedSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		eligible, err = s.Catalog.Eligible(gctx)
		if err != nil {
			return fmt.Errorf("load eligible vouchers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		owned, err = s.Wallet.Owned(gctx, userID)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return SpinResult{}, err
	}

	prize := Select(eligible, owned, s.rng(), s.maxRetries())
	result := SpinResult{Prize: prize, SpunAt: s.now(), RemainingSpins: remaining}

	if v, ok := prize.Voucher(); ok {
		qty, err := s.Wallet.Grant(ctx, userID, v.ID)
		if err != nil {
			log.Error().Err(err).Str("voucher_id", v.ID.String()).Msg("reward commit failed")
			s.emit(context.WithoutCancel(ctx), events.TopicRewardGrantFailed, userID, map[string]any{
				"voucherId": v.ID,
				"code":      v.Code,
				"error":     err.Error(),
			})
			return SpinResult{}, fmt.Errorf("%w: %w", ErrCommitFailed, err)
		}
		result.Quantity = qty
		s.emit(ctx, events.TopicRewardGranted, userID, map[string]any{
			"voucherId": v.ID,
			"code":      v.Code,
			"quantity":  qty,
			"spunAt":    result.SpunAt,
		})
	}

	if s.Allowance != nil && s.SpinsPerDay > 0 {
		if err := s.Allowance.Record(context.WithoutCancel(ctx), key, s.window()); err != nil {
			log.Warn().Err(err).Msg("record spin failed")
		}
	}
	log.Info().Bool("win", prize.IsWin()).Str("prize", prize.Label()).Int("candidates", len(eligible)).Msg("reward spin")
	return result, nil
}

func (s *Service) emit(ctx context.Context, topic, userID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, userID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("user_id", userID).Msg("emit reward event failed")
	}
}

func (s *Service) rng() RNG {
	if s.NewRNG != nil {
		if r := s.NewRNG(); r != nil {
			return r
		}
	}
	return DefaultRNG()
}

func (s *Service) maxRetries() int {
	if s.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return s.MaxRetries
}

func (s *Service) window() time.Duration {
	if s.SpinWindow <= 0 {
		return 24 * time.Hour
	}
	return s.SpinWindow
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

// spinBudget leaves a fifth of the lease for releasing the lock.
func (s *Service) spinBudget() time.Duration {
	ttl := s.lockTTL()
	return ttl - ttl/5
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func spinOutcome(result SpinResult, err error) string {
	switch {
	case err == nil && result.Prize.IsWin():
		return "win"
	case err == nil:
		return "no_win"
	case errors.Is(err, ErrSpinLimitReached):
		return "limited"
	case errors.Is(err, ErrSpinInProgress):
		return "in_progress"
	case errors.Is(err, ErrCommitFailed):
		return "commit_failed"
	default:
		return "error"
	}
}
