package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/greenmart/internal/obs"
	"github.com/noah-isme/greenmart/internal/resilience"
)

// CatalogInvalidator is notified when a grant changes a voucher's usage count.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context)
}

// Service reads wallets through the cache and commits grants to the ledger.
type Service struct {
	Ledger  Ledger
	Cache   *Cache
	Catalog CatalogInvalidator
	Breaker *resilience.Breaker
	Logger  zerolog.Logger
}

// Owned returns the user's voucher quantities, preferring the cache.
func (s *Service) Owned(ctx context.Context, userID string) (OwnedSet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	if s == nil || s.Ledger == nil {
		return nil, ErrLedgerUnavailable
	}
	if owned, ok, err := s.Cache.Load(ctx, userID); err != nil {
		s.Logger.Warn().Err(err).Str("user_id", userID).Msg("wallet cache read failed")
	} else if ok {
		return owned, nil
	}
	owned, err := s.Ledger.Owned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if err := s.Cache.Store(ctx, userID, owned); err != nil {
		s.Logger.Warn().Err(err).Str("user_id", userID).Msg("wallet cache write failed")
	}
	return owned, nil
}

// Holdings lists the wallet with voucher details straight from the ledger.
func (s *Service) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	if s == nil || s.Ledger == nil {
		return nil, ErrLedgerUnavailable
	}
	return s.Ledger.Holdings(ctx, userID)
}

// Grant credits one copy of the voucher to the user. The cache is bumped
// first, then the ledger commits; on success the cache takes the committed
// quantity, on failure the bump is reverted.
func (s *Service) Grant(ctx context.Context, userID string, voucherID uuid.UUID) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrUserRequired
	}
	if s == nil || s.Ledger == nil {
		return 0, ErrLedgerUnavailable
	}
	log := s.Logger.With().Str("user_id", userID).Str("voucher_id", voucherID.String()).Logger()

	applied := true
	if err := s.Cache.Apply(ctx, userID, voucherID); err != nil {
		applied = false
		log.Warn().Err(err).Msg("wallet optimistic apply failed")
	}

	var qty int
	err := s.Breaker.Execute(ctx, func(ctx context.Context) error {
		var grantErr error
		qty, grantErr = s.Ledger.Grant(ctx, userID, voucherID)
		return grantErr
	})
	if err != nil {
		// the request context may already be cancelled
		cleanup := context.WithoutCancel(ctx)
		if applied {
			if rbErr := s.Cache.Rollback(cleanup, userID, voucherID); rbErr != nil {
				log.Warn().Err(rbErr).Msg("wallet rollback failed, invalidating")
				_ = s.Cache.Invalidate(cleanup, userID)
			}
		}
		switch {
		case errors.Is(err, ErrVoucherUnavailable):
			obs.ObserveGrant("unavailable")
			s.invalidateCatalog(cleanup)
		case errors.Is(err, resilience.ErrOpenCircuit):
			obs.ObserveGrant("breaker_open")
		default:
			obs.ObserveGrant("error")
		}
		return 0, err
	}

	obs.ObserveGrant("ok")
	if err := s.Cache.Reconcile(ctx, userID, voucherID, qty); err != nil {
		log.Warn().Err(err).Msg("wallet reconcile failed, invalidating")
		_ = s.Cache.Invalidate(context.WithoutCancel(ctx), userID)
	}
	s.invalidateCatalog(ctx)
	return qty, nil
}

// LedgerFailure reports whether err points at the ledger itself rather than
// the voucher being granted. Breakers guarding Grant use it.
func LedgerFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrVoucherUnavailable) && !errors.Is(err, context.Canceled)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if s.Catalog != nil {
		s.Catalog.Invalidate(ctx)
	}
}
