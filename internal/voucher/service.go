package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/greenmart/internal/events"
	"github.com/noah-isme/greenmart/internal/obs"
)

// PreviewResult describes the outcome of evaluating a voucher without mutating state.
type PreviewResult struct {
	VoucherID uuid.UUID `json:"voucherId"`
	Code      string    `json:"code"`
	Subtotal  int64     `json:"subtotal"`
	Discount  int64     `json:"discount"`
}

// Service serves the voucher catalog with a Redis read-through cache.
type Service struct {
	Store  Store
	Cache  *Cache
	Events events.Emitter
	Logger zerolog.Logger
	Now    func() time.Time
}

// Catalog returns every voucher, eligible or not.
func (s *Service) Catalog(ctx context.Context) ([]Voucher, error) {
	if s == nil || s.Store == nil {
		return nil, ErrStoreUnavailable
	}
	cached, ok, err := s.Cache.Load(ctx)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("voucher cache read failed")
	}
	obs.ObserveVoucherCache(ok)
	if ok {
		return cached, nil
	}
	vouchers, err := s.Store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	if err := s.Cache.Store(ctx, vouchers); err != nil {
		s.Logger.Warn().Err(err).Msg("voucher cache write failed")
	}
	return vouchers, nil
}

// Eligible returns the vouchers that can currently be won or applied.
func (s *Service) Eligible(ctx context.Context) ([]Voucher, error) {
	vouchers, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return FilterEligible(vouchers, s.now()), nil
}

// Get loads a single voucher from Postgres.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Voucher, error) {
	if s == nil || s.Store == nil {
		return Voucher{}, ErrStoreUnavailable
	}
	return s.Store.Get(ctx, id)
}

// Preview computes the discount id would grant on subtotal.
func (s *Service) Preview(ctx context.Context, id uuid.UUID, subtotal int64) (PreviewResult, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return PreviewResult{}, err
	}
	if err := Check(v, subtotal, s.now()); err != nil {
		return PreviewResult{}, err
	}
	return PreviewResult{
		VoucherID: v.ID,
		Code:      v.Code,
		Subtotal:  subtotal,
		Discount:  DiscountFor(subtotal, &v),
	}, nil
}

// List returns one page of the catalog for administrators.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Voucher, int, error) {
	if s == nil || s.Store == nil {
		return nil, 0, ErrStoreUnavailable
	}
	return s.Store.List(ctx, limit, offset)
}

// Create validates and stores a new voucher.
func (s *Service) Create(ctx context.Context, v Voucher) (Voucher, error) {
	if s == nil || s.Store == nil {
		return Voucher{}, ErrStoreUnavailable
	}
	v.Code = strings.TrimSpace(v.Code)
	if err := v.Validate(); err != nil {
		return Voucher{}, err
	}
	created, err := s.Store.Create(ctx, v)
	if err != nil {
		return Voucher{}, err
	}
	s.afterWrite(ctx, events.TopicVoucherCreated, created)
	return created, nil
}

// Update replaces the administrator-editable fields of a voucher.
func (s *Service) Update(ctx context.Context, v Voucher) (Voucher, error) {
	if s == nil || s.Store == nil {
		return Voucher{}, ErrStoreUnavailable
	}
	if v.ID == uuid.Nil {
		return Voucher{}, ErrNotFound
	}
	v.Code = strings.TrimSpace(v.Code)
	if err := v.Validate(); err != nil {
		return Voucher{}, err
	}
	updated, err := s.Store.Update(ctx, v)
	if err != nil {
		return Voucher{}, err
	}
	s.afterWrite(ctx, events.TopicVoucherUpdated, updated)
	return updated, nil
}

// Invalidate drops the cached catalog. The wallet calls it after usage changes.
func (s *Service) Invalidate(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		s.Logger.Warn().Err(err).Msg("voucher cache invalidate failed")
	}
}

func (s *Service) afterWrite(ctx context.Context, topic string, v Voucher) {
	s.Invalidate(ctx)
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, v.ID.String(), v); err != nil && !errors.Is(err, context.Canceled) {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("voucher_id", v.ID.String()).Msg("emit voucher event failed")
	}
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
