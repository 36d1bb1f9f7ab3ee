package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/greenmart/internal/common"
	"github.com/noah-isme/greenmart/internal/obs"
	"github.com/noah-isme/greenmart/internal/pricing"
	"github.com/noah-isme/greenmart/internal/shipping"
	"github.com/noah-isme/greenmart/internal/voucher"
	"github.com/noah-isme/greenmart/internal/wallet"
)

// Reasons reported when a selected voucher is dropped from the order.
const (
	ReasonNotFound          = "not_found"
	ReasonNotEligible       = "not_eligible"
	ReasonMinimumOrderUnmet = "minimum_order_unmet"
	ReasonNotOwned          = "not_owned"
)

// VoucherLoader fetches a voucher by ID.
type VoucherLoader interface {
	Get(ctx context.Context, id uuid.UUID) (voucher.Voucher, error)
}

// OwnedReader exposes the caller's wallet.
type OwnedReader interface {
	Owned(ctx context.Context, userID string) (wallet.OwnedSet, error)
}

// ShippingQuoter prices delivery to an address.
type ShippingQuoter interface {
	Quote(district, ward string) shipping.Quote
}

// Address is the delivery destination.
type Address struct {
	District string `json:"district"`
	Ward     string `json:"ward"`
}

// Input is the basket being priced.
type Input struct {
	UserID    string         `json:"-"`
	Items     []pricing.Item `json:"items"`
	VoucherID *uuid.UUID     `json:"voucherId"`
	Address   Address        `json:"address"`
}

// Summary is the priced order.
type Summary struct {
	pricing.Summary
	Quote          shipping.Quote   `json:"shippingQuote"`
	Voucher        *voucher.Voucher `json:"voucher,omitempty"`
	VoucherCleared bool             `json:"voucherCleared"`
	ClearReason    string           `json:"clearReason,omitempty"`
}

// Service prices orders. Every call recomputes from scratch.
type Service struct {
	Vouchers VoucherLoader
	Wallet   OwnedReader
	Shipping ShippingQuoter
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Summary computes subtotal, shipping, discount and total for in. A voucher
// that cannot be applied is cleared rather than rejected.
func (s *Service) Summary(ctx context.Context, in Input) (Summary, error) {
	if s == nil || s.Shipping == nil {
		return Summary{}, errors.New("checkout: service not configured")
	}
	ctx, span := otel.Tracer("greenmart.checkout").Start(ctx, "checkout.Summary")
	defer span.End()

	subtotal, err := pricing.Subtotal(in.Items)
	if err != nil {
		return Summary{}, common.NewAppError("ORDER_TOO_LARGE", "order amount exceeds the supported limit", http.StatusBadRequest, err)
	}
	quote := s.Shipping.Quote(in.Address.District, in.Address.Ward)

	var out Summary
	var discount int64
	if in.VoucherID != nil {
		v, reason, err := s.resolveVoucher(ctx, in.UserID, *in.VoucherID, subtotal)
		if err != nil {
			span.RecordError(err)
			return Summary{}, common.NewAppError("CHECKOUT_FAILED", "could not price order", http.StatusServiceUnavailable, err)
		}
		if reason != "" {
			out.VoucherCleared = true
			out.ClearReason = reason
			s.Logger.Info().Str("voucher_id", in.VoucherID.String()).Str("reason", reason).Msg("checkout voucher cleared")
		} else {
			out.Voucher = &v
			discount = voucher.DiscountFor(subtotal, &v)
		}
	}

	out.Summary = pricing.Compute(subtotal, quote.Fee, discount)
	out.Quote = quote
	span.SetAttributes(
		attribute.Int64("checkout.subtotal", out.Subtotal),
		attribute.Int64("checkout.total", out.Total),
		attribute.Bool("checkout.address_resolved", quote.Resolved),
	)
	obs.ObserveCheckoutSummary(voucherOutcome(in, out))
	return out, nil
}

func (s *Service) resolveVoucher(ctx context.Context, userID string, id uuid.UUID, subtotal int64) (voucher.Voucher, string, error) {
	if s.Vouchers == nil {
		return voucher.Voucher{}, ReasonNotFound, nil
	}
	v, err := s.Vouchers.Get(ctx, id)
	if errors.Is(err, voucher.ErrNotFound) {
		return voucher.Voucher{}, ReasonNotFound, nil
	}
	if err != nil {
		return voucher.Voucher{}, "", fmt.Errorf("load voucher: %w", err)
	}
	switch err := voucher.Check(v, subtotal, s.now()); {
	case errors.Is(err, voucher.ErrNotEligible):
		return v, ReasonNotEligible, nil
	case errors.Is(err, voucher.ErrMinimumOrderUnmet):
		return v, ReasonMinimumOrderUnmet, nil
	}
	if s.Wallet != nil && userID != "" {
		owned, err := s.Wallet.Owned(ctx, userID)
		if err != nil {
			return voucher.Voucher{}, "", fmt.Errorf("load wallet: %w", err)
		}
		if !owned.Holds(id) {
			return v, ReasonNotOwned, nil
		}
	}
	return v, "", nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func voucherOutcome(in Input, out Summary) string {
	switch {
	case in.VoucherID == nil:
		return "none"
	case out.VoucherCleared:
		return "cleared"
	default:
		return "applied"
	}
}
