package voucher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no voucher matches the identifier.
	ErrNotFound = errors.New("voucher not found")
	// ErrNotEligible is returned when the voucher is inactive, exhausted or expired.
	ErrNotEligible = errors.New("voucher not eligible")
	// ErrMinimumOrderUnmet indicates the subtotal is below the voucher threshold.
	ErrMinimumOrderUnmet = errors.New("voucher minimum order not met")
	// ErrDuplicateCode is returned when another voucher already uses the code.
	ErrDuplicateCode = errors.New("voucher code already exists")
	// ErrInvalidVoucher wraps field level validation failures.
	ErrInvalidVoucher = errors.New("invalid voucher")
)

// Kind selects how Value is interpreted.
type Kind string

const (
	// KindPercent discounts Value percent of the subtotal.
	KindPercent Kind = "percent"
	// KindAmount discounts a flat Value in currency units.
	KindAmount Kind = "amount"
)

// Valid reports whether k is a known discount kind.
func (k Kind) Valid() bool {
	return k == KindPercent || k == KindAmount
}

// Voucher is a discount rule that can be won on the wheel and applied at checkout.
type Voucher struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Kind         Kind      `json:"discountType"`
	Value        int64     `json:"discountValue"`
	MinOrder     int64     `json:"minOrder"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsActive     bool      `json:"isActive"`
	MaxUsage     *int32    `json:"maxUsage,omitempty"`
	CurrentUsage int32     `json:"currentUsage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Eligible reports whether the voucher can still be won or applied at now.
// A voucher expiring exactly at now is still eligible.
func (v Voucher) Eligible(now time.Time) bool {
	if !v.IsActive {
		return false
	}
	if v.MaxUsage != nil && v.CurrentUsage >= *v.MaxUsage {
		return false
	}
	return !v.ExpiresAt.Before(now)
}

// Validate checks the fields an administrator may set.
func (v Voucher) Validate() error {
	var problems []string
	if strings.TrimSpace(v.Code) == "" {
		problems = append(problems, "code is required")
	}
	if !v.Kind.Valid() {
		problems = append(problems, "discountType must be percent or amount")
	}
	if v.Value < 0 {
		problems = append(problems, "discountValue must not be negative")
	}
	if v.Kind == KindPercent && v.Value > 100 {
		problems = append(problems, "percent discountValue must be at most 100")
	}
	if v.MinOrder < 0 {
		problems = append(problems, "minOrder must not be negative")
	}
	if v.MaxUsage != nil && *v.MaxUsage < 0 {
		problems = append(problems, "maxUsage must not be negative")
	}
	if v.ExpiresAt.IsZero() {
		problems = append(problems, "expiresAt is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidVoucher, strings.Join(problems, "; "))
	}
	return nil
}

// FilterEligible returns the eligible vouchers in their original order.
func FilterEligible(vouchers []Voucher, now time.Time) []Voucher {
	out := make([]Voucher, 0, len(vouchers))
	for _, v := range vouchers {
		if v.Eligible(now) {
			out = append(out, v)
		}
	}
	return out
}

// DiscountFor computes the discount v grants on subtotal. Percent discounts
// round half up. The result is always within [0, subtotal].
func DiscountFor(subtotal int64, v *Voucher) int64 {
	if v == nil || subtotal <= 0 || subtotal < v.MinOrder {
		return 0
	}
	var discount int64
	switch v.Kind {
	case KindPercent:
		// Split subtotal so the multiply stays in range for any int64.
		pct := min(max(v.Value, 0), 100)
		discount = subtotal/100*pct + (subtotal%100*pct+50)/100
	case KindAmount:
		discount = v.Value
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}

// Check returns the reason v cannot be applied to subtotal at now, or nil.
func Check(v Voucher, subtotal int64, now time.Time) error {
	if !v.Eligible(now) {
		return ErrNotEligible
	}
	if subtotal < v.MinOrder {
		return ErrMinimumOrderUnmet
	}
	return nil
}
