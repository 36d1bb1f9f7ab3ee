package pricing

import "errors"

const (
	// MaxAmount bounds any single price, subtotal or fee.
	MaxAmount Money = 1_000_000_000_000_000
	// MaxQty bounds the quantity of one line item.
	MaxQty = 100_000
)

// ErrAmountTooLarge is returned when an order exceeds MaxAmount or MaxQty.
var ErrAmountTooLarge = errors.New("pricing: amount too large")

// Money represents a monetary value in whole currency units.
type Money = int64

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int   `json:"qty"`
	UnitPrice Money `json:"unitPrice"`
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Shipping Money `json:"shipping"`
	Total    Money `json:"total"`
}

// Subtotal sums the line items, skipping non-positive quantities and prices.
// Sums past MaxAmount fail with ErrAmountTooLarge instead of wrapping.
func Subtotal(items []Item) (Money, error) {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 || it.UnitPrice <= 0 {
			continue
		}
		if it.Qty > MaxQty || it.UnitPrice > MaxAmount {
			return 0, ErrAmountTooLarge
		}
		// Both factors are bounded, so the product fits in an int64.
		subtotal += Money(it.Qty) * it.UnitPrice
		if subtotal > MaxAmount {
			return 0, ErrAmountTooLarge
		}
	}
	return subtotal, nil
}

// Compute derives the order total. The discount is clamped to [0, subtotal]
// so the total never drops below the shipping fee.
func Compute(subtotal, shipping, discount Money) Summary {
	if subtotal < 0 {
		subtotal = 0
	}
	if shipping < 0 {
		shipping = 0
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Total:    subtotal + shipping - discount,
	}
}
