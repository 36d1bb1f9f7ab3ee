package wallet

import (
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/greenmart/internal/voucher"
)

var (
	// ErrVoucherUnavailable is returned when a grant races with the voucher
	// becoming inactive, expired or exhausted.
	ErrVoucherUnavailable = errors.New("wallet: voucher no longer available")
	// ErrUserRequired is returned when no user identifier is supplied.
	ErrUserRequired = errors.New("wallet: user id is required")
)

// OwnedSet maps a voucher to the quantity the user holds.
type OwnedSet map[uuid.UUID]int

// Holds reports whether at least one copy of the voucher is held.
func (o OwnedSet) Holds(id uuid.UUID) bool {
	return o[id] > 0
}

// Clone returns an independent copy of the set.
func (o OwnedSet) Clone() OwnedSet {
	out := make(OwnedSet, len(o))
	for id, qty := range o {
		out[id] = qty
	}
	return out
}

// Holding is one wallet entry together with the voucher it refers to.
type Holding struct {
	Voucher  voucher.Voucher `json:"voucher"`
	Quantity int             `json:"quantity"`
}
