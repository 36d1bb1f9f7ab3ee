package reward

import (
	"math/rand/v2"

	"github.com/noah-isme/greenmart/internal/voucher"
	"github.com/noah-isme/greenmart/internal/wallet"
)

// DefaultMaxRetries bounds how often a draw landing on an owned voucher is redrawn.
const DefaultMaxRetries = 10

// RNG draws a uniform index in [0, n). *rand.Rand satisfies it.
type RNG interface {
	IntN(n int) int
}

type globalRNG struct{}

func (globalRNG) IntN(n int) int { return rand.IntN(n) }

// DefaultRNG draws from the process-wide auto-seeded source.
func DefaultRNG() RNG { return globalRNG{} }

// Wheel lists the segments for the eligible catalog: every voucher in order,
// then a single no-win slot.
func Wheel(eligible []voucher.Voucher) []Prize {
	prizes := make([]Prize, 0, len(eligible)+1)
	for _, v := range eligible {
		prizes = append(prizes, Win(v))
	}
	return append(prizes, NoWin())
}

// Select spins the wheel. Every segment is equally likely. A draw that lands
// on a voucher the user already holds is redrawn, up to maxRetries times, as
// long as some eligible voucher is not held yet. The draw may still end on an
// owned voucher or on no-win.
func Select(eligible []voucher.Voucher, owned wallet.OwnedSet, rng RNG, maxRetries int) Prize {
	if rng == nil {
		rng = DefaultRNG()
	}
	prizes := Wheel(eligible)
	i := rng.IntN(len(prizes))

	hasUnowned := false
	for _, v := range eligible {
		if !owned.Holds(v.ID) {
			hasUnowned = true
			break
		}
	}
	if !hasUnowned {
		return prizes[i]
	}
	for retries := 0; retries < maxRetries; retries++ {
		v, ok := prizes[i].Voucher()
		if !ok || !owned.Holds(v.ID) {
			break
		}
		i = rng.IntN(len(prizes))
	}
	return prizes[i]
}
