package shipping

import (
	"github.com/noah-isme/greenmart/internal/geo"
	"github.com/noah-isme/greenmart/internal/obs"
)

// Locator resolves an administrative address to a coordinate.
type Locator interface {
	Lookup(district, ward string) (geo.Coordinate, bool)
}

// Quote is the shipping fee for a delivery address.
type Quote struct {
	Fee        int64   `json:"fee"`
	DistanceKm float64 `json:"distanceKm"`
	Resolved   bool    `json:"resolved"`
}

// Quoter prices deliveries from the store to a ward.
type Quoter struct {
	Wards      Locator
	Store      geo.Coordinate
	Tiers      Tiers
	DefaultFee int64
}

// NewQuoter builds a quoter using the default tier schedule.
func NewQuoter(wards Locator, store geo.Coordinate, defaultFee int64) Quoter {
	return Quoter{Wards: wards, Store: store, Tiers: DefaultTiers(), DefaultFee: defaultFee}
}

// Quote resolves the ward and prices the delivery. An address that cannot be
// resolved is charged DefaultFee and reported with Resolved=false.
func (q Quoter) Quote(district, ward string) Quote {
	var (
		dest geo.Coordinate
		ok   bool
	)
	if q.Wards != nil {
		dest, ok = q.Wards.Lookup(district, ward)
	}
	quote := q.QuoteCoordinate(dest, ok)
	obs.ObserveShippingQuote(quote.Resolved)
	return quote
}

// QuoteCoordinate prices a delivery to an already resolved coordinate.
func (q Quoter) QuoteCoordinate(dest geo.Coordinate, resolved bool) Quote {
	if !resolved {
		return Quote{Fee: q.DefaultFee}
	}
	tiers := q.Tiers
	if len(tiers.Steps) == 0 && tiers.Beyond == 0 {
		tiers = DefaultTiers()
	}
	distance := geo.DistanceKm(q.Store, dest)
	return Quote{Fee: tiers.FeeFor(distance), DistanceKm: distance, Resolved: true}
}
