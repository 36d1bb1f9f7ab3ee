package reward

import (
	"encoding/json"

	"github.com/noah-isme/greenmart/internal/voucher"
)

// Prize is one slot on the wheel: either a voucher or the "better luck next
// time" outcome.
type Prize struct {
	voucher *voucher.Voucher
}

// Win returns a prize carrying v.
func Win(v voucher.Voucher) Prize {
	return Prize{voucher: &v}
}

// NoWin returns the empty prize.
func NoWin() Prize {
	return Prize{}
}

// IsWin reports whether the prize carries a voucher.
func (p Prize) IsWin() bool {
	return p.voucher != nil
}

// Voucher returns the won voucher, if any.
func (p Prize) Voucher() (voucher.Voucher, bool) {
	if p.voucher == nil {
		return voucher.Voucher{}, false
	}
	return *p.voucher, true
}

// Label is the text shown on the wheel segment.
func (p Prize) Label() string {
	if p.voucher == nil {
		return "Better luck next time"
	}
	return p.voucher.Code
}

type prizeJSON struct {
	Win     bool             `json:"win"`
	Label   string           `json:"label"`
	Voucher *voucher.Voucher `json:"voucher,omitempty"`
}

// MarshalJSON renders the prize for API clients.
func (p Prize) MarshalJSON() ([]byte, error) {
	return json.Marshal(prizeJSON{Win: p.IsWin(), Label: p.Label(), Voucher: p.voucher})
}

// UnmarshalJSON parses the MarshalJSON form.
func (p *Prize) UnmarshalJSON(data []byte) error {
	var raw prizeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Win && raw.Voucher != nil {
		*p = Win(*raw.Voucher)
		return nil
	}
	*p = NoWin()
	return nil
}
