package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is one Up/Down candidate window as advertised by the prediction
// venue. Live outcome prices are nil until the venue has published them;
// token ids are empty when the outcome set is not a binary Up/Down pair.
type Market struct {
	ID          string
	Question    string
	Slug        string
	StartTime   *time.Time // nil when the venue omits it
	EndTime     time.Time
	Liquidity   float64
	Volume      float64
	UpTokenID   string
	DownTokenID string
	UpPrice     *float64
	DownPrice   *float64
	PriceToBeat decimal.Decimal // zero when the venue has not published one
	Active      bool
	Closed      bool
}

// Binary reports whether both outcome tokens were resolved.
func (m *Market) Binary() bool {
	return m.UpTokenID != "" && m.DownTokenID != ""
}

// HasPriceToBeat reports whether the venue published an anchor price.
func (m *Market) HasPriceToBeat() bool {
	return !m.PriceToBeat.IsZero()
}

// Live reports whether the market has started (or never declared a
// start) and has not yet ended.
func (m *Market) Live(now time.Time) bool {
	if !m.EndTime.After(now) {
		return false
	}
	return m.StartTime == nil || !m.StartTime.After(now)
}

// Upcoming reports whether the market starts in the future and has not
// yet ended.
func (m *Market) Upcoming(now time.Time) bool {
	if !m.EndTime.After(now) {
		return false
	}
	return m.StartTime != nil && m.StartTime.After(now)
}
