package assistant

import (
	"encoding/json"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/series"
)

// SelectedMarket describes the Up/Down window currently on screen.
// Price fields are nil until the venue publishes them; priceToBeat falls
// back to the locally captured reference when the venue's question text
// does not carry one.
type SelectedMarket struct {
	Question        string   `json:"question"`
	Slug            string   `json:"slug"`
	EndDate         string   `json:"endDate"`
	UpPrice         *float64 `json:"upPrice"`
	DownPrice       *float64 `json:"downPrice"`
	Liquidity       float64  `json:"liquidity"`
	PriceToBeat     *float64 `json:"priceToBeat"`
	TimeLeftMinutes float64  `json:"timeLeftMinutes"`
}

// Bands are the volatility envelope around the reference price.
type Bands struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// WindowInfo is the clock-derived window the snapshot was taken in.
type WindowInfo struct {
	StartMs int64 `json:"startMs"`
	EndMs   int64 `json:"endMs"`
}

// Snapshot is the consolidated state published after every engine tick.
// Fields degrade to null independently: a snapshot with no market, no
// spot price, or no ATR is still valid.
type Snapshot struct {
	Timestamp      int64                 `json:"timestamp"`
	Asset          string                `json:"asset"`
	SpotPrice      *float64              `json:"spotPrice"`
	SelectedMarket *SelectedMarket       `json:"selectedMarket"`
	AlignedHistory []series.AlignedPoint `json:"alignedHistory"`
	ATR            *float64              `json:"atr"`
	ReferencePrice *float64              `json:"referencePrice"`
	ATRBands       *Bands                `json:"atrBands"`
	Window         WindowInfo            `json:"window"`
}

// Encode renders the snapshot as JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses a stored snapshot payload.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
