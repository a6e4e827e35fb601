package polymarket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/market"
)

// Event is one entry of the gamma /events payload. Up/Down windows are
// published as one event per window slug with a single nested market.
type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Slug        string      `json:"slug"`
	Description string      `json:"description"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
	Liquidity   string      `json:"liquidity"`
	EndDate     string      `json:"endDate"`
	StartTime   string      `json:"startTime"`
	Markets     []APIMarket `json:"markets"`
}

// APIMarket is the nested market payload. Outcomes, outcomePrices and
// clobTokenIds are JSON arrays encoded as strings, the venue's quirk.
type APIMarket struct {
	ID             string `json:"id"`
	ConditionID    string `json:"conditionId"`
	Question       string `json:"question"`
	Description    string `json:"description"`
	Outcomes       string `json:"outcomes"`
	OutcomePrices  string `json:"outcomePrices"`
	ClobTokenIds   string `json:"clobTokenIds"`
	Volume         string `json:"volume"`
	Liquidity      string `json:"liquidity"`
	EndDate        string `json:"endDate"`
	EventStartTime string `json:"eventStartTime"`
}

// ParseOutcomes decodes the outcome labels, e.g. ["Up", "Down"].
func (m *APIMarket) ParseOutcomes() ([]string, error) {
	if m.Outcomes == "" || m.Outcomes == "null" {
		return nil, nil
	}
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return nil, fmt.Errorf("polymarket: parse outcomes: %w", err)
	}
	return outcomes, nil
}

// ParseOutcomePrices decodes the outcome prices, e.g. ["0.51", "0.49"].
func (m *APIMarket) ParseOutcomePrices() ([]decimal.Decimal, error) {
	if m.OutcomePrices == "" || m.OutcomePrices == "null" {
		return nil, nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &raw); err != nil {
		return nil, fmt.Errorf("polymarket: parse outcome prices: %w", err)
	}
	prices := make([]decimal.Decimal, 0, len(raw))
	for _, r := range raw {
		p, err := decimal.NewFromString(r)
		if err != nil {
			return nil, fmt.Errorf("polymarket: parse outcome price %q: %w", r, err)
		}
		prices = append(prices, p)
	}
	return prices, nil
}

// ParseTokenIDs decodes the CLOB token ids for the outcomes.
func (m *APIMarket) ParseTokenIDs() ([]string, error) {
	if m.ClobTokenIds == "" || m.ClobTokenIds == "null" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIds), &ids); err != nil {
		return nil, fmt.Errorf("polymarket: parse token ids: %w", err)
	}
	return ids, nil
}

// Candidate converts a gamma event into a selectable market. It returns
// (nil, nil) for events with no nested market and an error when a field
// that should decode does not. Events whose end date is missing or does
// not parse are dropped here so selection never sees them.
func Candidate(e *Event) (*market.Market, error) {
	if len(e.Markets) == 0 {
		return nil, nil
	}
	m := e.Markets[0]

	endRaw := e.EndDate
	if endRaw == "" {
		endRaw = m.EndDate
	}
	endDate, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return nil, nil
	}

	var startTime *time.Time
	startRaw := m.EventStartTime
	if startRaw == "" {
		startRaw = e.StartTime
	}
	if startRaw != "" {
		if t, err := time.Parse(time.RFC3339, startRaw); err == nil {
			startTime = &t
		}
	}

	outcomes, err := m.ParseOutcomes()
	if err != nil {
		return nil, err
	}
	tokenIDs, err := m.ParseTokenIDs()
	if err != nil {
		return nil, err
	}
	prices, err := m.ParseOutcomePrices()
	if err != nil {
		return nil, err
	}
	upID, downID, upPrice, downPrice := resolveUpDown(outcomes, tokenIDs, prices)

	question := e.Title
	if question == "" {
		question = m.Question
	}

	liquidity := parseDecimalString(m.Liquidity)
	if liquidity.IsZero() {
		liquidity = parseDecimalString(e.Liquidity)
	}
	liquidityF, _ := liquidity.Float64()
	volumeF, _ := parseDecimalString(m.Volume).Float64()

	return &market.Market{
		ID:          m.ID,
		Question:    question,
		Slug:        e.Slug,
		StartTime:   startTime,
		EndTime:     endDate,
		Liquidity:   liquidityF,
		Volume:      volumeF,
		UpTokenID:   upID,
		DownTokenID: downID,
		UpPrice:     upPrice,
		DownPrice:   downPrice,
		PriceToBeat: ExtractPriceToBeat(question + " " + e.Description + " " + m.Description),
		Active:      e.Active,
		Closed:      e.Closed,
	}, nil
}

// resolveUpDown maps the Up and Down outcomes onto their token ids and
// published prices, matching labels case-insensitively. Anything other
// than a plain binary Up/Down pair yields empty ids and nil prices.
func resolveUpDown(outcomes, tokenIDs []string, prices []decimal.Decimal) (upID, downID string, upPrice, downPrice *float64) {
	if len(outcomes) != 2 || len(tokenIDs) != 2 {
		return "", "", nil, nil
	}

	upIdx, downIdx := -1, -1
	for i, o := range outcomes {
		switch strings.ToLower(strings.TrimSpace(o)) {
		case "up":
			upIdx = i
		case "down":
			downIdx = i
		}
	}
	if upIdx < 0 || downIdx < 0 {
		return "", "", nil, nil
	}

	upID, downID = tokenIDs[upIdx], tokenIDs[downIdx]
	if len(prices) == 2 {
		u, _ := prices[upIdx].Float64()
		d, _ := prices[downIdx].Float64()
		upPrice, downPrice = &u, &d
	}
	return upID, downID, upPrice, downPrice
}

// ExtractPriceToBeat pulls the anchor price out of the market's question
// or description text. The venue writes it as "Price to beat: $90,385.67"
// or close variants; the dollar sign is optional. Zero means no price
// was found.
func ExtractPriceToBeat(text string) decimal.Decimal {
	text = strings.ToLower(text)

	keywords := []string{
		"price to beat:",
		"price to beat",
		"starting price:",
		"starting price",
		"reference price:",
		"reference price",
	}

	for _, kw := range keywords {
		idx := strings.Index(text, kw)
		if idx < 0 {
			continue
		}
		if price := parseFirstPrice(text[idx+len(kw):]); !price.IsZero() {
			return price
		}
	}

	return decimal.Zero
}

// parseFirstPrice extracts the first price-looking number from text,
// with or without a leading dollar sign. Commas are thousands
// separators and skipped.
func parseFirstPrice(text string) decimal.Decimal {
	start := 0
	if i := strings.Index(text, "$"); i >= 0 {
		start = i + 1
	}

	numStr := ""
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= '0' && c <= '9':
			numStr += string(c)
		case c == '.' && numStr != "":
			numStr += string(c)
		case c == ',' && numStr != "":
			// skip thousands separator
		case numStr != "":
			return parseDecimalString(numStr)
		}
	}
	return parseDecimalString(numStr)
}

func parseDecimalString(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
