package polymarket

import (
	"testing"
	"time"
)

func TestParseHelpers(t *testing.T) {
	m := APIMarket{
		Outcomes:      `["Up", "Down"]`,
		OutcomePrices: `["0.55", "0.45"]`,
		ClobTokenIds:  `["111", "222"]`,
	}

	outcomes, err := m.ParseOutcomes()
	if err != nil || len(outcomes) != 2 || outcomes[0] != "Up" {
		t.Fatalf("ParseOutcomes = %v, %v", outcomes, err)
	}

	prices, err := m.ParseOutcomePrices()
	if err != nil || len(prices) != 2 || prices[0].String() != "0.55" {
		t.Fatalf("ParseOutcomePrices = %v, %v", prices, err)
	}

	ids, err := m.ParseTokenIDs()
	if err != nil || len(ids) != 2 || ids[1] != "222" {
		t.Fatalf("ParseTokenIDs = %v, %v", ids, err)
	}
}

func TestParseHelpersMalformed(t *testing.T) {
	m := APIMarket{Outcomes: `not json`, OutcomePrices: `["abc"]`, ClobTokenIds: `{`}

	if _, err := m.ParseOutcomes(); err == nil {
		t.Error("malformed outcomes should error")
	}
	if _, err := m.ParseOutcomePrices(); err == nil {
		t.Error("non-numeric price should error")
	}
	if _, err := m.ParseTokenIDs(); err == nil {
		t.Error("malformed token ids should error")
	}

	empty := APIMarket{}
	if got, err := empty.ParseOutcomes(); err != nil || got != nil {
		t.Errorf("empty outcomes = %v, %v; want nil, nil", got, err)
	}
	nullField := APIMarket{OutcomePrices: "null"}
	if got, err := nullField.ParseOutcomePrices(); err != nil || got != nil {
		t.Errorf("null prices = %v, %v; want nil, nil", got, err)
	}
}

func TestResolveUpDownCaseInsensitive(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []string
		wantUp   string
		wantDown string
	}{
		{name: "canonical", outcomes: []string{"Up", "Down"}, wantUp: "111", wantDown: "222"},
		{name: "upper case", outcomes: []string{"UP", "DOWN"}, wantUp: "111", wantDown: "222"},
		{name: "lower case reversed", outcomes: []string{"down", "up"}, wantUp: "222", wantDown: "111"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upID, downID, _, _ := resolveUpDown(tt.outcomes, []string{"111", "222"}, nil)
			if upID != tt.wantUp || downID != tt.wantDown {
				t.Errorf("resolveUpDown = %q, %q; want %q, %q", upID, downID, tt.wantUp, tt.wantDown)
			}
		})
	}
}

func TestResolveUpDownNonBinary(t *testing.T) {
	upID, downID, upPrice, downPrice := resolveUpDown([]string{"Yes", "No"}, []string{"111", "222"}, nil)
	if upID != "" || downID != "" || upPrice != nil || downPrice != nil {
		t.Errorf("Yes/No outcomes should not resolve, got %q/%q", upID, downID)
	}

	upID, downID, _, _ = resolveUpDown([]string{"Up", "Down", "Flat"}, []string{"1", "2", "3"}, nil)
	if upID != "" || downID != "" {
		t.Error("three outcomes should not resolve")
	}
}

func TestExtractPriceToBeat(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "dollar with commas",
			text: "Bitcoin Up or Down. Price to beat: $90,385.67 as of noon.",
			want: "90385.67",
		},
		{
			name: "no dollar sign",
			text: "price to beat 64123.5",
			want: "64123.5",
		},
		{
			name: "starting price variant",
			text: "The starting price: $3,080.45 for this window.",
			want: "3080.45",
		},
		{
			name: "no keyword",
			text: "Bitcoin will close higher than $100,000",
			want: "0",
		},
		{
			name: "keyword but no number",
			text: "price to beat is unavailable",
			want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPriceToBeat(tt.text); got.String() != tt.want {
				t.Errorf("ExtractPriceToBeat = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCandidate(t *testing.T) {
	e := Event{
		ID:          "ev1",
		Title:       "Bitcoin Up or Down - 15m",
		Slug:        "btc-updown-15m-1767707100",
		Description: "Price to beat: $90,385.67",
		Active:      true,
		EndDate:     "2026-01-06T13:30:00Z",
		StartTime:   "2026-01-06T13:15:00Z",
		Markets: []APIMarket{{
			ID:            "m1",
			Question:      "Bitcoin Up or Down - 15m",
			Outcomes:      `["Up", "Down"]`,
			OutcomePrices: `["0.55", "0.45"]`,
			ClobTokenIds:  `["111", "222"]`,
			Volume:        "1500.5",
			Liquidity:     "12345.0",
		}},
	}

	got, err := Candidate(&e)
	if err != nil {
		t.Fatalf("Candidate: %v", err)
	}
	if got == nil {
		t.Fatal("Candidate = nil")
	}

	if got.Slug != "btc-updown-15m-1767707100" {
		t.Errorf("Slug = %q", got.Slug)
	}
	if got.UpTokenID != "111" || got.DownTokenID != "222" {
		t.Errorf("tokens = %q, %q", got.UpTokenID, got.DownTokenID)
	}
	if got.UpPrice == nil || *got.UpPrice != 0.55 {
		t.Errorf("UpPrice = %v, want 0.55", got.UpPrice)
	}
	if got.DownPrice == nil || *got.DownPrice != 0.45 {
		t.Errorf("DownPrice = %v, want 0.45", got.DownPrice)
	}
	if got.PriceToBeat.String() != "90385.67" {
		t.Errorf("PriceToBeat = %s", got.PriceToBeat)
	}
	if got.Liquidity != 12345.0 {
		t.Errorf("Liquidity = %v", got.Liquidity)
	}
	wantEnd := time.Date(2026, 1, 6, 13, 30, 0, 0, time.UTC)
	if !got.EndTime.Equal(wantEnd) {
		t.Errorf("EndTime = %v", got.EndTime)
	}
	if got.StartTime == nil || !got.StartTime.Equal(time.Date(2026, 1, 6, 13, 15, 0, 0, time.UTC)) {
		t.Errorf("StartTime = %v", got.StartTime)
	}
}

func TestCandidateDropsUnparseableEndDate(t *testing.T) {
	e := Event{
		Slug:    "btc-updown-15m-1",
		EndDate: "tomorrow-ish",
		Markets: []APIMarket{{ID: "m1", Outcomes: `["Up","Down"]`, ClobTokenIds: `["1","2"]`}},
	}

	got, err := Candidate(&e)
	if err != nil {
		t.Fatalf("Candidate: %v", err)
	}
	if got != nil {
		t.Errorf("candidate with unparseable end date should be dropped, got %+v", got)
	}
}

func TestCandidateWithoutPricesStillSelectable(t *testing.T) {
	e := Event{
		Slug:    "btc-updown-15m-2",
		EndDate: "2026-01-06T13:30:00Z",
		Markets: []APIMarket{{
			ID:           "m1",
			Outcomes:     `["Up","Down"]`,
			ClobTokenIds: `["111","222"]`,
		}},
	}

	got, err := Candidate(&e)
	if err != nil || got == nil {
		t.Fatalf("Candidate = %v, %v", got, err)
	}
	if got.UpPrice != nil || got.DownPrice != nil {
		t.Error("prices should be nil when the venue has not published them")
	}
	if !got.Binary() {
		t.Error("tokens should still resolve without prices")
	}
}

func TestCandidateNonBinaryOutcomes(t *testing.T) {
	e := Event{
		Slug:    "ethereum-yes-no",
		EndDate: "2026-01-06T13:30:00Z",
		Markets: []APIMarket{{
			ID:            "m1",
			Outcomes:      `["Yes","No"]`,
			OutcomePrices: `["0.5","0.5"]`,
			ClobTokenIds:  `["111","222"]`,
		}},
	}

	got, err := Candidate(&e)
	if err != nil || got == nil {
		t.Fatalf("Candidate = %v, %v", got, err)
	}
	if got.Binary() || got.UpPrice != nil || got.DownPrice != nil {
		t.Error("non Up/Down outcomes must yield no tokens and nil prices")
	}
}

func TestCandidateNoMarkets(t *testing.T) {
	got, err := Candidate(&Event{Slug: "empty"})
	if got != nil || err != nil {
		t.Errorf("event without markets = %v, %v; want nil, nil", got, err)
	}
}
