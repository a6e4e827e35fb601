package polymarket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/market"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/window"
)

const (
	requestTimeout  = 10 * time.Second
	priceStaleAfter = 30 * time.Second
)

// ScannerConfig tunes the scanner's polling behavior.
type ScannerConfig struct {
	Asset          string
	Window         time.Duration
	MarketPoll     time.Duration
	PricePoll      time.Duration
	RequestsPerSec float64
	Burst          int
}

// Scanner keeps the current and next Up/Down windows for one asset in
// memory, refreshing the candidate list and the live odds on independent
// cadences. Consumers read the latest data; they never wait on the
// network.
type Scanner struct {
	gamma   *GammaClient
	clob    *ClobClient
	cfg     ScannerConfig
	limiter *rate.Limiter

	mu           sync.RWMutex
	candidates   []market.Market
	prices       map[string]tokenPrice
	backfillSlug string
	backfill     []HistoryPoint
	lastUpdate   time.Time
	running      bool

	stopCh chan struct{}
}

type tokenPrice struct {
	value float64
	at    time.Time
}

// NewScanner creates a scanner over the given clients. Zero config
// fields fall back to sane defaults.
func NewScanner(gamma *GammaClient, clob *ClobClient, cfg ScannerConfig) *Scanner {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.MarketPoll <= 0 {
		cfg.MarketPoll = 6 * time.Second
	}
	if cfg.PricePoll <= 0 {
		cfg.PricePoll = 2 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 8
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	return &Scanner{
		gamma:   gamma,
		clob:    clob,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		prices:  make(map[string]tokenPrice),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the polling loops.
func (s *Scanner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Info().
		Str("asset", s.cfg.Asset).
		Dur("window", s.cfg.Window).
		Msg("🔍 Market scanner starting")

	go s.marketLoop()
	go s.priceLoop()
}

// Stop halts the polling loops.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	close(s.stopCh)
}

func (s *Scanner) marketLoop() {
	s.refreshMarkets()

	ticker := time.NewTicker(s.cfg.MarketPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshMarkets()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scanner) priceLoop() {
	ticker := time.NewTicker(s.cfg.PricePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshPrices()
		case <-s.stopCh:
			return
		}
	}
}

// refreshMarkets fetches the current and the next window by slug and
// swaps in the parsed candidates. When every request fails the previous
// list is kept, so a flaky upstream degrades to stale data instead of an
// empty screen.
func (s *Scanner) refreshMarkets() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	now := time.Now()
	win := window.CurrentAt(now, s.cfg.Window)
	slugs := []string{
		WindowSlug(s.cfg.Asset, s.cfg.Window, win.StartSecond()),
		WindowSlug(s.cfg.Asset, s.cfg.Window, win.Next().StartSecond()),
	}

	cands := make([]market.Market, 0, len(slugs))
	failures := 0
	for _, slug := range slugs {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		events, err := s.gamma.EventsBySlug(ctx, slug)
		if err != nil {
			failures++
			log.Warn().Err(err).Str("slug", slug).Msg("⚠️ Window fetch failed")
			continue
		}
		for i := range events {
			cand, err := Candidate(&events[i])
			if err != nil {
				log.Warn().Err(err).Str("slug", slug).Msg("⚠️ Malformed window payload")
				continue
			}
			if cand == nil || cand.Closed {
				continue
			}
			cands = append(cands, *cand)
		}
	}
	if failures == len(slugs) {
		return
	}

	s.mu.Lock()
	s.candidates = cands
	s.lastUpdate = now
	keep := make(map[string]struct{}, len(cands)*2)
	for _, c := range cands {
		keep[c.UpTokenID] = struct{}{}
		keep[c.DownTokenID] = struct{}{}
	}
	for id := range s.prices {
		if _, ok := keep[id]; !ok {
			delete(s.prices, id)
		}
	}
	s.mu.Unlock()

	log.Debug().Int("candidates", len(cands)).Msg("🪟 Windows refreshed")

	s.ensureBackfill(ctx, market.Select(cands, now))
}

// refreshPrices polls CLOB midpoints for the selected market's tokens.
func (s *Scanner) refreshPrices() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	sel := market.Select(s.Candidates(), time.Now())
	if sel == nil || !sel.Binary() {
		return
	}

	for _, tokenID := range []string{sel.UpTokenID, sel.DownTokenID} {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		mid, err := s.clob.Midpoint(ctx, tokenID)
		if err != nil {
			log.Debug().Err(err).Str("token", tokenID).Msg("Midpoint fetch failed")
			continue
		}
		v, _ := mid.Float64()
		s.mu.Lock()
		s.prices[tokenID] = tokenPrice{value: v, at: time.Now()}
		s.mu.Unlock()
	}
}

// ensureBackfill fetches the prediction price history once per selected
// market, so a consumer resetting its chart has carry-forward data from
// before the process first saw the market.
func (s *Scanner) ensureBackfill(ctx context.Context, sel *market.Market) {
	if sel == nil || sel.UpTokenID == "" {
		return
	}
	s.mu.RLock()
	have := s.backfillSlug
	s.mu.RUnlock()
	if have == sel.Slug {
		return
	}

	start := time.Now().Add(-(s.cfg.Window + 5*time.Minute))
	if sel.StartTime != nil && sel.StartTime.Before(start) {
		start = *sel.StartTime
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	points, err := s.clob.PricesHistory(ctx, sel.UpTokenID, HistoryParams{StartTs: start.Unix(), Fidelity: 1})
	if err != nil {
		log.Warn().Err(err).Str("slug", sel.Slug).Msg("⚠️ Backfill fetch failed")
		return
	}

	s.mu.Lock()
	s.backfillSlug = sel.Slug
	s.backfill = points
	s.mu.Unlock()

	log.Info().Str("slug", sel.Slug).Int("points", len(points)).Msg("📥 Seeded prediction backfill")
}

// Candidates returns the latest parsed windows with any fresher CLOB
// midpoints overlaid on the published outcome prices.
func (s *Scanner) Candidates() []market.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]market.Market, len(s.candidates))
	copy(out, s.candidates)

	cutoff := time.Now().Add(-priceStaleAfter)
	for i := range out {
		if p, ok := s.prices[out[i].UpTokenID]; ok && p.at.After(cutoff) {
			v := p.value
			out[i].UpPrice = &v
		}
		if p, ok := s.prices[out[i].DownTokenID]; ok && p.at.After(cutoff) {
			v := p.value
			out[i].DownPrice = &v
		}
	}
	return out
}

// Backfill returns the cached prediction history and the slug it was
// fetched for.
func (s *Scanner) Backfill() (string, []HistoryPoint) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryPoint, len(s.backfill))
	copy(out, s.backfill)
	return s.backfillSlug, out
}

// LastUpdate returns when the candidate list last refreshed.
func (s *Scanner) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// WindowSlug builds the venue's slug for the window starting at
// startSec, e.g. "btc-updown-15m-1767707100".
func WindowSlug(asset string, d time.Duration, startSec int64) string {
	return fmt.Sprintf("%s-updown-%s-%d", strings.ToLower(asset), windowSuffix(d), startSec)
}

func windowSuffix(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}
