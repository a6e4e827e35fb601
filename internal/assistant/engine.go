// Package assistant runs the read-only market view: one serialized tick
// loop that selects the active Up/Down window, captures its reference
// price, aligns spot against market odds, and publishes a consolidated
// snapshot.
package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/archive"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/cache"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/database"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/indicators"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/market"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/polymarket"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/series"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/window"
)

// MarketSource supplies Up/Down window candidates and, after a market
// change, a historical prediction backfill for the new window.
type MarketSource interface {
	Candidates() []market.Market
	Backfill() (string, []polymarket.HistoryPoint)
}

// PriceSource supplies the live spot price and recent OHLC bars.
type PriceSource interface {
	Price() (float64, bool)
	Bars() []indicators.Bar
}

// OracleSource supplies an alternative reference price feed.
type OracleSource interface {
	Price() (float64, bool)
}

// Notifier receives lifecycle announcements. Calls happen on the tick
// goroutine, so a slow send delays the next tick.
type Notifier interface {
	MarketChanged(question, slug string, endTime time.Time)
	WindowSettled(rec *database.WindowRecord)
}

// Config holds the engine's own knobs; upstream feeds carry theirs.
type Config struct {
	Asset             string
	WindowDuration    time.Duration
	TickInterval      time.Duration
	SampleSpacing     time.Duration
	HistoryCapacity   int
	ATRPeriod         int
	ATRMultiplier     float64
	ATRMode           string
	ReferenceSource   string
	SnapshotRetention time.Duration
}

// Deps wires the engine's collaborators. Markets and Spot are required;
// everything else is optional and skipped when nil.
type Deps struct {
	Markets  MarketSource
	Spot     PriceSource
	Oracle   OracleSource
	DB       *database.Database
	Cache    *cache.Cache
	Notifier Notifier
	Archiver *archive.Archiver
}

type Engine struct {
	cfg  Config
	deps Deps

	sessionID string
	tracker   *window.ReferenceTracker
	buffer    *series.Buffer

	mu          sync.RWMutex
	current     *Snapshot
	currentSlug string
	subscribers []chan *Snapshot
	ticks       uint64
	lastTick    time.Time
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = 15 * time.Minute
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.SampleSpacing < 0 {
		cfg.SampleSpacing = 0
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = 720
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.ATRMode == "" {
		cfg.ATRMode = "simple"
	}
	if cfg.SnapshotRetention <= 0 {
		cfg.SnapshotRetention = 24 * time.Hour
	}

	return &Engine{
		cfg:       cfg,
		deps:      deps,
		sessionID: uuid.NewString(),
		tracker:   window.NewReferenceTracker(),
		buffer:    series.NewBuffer(cfg.SampleSpacing.Milliseconds(), cfg.HistoryCapacity),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// SessionID identifies this engine run in persisted records.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Start restores any snapshot stored for the current window, then begins
// the tick loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.restore(time.Now())

	log.Info().
		Str("asset", e.cfg.Asset).
		Dur("window", e.cfg.WindowDuration).
		Dur("tick", e.cfg.TickInterval).
		Msg("🧠 Engine started")

	go e.run()
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	<-e.doneCh
	log.Info().Msg("🧠 Engine stopped")
}

func (e *Engine) run() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.tick(time.Now())

	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

// tick runs one full pipeline pass. It is never reentrant: ticks are
// serialized by the run loop.
func (e *Engine) tick(now time.Time) {
	win := window.CurrentAt(now, e.cfg.WindowDuration)

	candidates := e.deps.Markets.Candidates()
	sel := market.Select(candidates, now)

	e.handleRollover(sel, now)

	spotPrice, spotOK := e.deps.Spot.Price()

	if sel != nil {
		if ref, ok := e.referencePrice(spotPrice, spotOK); ok {
			if e.tracker.Capture(ref, sel.Slug, win.StartMs) {
				log.Info().
					Float64("reference", ref).
					Str("slug", sel.Slug).
					Int64("windowStart", win.StartMs).
					Msg("🎯 Reference price captured")
			}
		}
		if sel.UpPrice != nil {
			e.buffer.Note(series.PredictionSample{TimeMs: now.UnixMilli(), Probability: *sel.UpPrice})
		}
	}
	if spotOK {
		e.buffer.Observe(series.PriceSample{TimeMs: now.UnixMilli(), Price: spotPrice})
	}

	snap := e.assemble(now, win, sel, spotPrice, spotOK)

	e.mu.Lock()
	e.current = snap
	e.ticks++
	e.lastTick = now
	subs := e.subscribers
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}

	e.persist(snap)
}

// referencePrice picks the feed the tracker captures from.
func (e *Engine) referencePrice(spotPrice float64, spotOK bool) (float64, bool) {
	if e.cfg.ReferenceSource == "chainlink" && e.deps.Oracle != nil {
		return e.deps.Oracle.Price()
	}
	return spotPrice, spotOK
}

// handleRollover settles the finished window and re-seeds the aligned
// history whenever the tracked market changes, including to none.
func (e *Engine) handleRollover(sel *market.Market, now time.Time) {
	e.mu.RLock()
	prevSlug := e.currentSlug
	prev := e.current
	e.mu.RUnlock()

	newSlug := ""
	if sel != nil {
		newSlug = sel.Slug
	}
	if newSlug == prevSlug {
		return
	}

	if prevSlug != "" && prev != nil && prev.SelectedMarket != nil {
		e.settle(prev, now)
	}

	if sel == nil {
		e.tracker.Reset()
		e.buffer.Reset(nil)
		log.Info().Str("previous", prevSlug).Msg("🪟 No active window, history cleared")
	} else {
		var seed []series.PredictionSample
		if slug, points := e.deps.Markets.Backfill(); slug == sel.Slug {
			seed = make([]series.PredictionSample, 0, len(points))
			for _, p := range points {
				seed = append(seed, series.PredictionSample{TimeMs: p.TimeMs, Probability: p.Price})
			}
		}
		e.buffer.Reset(seed)
		log.Info().
			Str("slug", sel.Slug).
			Int("seed", len(seed)).
			Msg("🪟 Window changed, history reset")
		if e.deps.Notifier != nil {
			e.deps.Notifier.MarketChanged(sel.Question, sel.Slug, sel.EndTime)
		}
	}

	e.mu.Lock()
	e.currentSlug = newSlug
	e.mu.Unlock()
}

// settle records the outcome of the window that just rolled off screen:
// the final spot against the captured reference decides up, down or flat.
func (e *Engine) settle(prev *Snapshot, now time.Time) {
	final, ok := finalSpot(prev)

	outcome := database.OutcomeUnknown
	var refPrice, finalPrice decimal.Decimal
	if prev.ReferencePrice != nil && ok {
		refPrice = decimal.NewFromFloat(*prev.ReferencePrice)
		finalPrice = decimal.NewFromFloat(final)
		outcome = outcomeFor(refPrice, finalPrice)
	}

	rec := &database.WindowRecord{
		SessionID:      e.sessionID,
		Asset:          e.cfg.Asset,
		Slug:           prev.SelectedMarket.Slug,
		Question:       prev.SelectedMarket.Question,
		WindowStart:    prev.Window.StartMs,
		WindowEnd:      prev.Window.EndMs,
		ReferencePrice: refPrice,
		FinalPrice:     finalPrice,
		Outcome:        outcome,
		Points:         len(prev.AlignedHistory),
	}
	if prev.SelectedMarket.UpPrice != nil {
		rec.FinalUpPrice = decimal.NewFromFloat(*prev.SelectedMarket.UpPrice)
	}
	if prev.SelectedMarket.DownPrice != nil {
		rec.FinalDownPrice = decimal.NewFromFloat(*prev.SelectedMarket.DownPrice)
	}

	log.Info().
		Str("slug", rec.Slug).
		Str("outcome", outcome).
		Str("reference", refPrice.StringFixed(2)).
		Str("final", finalPrice.StringFixed(2)).
		Int("points", rec.Points).
		Msg("🏁 Window settled")

	if e.deps.DB != nil {
		if err := e.deps.DB.SaveWindow(rec); err != nil {
			log.Warn().Err(err).Str("slug", rec.Slug).Msg("⚠️ Failed to save window record")
		}
		cutoff := now.Add(-e.cfg.SnapshotRetention).UnixMilli()
		if err := e.deps.DB.PruneSnapshots(e.cfg.Asset, cutoff); err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to prune snapshots")
		}
	}
	if e.deps.Notifier != nil {
		e.deps.Notifier.WindowSettled(rec)
	}
	if e.deps.Archiver != nil {
		if payload, err := prev.Encode(); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := e.deps.Archiver.ArchiveWindow(ctx, e.cfg.Asset, rec.Slug, rec.WindowStart, payload); err != nil {
				log.Warn().Err(err).Str("slug", rec.Slug).Msg("⚠️ Failed to archive window")
			}
			cancel()
		}
	}
}

// outcomeFor maps final spot against the reference price.
func outcomeFor(reference, final decimal.Decimal) string {
	switch {
	case final.GreaterThan(reference):
		return database.OutcomeUp
	case final.LessThan(reference):
		return database.OutcomeDown
	default:
		return database.OutcomeFlat
	}
}

// finalSpot is the last spot print of the closed window.
func finalSpot(prev *Snapshot) (float64, bool) {
	if prev.SpotPrice != nil {
		return *prev.SpotPrice, true
	}
	if n := len(prev.AlignedHistory); n > 0 {
		return prev.AlignedHistory[n-1].SpotPrice, true
	}
	return 0, false
}

// assemble builds the consolidated snapshot for this tick.
func (e *Engine) assemble(now time.Time, win window.Window, sel *market.Market, spotPrice float64, spotOK bool) *Snapshot {
	snap := &Snapshot{
		Timestamp:      now.UnixMilli(),
		Asset:          e.cfg.Asset,
		AlignedHistory: e.buffer.Points(),
		Window:         WindowInfo{StartMs: win.StartMs, EndMs: win.EndMs},
	}
	if snap.AlignedHistory == nil {
		snap.AlignedHistory = []series.AlignedPoint{}
	}
	if spotOK {
		snap.SpotPrice = &spotPrice
	}

	// The tracker may still hold the previous window's anchor when no
	// capture succeeded this tick; only a matching anchor counts.
	var reference *float64
	if sel != nil {
		if id, ws, ok := e.tracker.Anchor(); ok && id == sel.Slug && ws == win.StartMs {
			if v, ok := e.tracker.Value(); ok {
				reference = &v
			}
		}
	}
	snap.ReferencePrice = reference

	bars := e.deps.Spot.Bars()
	var atrValue float64
	var atrOK bool
	if e.cfg.ATRMode == "wilder" {
		atrValue, atrOK = indicators.ATRWilder(bars, e.cfg.ATRPeriod)
	} else {
		atrValue, atrOK = indicators.ATR(bars, e.cfg.ATRPeriod)
	}
	if atrOK {
		snap.ATR = &atrValue
		if reference != nil {
			upper, lower := indicators.Bands(*reference, atrValue, e.cfg.ATRMultiplier)
			snap.ATRBands = &Bands{Upper: upper, Lower: lower}
		}
	}

	if sel != nil {
		sm := &SelectedMarket{
			Question:  sel.Question,
			Slug:      sel.Slug,
			EndDate:   sel.EndTime.UTC().Format(time.RFC3339),
			UpPrice:   sel.UpPrice,
			DownPrice: sel.DownPrice,
			Liquidity: sel.Liquidity,
		}

		// The market's own end beats the clock-derived one when present.
		endMs := win.EndMs
		if !sel.EndTime.IsZero() {
			endMs = sel.EndTime.UnixMilli()
		}
		sm.TimeLeftMinutes = window.RemainingMinutes(now.UnixMilli(), endMs)

		if sel.HasPriceToBeat() {
			v, _ := sel.PriceToBeat.Float64()
			sm.PriceToBeat = &v
		} else if reference != nil {
			sm.PriceToBeat = reference
		}

		snap.SelectedMarket = sm
	}

	return snap
}

// persist stores the snapshot for restart continuity. Failures only log.
func (e *Engine) persist(snap *Snapshot) {
	if e.deps.DB == nil && e.deps.Cache == nil {
		return
	}

	payload, err := snap.Encode()
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Failed to encode snapshot")
		return
	}

	if e.deps.DB != nil {
		rec := &database.SnapshotRecord{
			Asset:       e.cfg.Asset,
			WindowStart: snap.Window.StartMs,
			SessionID:   e.sessionID,
			Payload:     string(payload),
		}
		if err := e.deps.DB.SaveSnapshot(rec); err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to save snapshot")
		}
	}

	if e.deps.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		ttl := 4 * e.cfg.WindowDuration
		if err := e.deps.Cache.PutSnapshot(ctx, e.cfg.Asset, snap.Window.StartMs, payload, ttl); err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to cache snapshot")
		}
		cancel()
	}
}

// restore resumes the current window from a stored snapshot, so a quick
// restart keeps its reference price and aligned history. Snapshots from
// earlier windows are ignored.
func (e *Engine) restore(now time.Time) {
	payload := e.loadStored()
	if payload == nil {
		return
	}

	snap, err := DecodeSnapshot(payload)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Stored snapshot unreadable, starting cold")
		return
	}

	win := window.CurrentAt(now, e.cfg.WindowDuration)
	if snap.Window.StartMs != win.StartMs || snap.SelectedMarket == nil {
		log.Debug().
			Int64("stored", snap.Window.StartMs).
			Int64("current", win.StartMs).
			Msg("Stored snapshot is from another window, starting cold")
		return
	}

	e.buffer.Load(snap.AlignedHistory)
	if snap.ReferencePrice != nil {
		e.tracker.Capture(*snap.ReferencePrice, snap.SelectedMarket.Slug, snap.Window.StartMs)
	}

	e.mu.Lock()
	e.current = snap
	e.currentSlug = snap.SelectedMarket.Slug
	e.mu.Unlock()

	log.Info().
		Str("slug", snap.SelectedMarket.Slug).
		Int("points", len(snap.AlignedHistory)).
		Msg("🔁 Resumed window from stored snapshot")
}

func (e *Engine) loadStored() []byte {
	if e.deps.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		payload, err := e.deps.Cache.LatestSnapshot(ctx, e.cfg.Asset)
		cancel()
		if err == nil {
			return payload
		}
		if err != cache.ErrNotFound {
			log.Warn().Err(err).Msg("⚠️ Cache read failed, trying database")
		}
	}
	if e.deps.DB != nil {
		rec, err := e.deps.DB.LatestSnapshot(e.cfg.Asset)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Snapshot lookup failed")
			return nil
		}
		if rec != nil {
			return []byte(rec.Payload)
		}
	}
	return nil
}

// Snapshot returns the latest published snapshot, or nil before the
// first tick. Snapshots are immutable once published.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Subscribe returns a channel that receives every published snapshot.
// Sends never block the tick loop: a receiver that falls behind misses
// snapshots instead of stalling the engine.
func (e *Engine) Subscribe() <-chan *Snapshot {
	ch := make(chan *Snapshot, 16)
	e.mu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.mu.Unlock()
	return ch
}

// Health describes the engine's liveness for the HTTP API.
type Health struct {
	Running     bool   `json:"running"`
	SessionID   string `json:"sessionId"`
	Asset       string `json:"asset"`
	Ticks       uint64 `json:"ticks"`
	LastTickMs  int64  `json:"lastTickMs"`
	CurrentSlug string `json:"currentSlug,omitempty"`
}

func (e *Engine) Health() Health {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h := Health{
		Running:     e.running,
		SessionID:   e.sessionID,
		Asset:       e.cfg.Asset,
		Ticks:       e.ticks,
		CurrentSlug: e.currentSlug,
	}
	if !e.lastTick.IsZero() {
		h.LastTickMs = e.lastTick.UnixMilli()
	}
	return h
}
