package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/indicators"
)

// FeedConfig tunes the spot feed.
type FeedConfig struct {
	Symbol        string
	WSBaseURL     string
	KlineInterval string
	KlineLimit    int
	KlineRefresh  time.Duration
	StaleAfter    time.Duration
}

// Feed streams live trades for one symbol over WebSocket and keeps a
// rolling set of OHLC bars from the REST API for the volatility math.
// When the stream goes quiet the REST ticker backfills the price, so
// consumers degrade to slightly older data instead of none.
type Feed struct {
	cfg  FeedConfig
	rest *gobinance.Client

	mu           sync.RWMutex
	conn         *websocket.Conn
	currentPrice decimal.Decimal
	lastUpdate   time.Time
	lastTrade    time.Time
	bars         []indicators.Bar
	barsAt       time.Time
	running      bool

	stopCh chan struct{}
}

// NewFeed creates a feed. Zero config fields fall back to BTCUSDT on
// the public endpoints.
func NewFeed(cfg FeedConfig) *Feed {
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = "1m"
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = 100
	}
	if cfg.KlineRefresh <= 0 {
		cfg.KlineRefresh = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Second
	}
	return &Feed{
		cfg:    cfg,
		rest:   gobinance.NewClient("", ""),
		stopCh: make(chan struct{}),
	}
}

// Start primes price and bars over REST, then launches the stream and
// kline loops. Upstream hiccups at startup are logged, not fatal.
func (f *Feed) Start() error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.refreshBars(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial kline fetch failed, continuing")
	}
	if err := f.fetchTicker(ctx, false); err != nil {
		log.Warn().Err(err).Msg("Initial ticker fetch failed, continuing")
	}

	go f.streamLoop()
	go f.klineLoop()

	log.Info().Str("symbol", f.cfg.Symbol).Msg("📈 Spot feed started")
	return nil
}

// Stop closes the stream and halts the loops.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	conn := f.conn
	f.mu.Unlock()

	close(f.stopCh)
	if conn != nil {
		conn.Close()
	}
}

// Price returns the latest spot price. ok is false until a price has
// arrived, or once both the stream and the ticker fallback have gone
// quiet for longer than StaleAfter.
func (f *Feed) Price() (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.currentPrice.IsZero() || time.Since(f.lastUpdate) > f.cfg.StaleAfter {
		return 0, false
	}
	v, _ := f.currentPrice.Float64()
	return v, true
}

// Bars returns a copy of the latest OHLC bars, oldest first.
func (f *Feed) Bars() []indicators.Bar {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]indicators.Bar, len(f.bars))
	copy(out, f.bars)
	return out
}

// LastUpdate returns when the price last changed, from either source.
func (f *Feed) LastUpdate() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastUpdate
}

// LastTrade returns the exchange timestamp of the last streamed trade.
func (f *Feed) LastTrade() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastTrade
}

func (f *Feed) isRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

func (f *Feed) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-f.stopCh:
		return false
	}
}

func (f *Feed) streamLoop() {
	for f.isRunning() {
		conn, err := f.dial()
		if err != nil {
			log.Error().Err(err).Msg("WebSocket connection failed")
			if !f.sleep(5 * time.Second) {
				return
			}
			continue
		}

		f.readMessages(conn)
		conn.Close()

		if f.isRunning() {
			log.Warn().Msg("WebSocket disconnected, reconnecting...")
			if !f.sleep(time.Second) {
				return
			}
		}
	}
}

func (f *Feed) dial() (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/%s@trade", f.cfg.WSBaseURL, strings.ToLower(f.cfg.Symbol))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: websocket dial: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	log.Info().Str("url", url).Msg("🔌 Trade stream connected")
	return conn, nil
}

func (f *Feed) readMessages(conn *websocket.Conn) {
	for f.isRunning() {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.isRunning() {
				log.Error().Err(err).Msg("WebSocket read error")
			}
			return
		}
		f.handleTrade(message)
	}
}

func (f *Feed) handleTrade(data []byte) {
	var msg struct {
		Event string `json:"e"`
		Price string `json:"p"`
		Time  int64  `json:"T"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Event != "trade" {
		return
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil || price.IsZero() {
		return
	}

	f.mu.Lock()
	f.currentPrice = price
	f.lastUpdate = time.Now()
	if msg.Time > 0 {
		f.lastTrade = time.UnixMilli(normalizeMs(msg.Time))
	}
	f.mu.Unlock()
}

func (f *Feed) klineLoop() {
	ticker := time.NewTicker(f.cfg.KlineRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := f.refreshBars(ctx); err != nil {
				log.Warn().Err(err).Msg("Kline refresh failed, keeping previous bars")
			}
			if time.Since(f.LastUpdate()) > f.cfg.StaleAfter {
				if err := f.fetchTicker(ctx, true); err != nil {
					log.Warn().Err(err).Msg("Ticker fallback failed")
				}
			}
			cancel()
		case <-f.stopCh:
			return
		}
	}
}

func (f *Feed) refreshBars(ctx context.Context) error {
	klines, err := f.rest.NewKlinesService().
		Symbol(f.cfg.Symbol).
		Interval(f.cfg.KlineInterval).
		Limit(f.cfg.KlineLimit).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: fetch klines: %w", err)
	}

	bars := toBars(klines)
	f.mu.Lock()
	f.bars = bars
	f.barsAt = time.Now()
	f.mu.Unlock()
	return nil
}

// fetchTicker seeds the price from the REST ticker. Unless force is set
// it only fills in a price the stream has not delivered yet.
func (f *Feed) fetchTicker(ctx context.Context, force bool) error {
	prices, err := f.rest.NewListPricesService().Symbol(f.cfg.Symbol).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: fetch ticker: %w", err)
	}
	if len(prices) == 0 {
		return fmt.Errorf("binance: empty ticker for %s", f.cfg.Symbol)
	}

	p, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return fmt.Errorf("binance: parse ticker price %q: %w", prices[0].Price, err)
	}

	f.mu.Lock()
	if force || f.currentPrice.IsZero() {
		f.currentPrice = p
		f.lastUpdate = time.Now()
	}
	f.mu.Unlock()
	return nil
}

// toBars converts REST klines into indicator bars. Fields that fail to
// parse become NaN so the indicator layer skips the bar instead of
// averaging garbage.
func toBars(klines []*gobinance.Kline) []indicators.Bar {
	bars := make([]indicators.Bar, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		bars = append(bars, indicators.Bar{
			OpenTimeMs: normalizeMs(k.OpenTime),
			Open:       parseFloat(k.Open),
			High:       parseFloat(k.High),
			Low:        parseFloat(k.Low),
			Close:      parseFloat(k.Close),
		})
	}
	return bars
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// normalizeMs coerces a unix timestamp that may be in seconds or
// milliseconds into milliseconds.
func normalizeMs(ts int64) int64 {
	if ts > 0 && ts < int64(1e12) {
		return ts * 1000
	}
	return ts
}
