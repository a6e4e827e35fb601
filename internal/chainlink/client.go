package chainlink

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Chainlink price feed constants on Polygon. The venue resolves its
// Up/Down markets against this feed, which makes it the authoritative
// source for the resolution price.
const (
	// BTCUSDFeedAddress is the BTC/USD aggregator on Polygon.
	BTCUSDFeedAddress = "0xc907E116054Ad103354f2D350FD2514433D57F6f"

	// PolygonRPC is the default public RPC endpoint.
	PolygonRPC = "https://polygon-rpc.com"

	latestRoundDataSelector = "0xfeaf968c" // latestRoundData()
	latestAnswerSelector    = "0x50d25bcd" // latestAnswer()
	decimalsSelector        = "0x313ce567" // decimals()
)

// feedAddresses maps asset slugs to their aggregators on Polygon. All
// publish 8 decimals, but decimals() is queried anyway.
var feedAddresses = map[string]string{
	"btc": BTCUSDFeedAddress,
	"eth": "0xF9680D99D6C9589e2a93a78A04A279e509205945",
	"sol": "0x10C8264C0935b3B9870013e057f330Ff3e9C56dC",
}

// FeedAddressForAsset returns the Polygon aggregator address for an
// asset slug, matched case-insensitively.
func FeedAddressForAsset(asset string) (string, bool) {
	addr, ok := feedAddresses[strings.ToLower(asset)]
	return addr, ok
}

// Config tunes the on-chain price reader.
type Config struct {
	RPCURL       string
	FeedAddress  string
	PollInterval time.Duration
	StaleAfter   time.Duration
}

// Client polls a Chainlink aggregator over JSON-RPC and holds the
// latest answer.
type Client struct {
	cfg  Config
	eth  *ethclient.Client
	feed common.Address

	mu           sync.RWMutex
	decimals     int32
	currentPrice decimal.Decimal
	updatedAt    time.Time
	lastFetch    time.Time
	lastRound    uint64
	running      bool

	stopCh chan struct{}
}

// NewClient creates a reader for the configured feed. Zero config
// fields fall back to the BTC/USD feed on the public Polygon RPC.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		cfg.RPCURL = PolygonRPC
	}
	if cfg.FeedAddress == "" {
		cfg.FeedAddress = BTCUSDFeedAddress
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}

	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chainlink: dial rpc: %w", err)
	}

	return &Client{
		cfg:      cfg,
		eth:      eth,
		feed:     common.HexToAddress(cfg.FeedAddress),
		decimals: 8, // BTC/USD uses 8; refreshed from the contract on Start
		stopCh:   make(chan struct{}),
	}, nil
}

// Start fetches the feed metadata and begins polling.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.fetchDecimals(ctx); err != nil {
		log.Warn().Err(err).Msg("Feed decimals fetch failed, assuming 8")
	}
	if err := c.fetchPrice(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial Chainlink fetch failed, continuing")
	}

	go c.pollLoop()

	log.Info().
		Str("feed", c.cfg.FeedAddress).
		Str("network", "Polygon").
		Msg("⛓️ Chainlink reader started")
	return nil
}

// Stop halts polling.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()
	close(c.stopCh)
}

// Price returns the latest answer. ok is false until an answer arrives
// or once polling has failed for longer than StaleAfter.
func (c *Client) Price() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentPrice.IsZero() || time.Since(c.lastFetch) > c.cfg.StaleAfter {
		return 0, false
	}
	v, _ := c.currentPrice.Float64()
	return v, true
}

// UpdatedAt returns the on-chain timestamp of the latest round.
func (c *Client) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

func (c *Client) pollLoop() {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
			if err := c.fetchPrice(ctx); err != nil {
				log.Debug().Err(err).Msg("Chainlink price fetch failed")
			}
			cancel()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) call(ctx context.Context, selector string) ([]byte, error) {
	msg := ethereum.CallMsg{To: &c.feed, Data: common.FromHex(selector)}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("chainlink: eth_call %s: %w", selector, err)
	}
	return out, nil
}

func (c *Client) fetchDecimals(ctx context.Context) error {
	out, err := c.call(ctx, decimalsSelector)
	if err != nil {
		return err
	}
	if len(out) < 32 {
		return fmt.Errorf("chainlink: short decimals response: %d bytes", len(out))
	}

	c.mu.Lock()
	c.decimals = int32(out[31])
	c.mu.Unlock()
	return nil
}

// fetchPrice reads latestRoundData, falling back to latestAnswer for
// RPCs that reject the richer call.
func (c *Client) fetchPrice(ctx context.Context) error {
	out, err := c.call(ctx, latestRoundDataSelector)
	if err != nil || len(out) < 160 {
		return c.fetchLatestAnswer(ctx)
	}

	// (uint80 roundId, int256 answer, uint256 startedAt,
	//  uint256 updatedAt, uint80 answeredInRound)
	roundID := new(big.Int).SetBytes(out[0:32]).Uint64()
	answer := new(big.Int).SetBytes(out[32:64])
	updated := new(big.Int).SetBytes(out[96:128]).Int64()

	c.mu.Lock()
	price := decimal.NewFromBigInt(answer, -c.decimals)
	newRound := roundID != c.lastRound
	c.currentPrice = price
	c.lastRound = roundID
	c.updatedAt = time.Unix(updated, 0)
	c.lastFetch = time.Now()
	c.mu.Unlock()

	if newRound {
		log.Debug().
			Str("price", price.StringFixed(2)).
			Uint64("round", roundID).
			Msg("⛓️ Chainlink round update")
	}
	return nil
}

func (c *Client) fetchLatestAnswer(ctx context.Context) error {
	out, err := c.call(ctx, latestAnswerSelector)
	if err != nil {
		return err
	}
	if len(out) < 32 {
		return fmt.Errorf("chainlink: short answer response: %d bytes", len(out))
	}

	answer := new(big.Int).SetBytes(out[len(out)-32:])

	c.mu.Lock()
	c.currentPrice = decimal.NewFromBigInt(answer, -c.decimals)
	c.lastFetch = time.Now()
	c.mu.Unlock()
	return nil
}
