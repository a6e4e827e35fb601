// Command probe-market is a CLI tool for inspecting the Up/Down windows
// the assistant would track: it derives window slugs for the current
// clock, queries the venue, and prints what the selector would pick.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/market"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/polymarket"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/window"
)

func main() {
	asset := flag.String("asset", "btc", "Asset slug prefix (btc, eth, ...)")
	windowDur := flag.Duration("window", 15*time.Minute, "Window duration")
	count := flag.Int("count", 2, "Number of consecutive windows to probe")
	at := flag.String("at", "", "Probe at this RFC3339 time instead of now")
	gammaURL := flag.String("gamma", polymarket.DefaultGammaURL, "Gamma API base URL")
	clobURL := flag.String("clob", polymarket.DefaultClobURL, "CLOB API base URL")
	withPrices := flag.Bool("prices", false, "Fetch live midpoints for each market")
	withHistory := flag.Bool("history", false, "Fetch prediction history for the selected market")
	output := flag.String("output", "table", "Output format: table or json")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout")

	flag.Parse()

	now := time.Now()
	if *at != "" {
		parsed, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: bad -at value: %v\n", err)
			os.Exit(1)
		}
		now = parsed
	}

	httpClient := &http.Client{Timeout: *timeout}
	gamma := polymarket.NewGammaClient(httpClient).WithBaseURL(*gammaURL)
	clob := polymarket.NewClobClient(httpClient).WithBaseURL(*clobURL)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	win := window.CurrentAt(now, *windowDur)
	candidates := make([]market.Market, 0, *count)

	for i := 0; i < *count; i++ {
		startSec := win.StartSecond() + int64(i)*int64(windowDur.Seconds())
		slug := polymarket.WindowSlug(*asset, *windowDur, startSec)

		events, err := gamma.EventsBySlug(ctx, slug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", slug, err)
			os.Exit(1)
		}
		if len(events) == 0 {
			fmt.Fprintf(os.Stderr, "No event for %s\n", slug)
			continue
		}

		for j := range events {
			cand, err := polymarket.Candidate(&events[j])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", events[j].Slug, err)
				continue
			}
			if cand == nil {
				continue
			}
			if *withPrices && cand.Binary() {
				if mid, err := clob.Midpoint(ctx, cand.UpTokenID); err == nil {
					v, _ := mid.Float64()
					cand.UpPrice = &v
				}
				if mid, err := clob.Midpoint(ctx, cand.DownTokenID); err == nil {
					v, _ := mid.Float64()
					cand.DownPrice = &v
				}
			}
			candidates = append(candidates, *cand)
		}
	}

	if *output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(candidates)
	} else {
		printCandidates(candidates, now)
	}

	sel := market.Select(candidates, now)
	if sel == nil {
		fmt.Println("\nSelected: none (no live or upcoming window)")
		return
	}
	fmt.Printf("\nSelected: %s (ends %s, %.1f min left)\n",
		sel.Slug, sel.EndTime.UTC().Format("15:04:05"),
		window.RemainingMinutes(now.UnixMilli(), sel.EndTime.UnixMilli()))

	if *withHistory && sel.Binary() {
		points, err := clob.PricesHistory(ctx, sel.UpTokenID, polymarket.HistoryParams{
			StartTs:  now.Add(-*windowDur).Unix(),
			Fidelity: 1,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: history: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("History: %d points", len(points))
		if len(points) > 0 {
			first, last := points[0], points[len(points)-1]
			fmt.Printf(" (%.3f @ %s ... %.3f @ %s)",
				first.Price, time.UnixMilli(first.TimeMs).UTC().Format("15:04:05"),
				last.Price, time.UnixMilli(last.TimeMs).UTC().Format("15:04:05"))
		}
		fmt.Println()
	}
}

func printCandidates(candidates []market.Market, now time.Time) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tQUESTION\tSTATE\tENDS(UTC)\tUP\tDOWN\tLIQUIDITY\tPRICE TO BEAT")
	for i := range candidates {
		c := &candidates[i]

		state := "ended"
		switch {
		case c.Live(now):
			state = "live"
		case c.Upcoming(now):
			state = "upcoming"
		}

		ptb := "-"
		if c.HasPriceToBeat() {
			ptb = c.PriceToBeat.StringFixed(2)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.0f\t%s\n",
			c.Slug, truncate(c.Question, 40), state,
			c.EndTime.UTC().Format("15:04:05"),
			fmtPrice(c.UpPrice), fmtPrice(c.DownPrice),
			c.Liquidity, ptb)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d candidates\n", len(candidates))
}

func fmtPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *p)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
