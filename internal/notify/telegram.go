// Package notify pushes one-way Telegram messages for lifecycle events:
// startup, window rollover, and settled outcomes. It never polls for
// updates or handles commands.
package notify

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/database"
)

type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func New(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: create Telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram notifier connected")

	return &Notifier{api: api, chatID: chatID}, nil
}

// Startup announces that the assistant is watching an asset.
func (n *Notifier) Startup(asset string, window time.Duration) {
	text := fmt.Sprintf(`🟢 *Assistant Online*

Watching %s Up/Down %s windows.`, strings.ToUpper(asset), window)

	n.send(text)
}

// MarketChanged announces the window the assistant switched to.
func (n *Notifier) MarketChanged(question, slug string, endTime time.Time) {
	text := fmt.Sprintf(`🪟 *New Window*

%s
Slug: `+"`%s`"+`
Ends: %s`, escapeMarkdown(question), slug, endTime.UTC().Format("15:04:05 MST"))

	n.send(text)
}

// WindowSettled reports the outcome recorded for a finished window.
func (n *Notifier) WindowSettled(rec *database.WindowRecord) {
	emoji := "❔"
	switch rec.Outcome {
	case database.OutcomeUp:
		emoji = "📈"
	case database.OutcomeDown:
		emoji = "📉"
	case database.OutcomeFlat:
		emoji = "➖"
	}

	text := fmt.Sprintf(`%s *Window Settled: %s*

%s
Reference: $%s
Final: $%s
Samples: %d`,
		emoji, strings.ToUpper(rec.Outcome),
		escapeMarkdown(rec.Question),
		rec.ReferencePrice.StringFixed(2),
		rec.FinalPrice.StringFixed(2),
		rec.Points)

	n.send(text)
}

// Shutdown announces a clean stop.
func (n *Notifier) Shutdown() {
	n.send("🔴 *Assistant Offline*")
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("⚠️ Telegram send failed")
	}
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
