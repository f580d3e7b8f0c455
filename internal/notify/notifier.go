package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/trader"
	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const eventBuffer = 128

type Notifier interface {
	Send(msg string) error
}

// Telegram sends notifications to a single chat.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("could not create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Send(msg string) error {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return nil
	}
	_, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg))
	return err
}

// Log writes notifications to the logger when no chat is configured.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log { return &Log{logger: logger.Named("notify")} }

func (l *Log) Send(msg string) error {
	l.logger.Info(msg)
	return nil
}

// EventSource is the subset of the controller the watcher needs.
type EventSource interface {
	Subscribe(buffer int) *trader.Subscription[trader.Event]
	Unsubscribe(sub *trader.Subscription[trader.Event])
}

// Watcher forwards terminal session outcomes to a Notifier.
type Watcher struct {
	source   EventSource
	notifier Notifier
	logger   *zap.Logger
}

func NewWatcher(source EventSource, notifier Notifier, logger *zap.Logger) *Watcher {
	return &Watcher{source: source, notifier: notifier, logger: logger.Named("watcher")}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	sub := w.source.Subscribe(eventBuffer)
	defer w.source.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			msg, notify := FormatEvent(ev)
			if !notify {
				continue
			}
			if err := w.notifier.Send(msg); err != nil {
				w.logger.Warn("Failed to send notification", zap.String("account_id", ev.AccountID), zap.Error(err))
			}
		}
	}
}

// FormatEvent renders terminal statuses. Progress and other transient
// states report false.
func FormatEvent(ev trader.Event) (string, bool) {
	var b strings.Builder
	switch st := ev.Status.(type) {
	case trader.Result:
		if st.Err == nil && st.Trade != nil {
			t := st.Trade
			fmt.Fprintf(&b, "✅ %s: bought %.8f %s @ %.4f, sold @ %.4f\n", ev.AccountID, t.Quantity, t.Asset.Symbol, t.BuyPrice, t.SellPrice)
			fmt.Fprintf(&b, "Profit %.2f (%.2f%%), %d trades left today", t.Profit, t.ProfitPercent, max(0, st.Session.RemainingTrades-1))
			return b.String(), true
		}
		prefix := "❗️"
		if st.Fatal {
			prefix = "🚨 manual reconciliation needed:"
		}
		fmt.Fprintf(&b, "%s %s: session %s failed (%s): %v", prefix, ev.AccountID, st.Session.ID, st.Reason(), st.Err)
		return b.String(), true
	case trader.Cancelled:
		fmt.Fprintf(&b, "⛔️ %s: session %s cancelled (%s)", ev.AccountID, st.Session.ID, st.Reason)
		return b.String(), true
	case trader.Rejected:
		fmt.Fprintf(&b, "📭 %s: session rejected (%s)", ev.AccountID, st.Reason())
		return b.String(), true
	default:
		return "", false
	}
}
