package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
)

// TradeCounter counts buy legs written for an account.
type TradeCounter interface {
	CountBuyTradesSince(ctx context.Context, accountID string, since time.Time) (int, error)
}

// QuotaTracker derives the remaining daily trades from the ledger.
// The day starts at midnight in loc; nothing is reset, the window is
// evaluated on every read.
type QuotaTracker struct {
	counter TradeCounter
	loc     *time.Location
	now     func() time.Time
}

// QuotaUsage is a point-in-time view of an account's quota.
type QuotaUsage struct {
	Tier          models.RankTier `json:"tier"`
	ExecutedToday int             `json:"executed_today"`
	Remaining     int             `json:"remaining"`
	ResetsAt      time.Time       `json:"resets_at"`
}

func NewQuotaTracker(counter TradeCounter, loc *time.Location) *QuotaTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaTracker{counter: counter, loc: loc, now: time.Now}
}

// StartOfDay returns midnight of t's day in the tracker's location.
func (q *QuotaTracker) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(q.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, q.loc)
}

// Usage counts today's trades. A counter failure fails closed: zero
// remaining and an error matching ErrQuotaExceeded.
func (q *QuotaTracker) Usage(ctx context.Context, accountID string, tier models.RankTier) (QuotaUsage, error) {
	start := q.StartOfDay(q.now())
	usage := QuotaUsage{Tier: tier, ResetsAt: start.AddDate(0, 0, 1)}

	executed, err := q.counter.CountBuyTradesSince(ctx, accountID, start)
	if err != nil {
		return usage, fmt.Errorf("%w: quota store unavailable: %w", ErrQuotaExceeded, err)
	}
	usage.ExecutedToday = executed
	usage.Remaining = min(max(0, tier.MaxTradesPerDay-executed), max(0, tier.MaxTradesPerDay))
	return usage, nil
}

// Remaining returns how many trades the account may still execute today.
func (q *QuotaTracker) Remaining(ctx context.Context, accountID string, tier models.RankTier) (int, error) {
	usage, err := q.Usage(ctx, accountID, tier)
	return usage.Remaining, err
}

// CanExecute reports whether at least one trade is left today.
func (q *QuotaTracker) CanExecute(ctx context.Context, accountID string, tier models.RankTier) (bool, error) {
	remaining, err := q.Remaining(ctx, accountID, tier)
	return remaining > 0, err
}
