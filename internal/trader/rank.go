package trader

import (
	"errors"
	"fmt"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
)

// RankPolicy maps a balance to its rank tier.
type RankPolicy struct {
	tiers []models.RankTier
}

// NewRankPolicy validates that tiers are sorted ascending and contiguous.
// MaxBalance is exclusive and must equal the next tier's MinBalance, so every
// balance from the lowest MinBalance up falls in exactly one tier. Only the
// last tier may be unbounded.
func NewRankPolicy(tiers []models.RankTier) (*RankPolicy, error) {
	if len(tiers) == 0 {
		return nil, errors.New("rank table is empty")
	}
	for i, t := range tiers {
		if t.MaxTradesPerDay < 0 {
			return nil, fmt.Errorf("rank %q: max trades per day must not be negative", t.Label)
		}
		last := i == len(tiers)-1
		if t.MaxBalance == nil {
			if !last {
				return nil, fmt.Errorf("rank %q: only the top tier may be unbounded", t.Label)
			}
			continue
		}
		if *t.MaxBalance <= t.MinBalance {
			return nil, fmt.Errorf("rank %q: max balance %.2f not above min balance %.2f", t.Label, *t.MaxBalance, t.MinBalance)
		}
		if !last && *t.MaxBalance != tiers[i+1].MinBalance {
			return nil, fmt.Errorf("rank %q ends at %.2f but rank %q starts at %.2f",
				t.Label, *t.MaxBalance, tiers[i+1].Label, tiers[i+1].MinBalance)
		}
	}
	return &RankPolicy{tiers: append([]models.RankTier(nil), tiers...)}, nil
}

// TierFor returns the tier with the greatest MinBalance not above balance.
// Balances below every tier get the lowest tier.
func (p *RankPolicy) TierFor(balance float64) models.RankTier {
	for i := len(p.tiers) - 1; i >= 0; i-- {
		if balance >= p.tiers[i].MinBalance {
			return p.tiers[i]
		}
	}
	return p.tiers[0]
}

// Tiers returns a copy of the rank table.
func (p *RankPolicy) Tiers() []models.RankTier {
	return append([]models.RankTier(nil), p.tiers...)
}
