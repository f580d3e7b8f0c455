package models

// RankTier is a balance bracket granting a daily trade quota.
// MaxBalance is exclusive and nil for the unbounded top tier.
type RankTier struct {
	Rank            int      `mapstructure:"rank" json:"rank"`
	Label           string   `mapstructure:"label" json:"label"`
	MinBalance      float64  `mapstructure:"min_balance" json:"min_balance"`
	MaxBalance      *float64 `mapstructure:"max_balance" json:"max_balance,omitempty"`
	MaxTradesPerDay int      `mapstructure:"max_trades_per_day" json:"max_trades_per_day"`
}

// Unbounded reports whether the tier has no upper balance limit.
func (t RankTier) Unbounded() bool {
	return t.MaxBalance == nil
}

// Contains reports whether balance lies in [MinBalance, MaxBalance).
func (t RankTier) Contains(balance float64) bool {
	return balance >= t.MinBalance && (t.Unbounded() || balance < *t.MaxBalance)
}
