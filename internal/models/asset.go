package models

import (
	"fmt"
	"math"
)

// Asset is a read-only snapshot of a tradable coin and its price.
type Asset struct {
	ID            string  `mapstructure:"id" json:"id"`
	Symbol        string  `mapstructure:"symbol" json:"symbol"`
	CurrentPrice  float64 `mapstructure:"current_price" json:"current_price"`
	ChangePercent float64 `mapstructure:"change_percent" json:"change_percent"` // 24h price change
	IsStablecoin  bool    `mapstructure:"is_stablecoin" json:"is_stablecoin"`
}

// Validate checks the fields the engine depends on.
func (a Asset) Validate() error {
	if a.ID == "" || a.Symbol == "" {
		return fmt.Errorf("asset is missing id or symbol")
	}
	if math.IsNaN(a.CurrentPrice) || math.IsInf(a.CurrentPrice, 0) || a.CurrentPrice <= 0 {
		return fmt.Errorf("asset %s has invalid price %v", a.Symbol, a.CurrentPrice)
	}
	return nil
}
