package trader

import (
	"fmt"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
)

// Strategy picks the asset a session analyses and trades. The choice is
// made once when the session starts and held until it ends.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Select picks one asset from a non-empty, stablecoin-free list.
	Select(assets []models.Asset, rng Rand) (models.Asset, error)
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "momentum", "":
		return &MomentumStrategy{}, nil
	case "random":
		return &RandomStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func pickUniform(assets []models.Asset, rng Rand) (models.Asset, error) {
	if len(assets) == 0 {
		return models.Asset{}, ErrNoEligibleAsset
	}
	return assets[rng.Intn(len(assets))], nil
}
