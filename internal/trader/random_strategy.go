package trader

import "github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"

// RandomStrategy picks uniformly among all eligible assets.
type RandomStrategy struct{}

func (s *RandomStrategy) Name() string {
	return "random"
}

func (s *RandomStrategy) Select(assets []models.Asset, rng Rand) (models.Asset, error) {
	return pickUniform(assets, rng)
}
