package trader

import "github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"

// MomentumStrategy prefers assets whose price rose over the last 24h and
// falls back to any eligible asset when none did.
type MomentumStrategy struct{}

func (s *MomentumStrategy) Name() string {
	return "momentum"
}

func (s *MomentumStrategy) Select(assets []models.Asset, rng Rand) (models.Asset, error) {
	rising := make([]models.Asset, 0, len(assets))
	for _, a := range assets {
		if a.ChangePercent > 0 {
			rising = append(rising, a)
		}
	}
	if len(rising) > 0 {
		return pickUniform(rising, rng)
	}
	return pickUniform(assets, rng)
}
