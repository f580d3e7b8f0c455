package trader

import (
	"testing"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRand replays fixed values; it repeats the last one when exhausted.
type scriptedRand struct {
	floats []float64
	ints   []int
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	if len(r.floats) > 1 {
		r.floats = r.floats[1:]
	}
	return v
}

func (r *scriptedRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	if len(r.ints) > 1 {
		r.ints = r.ints[1:]
	}
	return v % n
}

var testAssets = []models.Asset{
	{ID: "btc", Symbol: "BTC", CurrentPrice: 60000, ChangePercent: -2},
	{ID: "eth", Symbol: "ETH", CurrentPrice: 3000, ChangePercent: 1.5},
	{ID: "sol", Symbol: "SOL", CurrentPrice: 150, ChangePercent: 4},
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("")
	require.NoError(t, err)
	assert.Equal(t, "momentum", s.Name())

	s, err = NewStrategy("random")
	require.NoError(t, err)
	assert.Equal(t, "random", s.Name())

	_, err = NewStrategy("martingale")
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestMomentumStrategy_PrefersRisingAssets(t *testing.T) {
	s := &MomentumStrategy{}

	for i := 0; i < 2; i++ {
		asset, err := s.Select(testAssets, &scriptedRand{ints: []int{i}})
		require.NoError(t, err)
		assert.Positive(t, asset.ChangePercent)
	}
}

func TestMomentumStrategy_FallsBackToAll(t *testing.T) {
	falling := []models.Asset{
		{ID: "btc", Symbol: "BTC", CurrentPrice: 60000, ChangePercent: -2},
		{ID: "eth", Symbol: "ETH", CurrentPrice: 3000, ChangePercent: 0},
	}

	asset, err := (&MomentumStrategy{}).Select(falling, &scriptedRand{ints: []int{1}})

	require.NoError(t, err)
	assert.Equal(t, "ETH", asset.Symbol)
}

func TestRandomStrategy_Select(t *testing.T) {
	s := &RandomStrategy{}

	asset, err := s.Select(testAssets, &scriptedRand{ints: []int{0}})
	require.NoError(t, err)
	assert.Equal(t, "BTC", asset.Symbol)

	_, err = s.Select(nil, NewRand(1))
	assert.ErrorIs(t, err, ErrNoEligibleAsset)
}

func TestRandomStrategy_AlwaysPicksFromInput(t *testing.T) {
	s := &RandomStrategy{}
	rng := NewRand(42)

	for i := 0; i < 100; i++ {
		asset, err := s.Select(testAssets, rng)
		require.NoError(t, err)
		assert.Contains(t, testAssets, asset)
	}
}
