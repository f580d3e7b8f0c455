package market

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"go.uber.org/zap"
)

// StablecoinSet is a case-insensitive set of symbols excluded from trading.
type StablecoinSet map[string]struct{}

// NewStablecoinSet builds the exclusion set.
func NewStablecoinSet(symbols []string) StablecoinSet {
	set := make(StablecoinSet, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return set
}

// Contains reports whether symbol is a stablecoin.
func (s StablecoinSet) Contains(symbol string) bool {
	_, ok := s[strings.ToUpper(symbol)]
	return ok
}

// Filter drops stablecoins and assets that fail validation.
func (s StablecoinSet) Filter(assets []models.Asset) []models.Asset {
	out := make([]models.Asset, 0, len(assets))
	for _, a := range assets {
		if a.IsStablecoin || s.Contains(a.Symbol) {
			continue
		}
		if a.Validate() != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Catalog turns live 24h tickers into tradable assets.
type Catalog struct {
	client      RestClientInterface
	quoteAsset  string
	maxAssets   int
	stablecoins StablecoinSet
	logger      *zap.Logger
}

// NewCatalog creates a catalog for pairs quoted in quoteAsset.
func NewCatalog(client RestClientInterface, quoteAsset string, maxAssets int, stablecoins StablecoinSet, logger *zap.Logger) *Catalog {
	return &Catalog{
		client:      client,
		quoteAsset:  strings.ToUpper(quoteAsset),
		maxAssets:   maxAssets,
		stablecoins: stablecoins,
		logger:      logger.Named("catalog"),
	}
}

type rankedAsset struct {
	asset       models.Asset
	quoteVolume float64
}

// ListTradableAssets returns non-stablecoin assets ordered by quote volume.
func (c *Catalog) ListTradableAssets(ctx context.Context) ([]models.Asset, error) {
	tickers, err := c.client.Get24hTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list tradable assets: %w", err)
	}

	ranked := make([]rankedAsset, 0, len(tickers))
	for _, t := range tickers {
		base, ok := strings.CutSuffix(t.Symbol, c.quoteAsset)
		if !ok || base == "" {
			continue
		}
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil {
			c.logger.Debug("Skipping ticker with unparsable price", zap.String("symbol", t.Symbol), zap.String("price", t.LastPrice))
			continue
		}
		change, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
		volume, _ := strconv.ParseFloat(t.QuoteVolume, 64)

		asset := models.Asset{
			ID:            strings.ToLower(base),
			Symbol:        base,
			CurrentPrice:  price,
			ChangePercent: change,
			IsStablecoin:  c.stablecoins.Contains(base),
		}
		if err := asset.Validate(); err != nil {
			c.logger.Debug("Skipping invalid ticker", zap.String("symbol", t.Symbol), zap.Error(err))
			continue
		}
		if asset.IsStablecoin {
			continue
		}
		ranked = append(ranked, rankedAsset{asset: asset, quoteVolume: volume})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].quoteVolume > ranked[j].quoteVolume })
	if c.maxAssets > 0 && len(ranked) > c.maxAssets {
		ranked = ranked[:c.maxAssets]
	}

	assets := make([]models.Asset, len(ranked))
	for i, r := range ranked {
		assets[i] = r.asset
	}
	c.logger.Debug("Loaded tradable assets", zap.Int("count", len(assets)), zap.Int("tickers", len(tickers)))
	return assets, nil
}

// StaticCatalog serves a fixed asset list, used offline and in tests.
type StaticCatalog struct {
	assets      []models.Asset
	stablecoins StablecoinSet
}

// NewStaticCatalog copies assets and marks stablecoins.
func NewStaticCatalog(assets []models.Asset, stablecoins StablecoinSet) *StaticCatalog {
	cp := make([]models.Asset, len(assets))
	for i, a := range assets {
		a.IsStablecoin = a.IsStablecoin || stablecoins.Contains(a.Symbol)
		cp[i] = a
	}
	return &StaticCatalog{assets: cp, stablecoins: stablecoins}
}

// ListTradableAssets returns the configured assets without stablecoins.
func (c *StaticCatalog) ListTradableAssets(ctx context.Context) ([]models.Asset, error) {
	return c.stablecoins.Filter(c.assets), nil
}
