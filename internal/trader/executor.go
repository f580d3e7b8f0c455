package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/trace"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// ExecutorConfig bounds the synthetic trade economics.
type ExecutorConfig struct {
	ProfitMinPercent float64
	ProfitMaxPercent float64
	SpreadMin        float64
	SpreadMax        float64
	SafetyBuffer     float64
	Timeout          time.Duration
}

// TradeRequest asks for one buy/sell pair. A zero Amount trades the whole
// balance minus the safety buffer.
type TradeRequest struct {
	AccountID   string
	SessionID   string
	Asset       models.Asset
	Amount      float64
	StrategyTag string
}

// TradeResult describes a written ledger pair.
type TradeResult struct {
	PairID        string       `json:"pair_id"`
	Asset         models.Asset `json:"asset"`
	Quantity      float64      `json:"quantity"`
	BuyPrice      float64      `json:"buy_price"`
	SellPrice     float64      `json:"sell_price"`
	Profit        float64      `json:"profit"`
	ProfitPercent float64      `json:"profit_percent"`
	TradeAmount   float64      `json:"trade_amount"`
	SellAmount    float64      `json:"sell_amount"`
	BuyRecordID   uint         `json:"buy_record_id"`
	SellRecordID  uint         `json:"sell_record_id"`
	ExecutedAt    time.Time    `json:"executed_at"`
}

// Executor computes a profitable-by-construction trade and records it.
type Executor struct {
	ledger Ledger
	cfg    ExecutorConfig
	rng    Rand
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewExecutor(ledger Ledger, cfg ExecutorConfig, rng Rand, logger *zap.Logger) *Executor {
	return &Executor{
		ledger: ledger,
		cfg:    cfg,
		rng:    rng,
		logger: logger.Named("executor"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// tradeQuote holds the economics before anything is written.
type tradeQuote struct {
	quantity      float64
	buyPrice      float64
	sellPrice     float64
	profit        float64
	profitPercent float64
	tradeAmount   float64
	sellAmount    float64
}

// quote prices a trade of amount at price. buyPrice is always below price.
func (e *Executor) quote(price, amount float64) (tradeQuote, error) {
	profitPercent := decimal.NewFromFloat(uniform(e.rng, e.cfg.ProfitMinPercent, e.cfg.ProfitMaxPercent)).Round(2)
	profitPercent = decimal.Max(profitPercent, decimal.NewFromFloat(e.cfg.ProfitMinPercent))
	profitPercent = decimal.Min(profitPercent, decimal.NewFromFloat(e.cfg.ProfitMaxPercent))

	spread := uniform(e.rng, e.cfg.SpreadMin, e.cfg.SpreadMax)
	buyPrice := price * (1 - spread)
	if buyPrice <= 0 || buyPrice >= price {
		return tradeQuote{}, fmt.Errorf("%w: degenerate spread %v for price %v", ErrNoEligibleAsset, spread, price)
	}

	amountD := decimal.NewFromFloat(amount)
	quantity := amountD.Div(decimal.NewFromFloat(buyPrice)).Truncate(8)
	if !quantity.IsPositive() {
		return tradeQuote{}, fmt.Errorf("%w: %.2f buys no %v units", ErrInsufficientBalance, amount, price)
	}
	profit := amountD.Mul(profitPercent).Div(hundred).Round(2)

	return tradeQuote{
		quantity:      quantity.InexactFloat64(),
		buyPrice:      buyPrice,
		sellPrice:     price,
		profit:        profit.InexactFloat64(),
		profitPercent: profitPercent.InexactFloat64(),
		tradeAmount:   amount,
		sellAmount:    amountD.Add(profit).InexactFloat64(),
	}, nil
}

// tradeAmount resolves the amount to trade against the current balance.
func (e *Executor) tradeAmount(ctx context.Context, req TradeRequest) (float64, error) {
	balance, err := e.ledger.GetBalance(ctx, req.AccountID)
	if err != nil {
		return 0, fmt.Errorf("could not read balance: %w", err)
	}
	return ResolveTradeAmount(balance, req.Amount, e.cfg.SafetyBuffer)
}

// ResolveTradeAmount applies the default-amount and overdraw rules.
// Amounts are floored to cents.
func ResolveTradeAmount(balance, requested, safetyBuffer float64) (float64, error) {
	if requested < 0 {
		return 0, fmt.Errorf("%w: negative amount %.2f", ErrInsufficientBalance, requested)
	}
	if requested > balance {
		return 0, fmt.Errorf("%w: requested %.2f exceeds balance %.2f", ErrInsufficientBalance, requested, balance)
	}
	amount := decimal.NewFromFloat(requested)
	if requested == 0 {
		amount = decimal.NewFromFloat(balance).Sub(decimal.NewFromFloat(safetyBuffer))
	}
	amount = amount.Truncate(2)
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: balance %.2f", ErrInsufficientBalance, balance)
	}
	return amount.InexactFloat64(), nil
}

// Execute writes the buy leg, then the sell leg. The writes run under the
// executor's own timeout and are not interrupted by cancelling ctx.
func (e *Executor) Execute(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	ctx, span := trace.StartSpan(ctx, "trader.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("account_id", req.AccountID),
		attribute.String("asset", req.Asset.Symbol),
	)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Timeout)
	defer cancel()

	result, err := e.execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (e *Executor) execute(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	l := e.logger.With(
		zap.String("account_id", req.AccountID),
		zap.String("session_id", req.SessionID),
		zap.String("symbol", req.Asset.Symbol),
	)

	if err := req.Asset.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEligibleAsset, err)
	}

	amount, err := e.tradeAmount(ctx, req)
	if err != nil {
		return nil, err
	}

	q, err := e.quote(req.Asset.CurrentPrice, amount)
	if err != nil {
		return nil, err
	}

	pairID := e.newID()
	now := e.now().UTC()
	buy := &models.TradeRecord{
		AccountID:   req.AccountID,
		AssetID:     req.Asset.ID,
		Symbol:      req.Asset.Symbol,
		Side:        models.SideBuy,
		Quantity:    q.quantity,
		Price:       q.buyPrice,
		TotalAmount: q.tradeAmount,
		StrategyTag: req.StrategyTag,
		PairID:      pairID,
		SessionID:   req.SessionID,
		CreatedAt:   now,
	}
	if err := e.ledger.AppendTradeRecord(ctx, buy); err != nil {
		l.Error("Failed to write buy leg", zap.Error(err))
		return nil, fmt.Errorf("%w: buy leg: %w", ErrLedgerWrite, err)
	}

	sell := &models.TradeRecord{
		AccountID:   req.AccountID,
		AssetID:     req.Asset.ID,
		Symbol:      req.Asset.Symbol,
		Side:        models.SideSell,
		Quantity:    q.quantity,
		Price:       q.sellPrice,
		TotalAmount: q.sellAmount,
		StrategyTag: req.StrategyTag,
		PairID:      pairID,
		SessionID:   req.SessionID,
		CreatedAt:   now,
	}
	if err := e.ledger.AppendTradeRecord(ctx, sell); err != nil {
		perr := &PartialTradeError{AccountID: req.AccountID, PairID: pairID, BuyRecordID: buy.ID, Err: err}
		l.Error("Sell leg failed after buy leg was written, ledger needs reconciliation",
			zap.String("pair_id", pairID),
			zap.Uint("buy_record_id", buy.ID),
			zap.Error(err),
		)
		return nil, perr
	}

	result := &TradeResult{
		PairID:        pairID,
		Asset:         req.Asset,
		Quantity:      q.quantity,
		BuyPrice:      q.buyPrice,
		SellPrice:     q.sellPrice,
		Profit:        q.profit,
		ProfitPercent: q.profitPercent,
		TradeAmount:   q.tradeAmount,
		SellAmount:    q.sellAmount,
		BuyRecordID:   buy.ID,
		SellRecordID:  sell.ID,
		ExecutedAt:    now,
	}
	l.Info("Trade pair recorded",
		zap.String("pair_id", pairID),
		zap.Float64("quantity", result.Quantity),
		zap.Float64("trade_amount", result.TradeAmount),
		zap.Float64("profit", result.Profit),
		zap.Float64("profit_percent", result.ProfitPercent),
	)
	return result, nil
}

// IsFatal reports whether err left the ledger with an unmatched buy leg.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPartialTrade)
}
