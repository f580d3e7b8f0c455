package trader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/config"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/database"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/market"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

// assetsFunc adapts a function to AssetSource.
type assetsFunc func(ctx context.Context) ([]models.Asset, error)

func (f assetsFunc) ListTradableAssets(ctx context.Context) ([]models.Asset, error) {
	return f(ctx)
}

func fastBot() config.Bot {
	bot := config.Default().Bot
	bot.SimulationDuration = 40 * time.Millisecond
	bot.TickInterval = 5 * time.Millisecond
	bot.GraceDelay = 5 * time.Millisecond
	bot.SampleInterval = 10 * time.Millisecond
	return bot
}

type controllerFixture struct {
	controller *Controller
	store      *database.Store
	guard      *database.SessionGuard
}

// setupController builds a controller on a fresh database. A non-zero
// guardStale adds a database session guard with that stale window.
func setupController(t *testing.T, bot config.Bot, assets AssetSource, guardStale time.Duration) controllerFixture {
	t.Helper()
	db, err := database.NewDatabase(config.Database{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	store := database.NewStore(db)

	if assets == nil {
		assets = market.NewStaticCatalog(testAssets, market.NewStablecoinSet(bot.Stablecoins))
	}
	deps := Dependencies{Logger: zap.NewNop(), Ledger: store, Assets: assets, Rand: NewRand(11)}
	var guard *database.SessionGuard
	if guardStale > 0 {
		guard = database.NewSessionGuard(db, guardStale)
		deps.Guard = guard
		deps.GuardRefresh = guardStale / 5
	}

	c, err := NewController(bot, deps)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return controllerFixture{controller: c, store: store, guard: guard}
}

func waitForPhase(t *testing.T, c *Controller, accountID string, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status(accountID).Phase() == phase
	}, waitFor, tick, "account %s never reached %s", accountID, phase)
}

func TestController_SessionRecordsOnePair(t *testing.T) {
	// Arrange
	f := setupController(t, fastBot(), nil, 0)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 1000))

	// Act
	session, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Trader", session.Tier.Label)
	assert.Equal(t, 4, session.RemainingTrades)
	assert.False(t, session.SelectedAsset.IsStablecoin)

	waitForPhase(t, f.controller, "acc-1", PhaseResult)
	result := f.controller.Status("acc-1").(Result)
	require.NoError(t, result.Err)
	require.NotNil(t, result.Trade)
	assert.Equal(t, session.SelectedAsset, result.Trade.Asset)
	assert.Equal(t, 999.99, result.Trade.TradeAmount)
	assert.Equal(t, ReasonCompleted, result.Reason())

	trades, err := f.store.ListTrades(ctx, "acc-1", 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, trades[0].PairID, trades[1].PairID)
	assert.ElementsMatch(t, []models.TradeSide{models.SideBuy, models.SideSell}, []models.TradeSide{trades[0].Side, trades[1].Side})
	for _, tr := range trades {
		assert.Equal(t, session.ID, tr.SessionID)
		assert.Equal(t, "ai_bot", tr.StrategyTag)
	}

	require.NoError(t, f.controller.Acknowledge("acc-1"))
	assert.Equal(t, PhaseIdle, f.controller.Status("acc-1").Phase())

	usage, err := f.controller.Quota(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.ExecutedToday)
	assert.Equal(t, 3, usage.Remaining)
}

func TestController_PublishesTransitionsInOrder(t *testing.T) {
	f := setupController(t, fastBot(), nil, 0)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 500))
	sub := f.controller.Subscribe(256)
	defer f.controller.Unsubscribe(sub)

	_, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1", Amount: 100})
	require.NoError(t, err)

	var phases []Phase
	timeout := time.After(waitFor)
	for done := false; !done; {
		select {
		case ev := <-sub.C():
			require.Equal(t, "acc-1", ev.AccountID)
			if len(phases) == 0 || phases[len(phases)-1] != ev.Status.Phase() {
				phases = append(phases, ev.Status.Phase())
			}
			done = ev.Status.Phase() == PhaseResult
		case <-timeout:
			t.Fatalf("no result event, saw %v", phases)
		}
	}

	assert.Equal(t, []Phase{PhaseEligible, PhaseSimulating, PhaseCompleting, PhaseResult}, phases)
}

func TestController_SessionAlreadyActive(t *testing.T) {
	bot := fastBot()
	bot.SimulationDuration = 5 * time.Second
	f := setupController(t, bot, nil, 0)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 1000))

	_, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
	require.NoError(t, err)
	_, err = f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})

	assert.ErrorIs(t, err, ErrSessionAlreadyActive)
	assert.Equal(t, PhaseSimulating, f.controller.Status("acc-1").Phase())
}

func TestController_ConcurrentStartsOneWins(t *testing.T) {
	// Arrange
	f := setupController(t, fastBot(), nil, 0)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 1000))
	const starters = 16
	var (
		wg      sync.WaitGroup
		started atomic.Int32
		busy    atomic.Int32
		ready   = make(chan struct{})
	)

	// Act
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			_, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrSessionAlreadyActive):
				busy.Add(1)
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
	}
	close(ready)
	wg.Wait()

	// Assert
	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(starters-1), busy.Load())
	waitForPhase(t, f.controller, "acc-1", PhaseResult)
	trades, err := f.store.ListTrades(ctx, "acc-1", 100)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestController_Cancel(t *testing.T) {
	bot := fastBot()
	bot.SimulationDuration = 5 * time.Second
	f := setupController(t, bot, nil, 0)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 1000))
	sub := f.controller.Subscribe(256)
	defer f.controller.Unsubscribe(sub)

	_, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
	require.NoError(t, err)
	require.NoError(t, f.controller.Cancel("acc-1"))

	waitForPhase(t, f.controller, "acc-1", PhaseIdle)
	var cancelled *Cancelled
	for cancelled == nil {
		ev := <-sub.C()
		if st, ok := ev.Status.(Cancelled); ok {
			cancelled = &st
		}
	}
	assert.Equal(t, ReasonCancelledByUser, cancelled.Reason)

	trades, err := f.store.ListTrades(ctx, "acc-1", 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.ErrorIs(t, f.controller.Cancel("acc-1"), ErrNoActiveSession)
}

func TestController_QuotaExceeded(t *testing.T) {
	f := setupController(t, fastBot(), nil, 0)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 300))
	for i := 0; i < 2; i++ {
		require.NoError(t, f.store.AppendTradeRecord(ctx, &models.TradeRecord{
			AccountID: "acc-1", Side: models.SideBuy, Symbol: "BTC", PairID: "p",
		}))
	}

	_, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, PhaseIdle, f.controller.Status("acc-1").Phase())
}

func TestController_RejectsIneligibleStarts(t *testing.T) {
	onlyStablecoins := assetsFunc(func(context.Context) ([]models.Asset, error) {
		return []models.Asset{
			{ID: "usdt", Symbol: "USDT", CurrentPrice: 1},
			{ID: "usdc", Symbol: "USDC", CurrentPrice: 1},
		}, nil
	})
	catalogDown := assetsFunc(func(context.Context) ([]models.Asset, error) {
		return nil, errors.New("exchange unreachable")
	})

	testCases := []struct {
		name    string
		balance float64
		amount  float64
		assets  AssetSource
		account string
		reason  string
	}{
		{name: "only stablecoins", balance: 1000, assets: onlyStablecoins, account: "acc-1", reason: ReasonNoEligibleAsset},
		{name: "catalog unavailable", balance: 1000, assets: catalogDown, account: "acc-1", reason: ReasonNoEligibleAsset},
		{name: "empty balance", balance: 0, account: "acc-1", reason: ReasonInsufficientBalance},
		{name: "amount above balance", balance: 100, amount: 150, account: "acc-1", reason: ReasonInsufficientBalance},
		{name: "unknown account", balance: 1000, account: "ghost", reason: ReasonInternal},
		{name: "missing account id", balance: 1000, account: "", reason: ReasonInvalidAccount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupController(t, fastBot(), tc.assets, 0)
			ctx := context.Background()
			require.NoError(t, f.store.SetBalance(ctx, "acc-1", tc.balance))

			_, err := f.controller.Start(ctx, StartRequest{AccountID: tc.account, Amount: tc.amount})

			require.Error(t, err)
			assert.Equal(t, tc.reason, ReasonCode(err))
			assert.Equal(t, PhaseIdle, f.controller.Status(tc.account).Phase())
		})
	}
}

func TestController_AutoAcknowledge(t *testing.T) {
	bot := fastBot()
	bot.AutoAcknowledge = true
	f := setupController(t, bot, nil, 0)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 1000))

	_, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := f.store.CountBuyTradesSince(ctx, "acc-1", time.Now().Add(-time.Hour))
		return err == nil && n == 1
	}, waitFor, tick)
	waitForPhase(t, f.controller, "acc-1", PhaseIdle)
	assert.ErrorIs(t, f.controller.Acknowledge("acc-1"), ErrNoResult)
}

func TestController_DatabaseGuard(t *testing.T) {
	f := setupController(t, fastBot(), nil, time.Hour)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 1000))

	ok, err := f.guard.Acquire(ctx, "acc-1", "other-process")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)

	require.NoError(t, f.guard.Release(ctx, "acc-1", "other-process"))
	_, err = f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
	require.NoError(t, err)
	waitForPhase(t, f.controller, "acc-1", PhaseResult)
	require.NoError(t, f.controller.Acknowledge("acc-1"))

	// The guard row is gone once the result is consumed.
	ok, err = f.guard.Acquire(ctx, "acc-1", "next")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestController_GuardHeldUntilAcknowledged(t *testing.T) {
	// Arrange
	const stale = 300 * time.Millisecond
	f := setupController(t, fastBot(), nil, stale)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 1000))

	// Act
	_, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
	require.NoError(t, err)
	waitForPhase(t, f.controller, "acc-1", PhaseResult)
	time.Sleep(3 * stale)

	// Assert
	removed, err := f.guard.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
	ok, err := f.guard.Acquire(ctx, "acc-1", "other-process")
	require.NoError(t, err)
	assert.False(t, ok, "guard reclaimed while the result is unacknowledged")

	require.NoError(t, f.controller.Acknowledge("acc-1"))
	ok, err = f.guard.Acquire(ctx, "acc-1", "other-process")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestController_ShutdownReleasesResultGuards(t *testing.T) {
	f := setupController(t, fastBot(), nil, time.Hour)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 1000))

	_, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
	require.NoError(t, err)
	waitForPhase(t, f.controller, "acc-1", PhaseResult)

	shutdownCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, f.controller.Shutdown(shutdownCtx))

	assert.Equal(t, PhaseResult, f.controller.Status("acc-1").Phase())
	ok, err := f.guard.Acquire(ctx, "acc-1", "other-process")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, f.controller.Acknowledge("acc-1"))
}

func TestController_Shutdown(t *testing.T) {
	bot := fastBot()
	bot.SimulationDuration = 5 * time.Second
	f := setupController(t, bot, nil, 0)
	ctx := context.Background()
	require.NoError(t, f.store.SetBalance(ctx, "acc-1", 1000))

	_, err := f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, f.controller.Shutdown(shutdownCtx))

	assert.Equal(t, PhaseIdle, f.controller.Status("acc-1").Phase())
	trades, err := f.store.ListTrades(ctx, "acc-1", 10)
	require.NoError(t, err)
	assert.Empty(t, trades)

	_, err = f.controller.Start(ctx, StartRequest{AccountID: "acc-1"})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestController_AcknowledgeWithoutResult(t *testing.T) {
	f := setupController(t, fastBot(), nil, 0)

	assert.ErrorIs(t, f.controller.Acknowledge("acc-1"), ErrNoResult)
}
