package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/config"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/logger"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/market"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/trace"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	guardTimeout        = 5 * time.Second
	defaultGuardRefresh = 30 * time.Second
)

// Dependencies are the collaborators a Controller is built from.
type Dependencies struct {
	Logger *zap.Logger
	Ledger Ledger
	Assets AssetSource
	Guard  SessionGuard // optional, nil keeps the guard in process
	Rand   Rand         // optional, seeded from the clock when nil

	// GuardRefresh is how often a held guard is refreshed. It must stay
	// well below the guard's stale window.
	GuardRefresh time.Duration
}

// StartRequest starts a session. A zero Amount trades the balance minus
// the safety buffer.
type StartRequest struct {
	AccountID string  `json:"account_id"`
	Amount    float64 `json:"amount,omitempty"`
}

// Controller owns the per-account session state machine:
//
//	Idle -> Eligible -> Simulating -> Completing -> Result -> Idle
//	Eligible -> Rejected -> Idle
//	Simulating -> Cancelled -> Idle
//
// At most one session exists per account; Start acquires the slot
// atomically under mu before any I/O.
type Controller struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger      *zap.Logger
	ledger      Ledger
	assets      AssetSource
	guard       SessionGuard
	refresh     time.Duration
	ranks       *RankPolicy
	quota       *QuotaTracker
	strategy    Strategy
	simulator   *Simulator
	executor    *Executor
	stablecoins market.StablecoinSet
	rng         Rand
	strategyTag string
	autoAck     bool
	buffer      float64
	now         func() time.Time
	newID       func() string

	hub *Hub[Event]
	wg  sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*activeSession
	closed   bool
}

type activeSession struct {
	info         Session
	status       Status
	cancel       context.CancelFunc
	cancelReason string
	stopRefresh  func()
}

// NewController wires the engine components from the bot configuration.
func NewController(cfg config.Bot, deps Dependencies) (*Controller, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Ledger == nil || deps.Assets == nil {
		return nil, errors.New("controller needs a ledger and an asset source")
	}
	if deps.Rand == nil {
		deps.Rand = NewRand(time.Now().UnixNano())
	}
	if deps.GuardRefresh <= 0 {
		deps.GuardRefresh = defaultGuardRefresh
	}

	ranks, err := NewRankPolicy(cfg.Ranks)
	if err != nil {
		return nil, fmt.Errorf("invalid rank table: %w", err)
	}
	loc, err := time.LoadLocation(cfg.QuotaTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quota timezone: %w", err)
	}
	strategy, err := NewStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	log := deps.Logger.Named("controller")
	c := &Controller{
		UUID:        uuid.NewString(),
		Name:        "ai-trade-bot",
		StartTime:   time.Now(),
		logger:      log,
		ledger:      deps.Ledger,
		assets:      deps.Assets,
		guard:       deps.Guard,
		refresh:     deps.GuardRefresh,
		ranks:       ranks,
		quota:       NewQuotaTracker(deps.Ledger, loc),
		strategy:    strategy,
		stablecoins: market.NewStablecoinSet(cfg.Stablecoins),
		rng:         deps.Rand,
		strategyTag: cfg.StrategyTag,
		autoAck:     cfg.AutoAcknowledge,
		buffer:      cfg.SafetyBuffer,
		now:         time.Now,
		newID:       uuid.NewString,
		hub:         NewHub(progressTick),
		sessions:    make(map[string]*activeSession),
	}
	c.simulator = NewSimulator(SimulatorConfig{
		Duration:       cfg.SimulationDuration,
		TickInterval:   cfg.TickInterval,
		GraceDelay:     cfg.GraceDelay,
		SampleInterval: cfg.SampleInterval,
		Steps:          cfg.Steps,
	}, deps.Rand)
	c.executor = NewExecutor(deps.Ledger, ExecutorConfig{
		ProfitMinPercent: cfg.ProfitMinPercent,
		ProfitMaxPercent: cfg.ProfitMaxPercent,
		SpreadMin:        cfg.SpreadMin,
		SpreadMax:        cfg.SpreadMax,
		SafetyBuffer:     cfg.SafetyBuffer,
		Timeout:          cfg.ExecutorTimeout,
	}, deps.Rand, deps.Logger)

	log.Info("Controller initialized",
		zap.String("strategy", strategy.Name()),
		zap.Duration("simulation_duration", cfg.SimulationDuration),
		zap.String("quota_timezone", loc.String()),
		zap.Int("ranks", len(cfg.Ranks)),
	)
	return c, nil
}

// Strategy returns the asset selection strategy in use.
func (c *Controller) Strategy() Strategy {
	return c.strategy
}

// Ranks returns the rank policy.
func (c *Controller) Ranks() *RankPolicy {
	return c.ranks
}

// Subscribe returns a stream of every status change. A slow subscriber may
// miss intermediate progress ticks but never a phase change.
func (c *Controller) Subscribe(buffer int) *Subscription[Event] {
	return c.hub.Subscribe(buffer)
}

// Unsubscribe stops a subscription and closes its channel.
func (c *Controller) Unsubscribe(sub *Subscription[Event]) {
	c.hub.Unsubscribe(sub)
}

// Status returns the current state of an account.
func (c *Controller) Status(accountID string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[accountID]; ok {
		return s.status
	}
	return Idle{}
}

// Quota reports the account's tier and remaining trades for today.
func (c *Controller) Quota(ctx context.Context, accountID string) (QuotaUsage, error) {
	balance, err := c.ledger.GetBalance(ctx, accountID)
	if err != nil {
		return QuotaUsage{}, fmt.Errorf("could not read balance: %w", err)
	}
	return c.quota.Usage(ctx, accountID, c.ranks.TierFor(balance))
}

// Start claims the account, checks eligibility and launches the analysis
// session in the background. It returns as soon as the session is
// simulating; the trade outcome is delivered through Status and Subscribe.
func (c *Controller) Start(ctx context.Context, req StartRequest) (Session, error) {
	ctx, span := trace.StartSpan(ctx, "trader.Start")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", req.AccountID))

	if req.AccountID == "" {
		return Session{}, ErrInvalidAccount
	}

	sessionID := c.newID()
	l := logger.ForAccount(c.logger, req.AccountID, sessionID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Session{}, ErrShuttingDown
	}
	if _, busy := c.sessions[req.AccountID]; busy {
		c.mu.Unlock()
		l.Info("Start rejected, session already active")
		return Session{}, ErrSessionAlreadyActive
	}
	s := &activeSession{
		info:   Session{ID: sessionID, AccountID: req.AccountID},
		status: Eligible{SessionID: sessionID},
	}
	c.sessions[req.AccountID] = s
	c.publishLocked(req.AccountID, s.status)
	c.mu.Unlock()

	if c.guard != nil {
		ok, err := c.guard.Acquire(ctx, req.AccountID, sessionID)
		if err != nil || !ok {
			if err == nil {
				err = ErrSessionAlreadyActive
			}
			c.reject(l, s, err, false)
			return Session{}, err
		}
		s.stopRefresh = c.holdGuard(l, req.AccountID, sessionID)
	}

	info, pool, err := c.checkEligibility(ctx, req, sessionID)
	if err != nil {
		c.reject(l, s, err, true)
		return Session{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		c.reject(l, s, ErrShuttingDown, true)
		return Session{}, ErrShuttingDown
	}
	s.info = info
	s.cancel = cancel
	s.status = Simulating{Session: info, Progress: c.simulator.ProgressAt(0)}
	c.wg.Add(1)
	c.publishLocked(req.AccountID, s.status)
	c.mu.Unlock()

	l.Info("Session started",
		zap.String("symbol", info.SelectedAsset.Symbol),
		zap.String("tier", info.Tier.Label),
		zap.Int("remaining_trades", info.RemainingTrades),
	)
	go c.run(runCtx, s, pool)

	return info, nil
}

// checkEligibility reads balance, quota and assets and picks the asset.
func (c *Controller) checkEligibility(ctx context.Context, req StartRequest, sessionID string) (Session, []models.Asset, error) {
	balance, err := c.ledger.GetBalance(ctx, req.AccountID)
	if err != nil {
		return Session{}, nil, fmt.Errorf("could not read balance: %w", err)
	}
	if _, err := ResolveTradeAmount(balance, req.Amount, c.buffer); err != nil {
		return Session{}, nil, err
	}

	tier := c.ranks.TierFor(balance)
	usage, err := c.quota.Usage(ctx, req.AccountID, tier)
	if err != nil {
		return Session{}, nil, err
	}
	if usage.Remaining <= 0 {
		return Session{}, nil, fmt.Errorf("%w: %d of %d trades used today for rank %q",
			ErrQuotaExceeded, usage.ExecutedToday, tier.MaxTradesPerDay, tier.Label)
	}

	assets, err := c.assets.ListTradableAssets(ctx)
	if err != nil {
		return Session{}, nil, fmt.Errorf("%w: %w", ErrNoEligibleAsset, err)
	}
	assets = c.stablecoins.Filter(assets)
	if len(assets) == 0 {
		return Session{}, nil, ErrNoEligibleAsset
	}
	asset, err := c.strategy.Select(assets, c.rng)
	if err != nil {
		return Session{}, nil, err
	}

	return Session{
		ID:              sessionID,
		AccountID:       req.AccountID,
		StartedAt:       c.now(),
		SelectedAsset:   asset,
		Tier:            tier,
		RemainingTrades: usage.Remaining,
		RequestedAmount: req.Amount,
	}, assets, nil
}

// reject publishes Rejected, frees the account and returns it to Idle.
// The guard row goes first so the account is never free in process while
// still held in the database.
func (c *Controller) reject(l *zap.Logger, s *activeSession, err error, release bool) {
	accountID, sessionID := s.info.AccountID, s.info.ID
	l.Info("Session rejected", zap.String("reason", ReasonCode(err)), zap.Error(err))
	if release {
		c.releaseGuard(s)
	}
	c.mu.Lock()
	delete(c.sessions, accountID)
	c.publishLocked(accountID, Rejected{SessionID: sessionID, Err: err})
	c.publishLocked(accountID, Idle{})
	c.mu.Unlock()
}

// run is the session goroutine: simulate, then execute.
func (c *Controller) run(ctx context.Context, s *activeSession, pool []models.Asset) {
	defer c.wg.Done()
	info := s.info
	l := logger.ForAccount(c.logger, info.AccountID, info.ID)

	outcome := c.simulator.Run(ctx, info.SelectedAsset, pool, func(p Progress) {
		c.setStatus(info.AccountID, Simulating{Session: info, Progress: p})
	})

	// Cancel holds mu while it cancels ctx, so checking ctx here and
	// moving to Completing in the same critical section decides the race.
	c.mu.Lock()
	if outcome.Cancelled || ctx.Err() != nil {
		reason := s.cancelReason
		if reason == "" {
			reason = ReasonCancelledByUser
		}
		s.status = Cancelled{Session: info, Reason: reason}
		s.cancel()
		c.publishLocked(info.AccountID, s.status)
		c.mu.Unlock()

		l.Info("Session cancelled", zap.String("reason", reason), zap.Duration("elapsed", outcome.Elapsed))
		c.releaseGuard(s)
		c.mu.Lock()
		delete(c.sessions, info.AccountID)
		c.publishLocked(info.AccountID, Idle{})
		c.mu.Unlock()
		return
	}
	s.status = Completing{Session: info}
	s.cancel()
	c.publishLocked(info.AccountID, s.status)
	c.mu.Unlock()

	trade, err := c.executor.Execute(context.Background(), TradeRequest{
		AccountID:   info.AccountID,
		SessionID:   info.ID,
		Asset:       outcome.Asset,
		Amount:      info.RequestedAmount,
		StrategyTag: c.strategyTag,
	})
	result := Result{Session: info, Trade: trade, Err: err, Fatal: IsFatal(err)}
	switch {
	case result.Fatal:
		l.Error("Session ended with an inconsistent ledger pair", zap.Error(err))
	case err != nil:
		l.Warn("Session trade failed", zap.String("reason", result.Reason()), zap.Error(err))
	default:
		l.Info("Session completed", zap.String("pair_id", trade.PairID), zap.Float64("profit", trade.Profit))
	}
	c.setStatus(info.AccountID, result)

	if c.autoAck {
		if err := c.Acknowledge(info.AccountID); err != nil {
			l.Warn("Auto-acknowledge failed", zap.Error(err))
		}
	}
}

// Cancel stops a simulating session. It takes effect on the next tick and
// never interrupts a trade that is already being written.
func (c *Controller) Cancel(accountID string) error {
	return c.cancel(accountID, ReasonCancelledByUser)
}

func (c *Controller) cancel(accountID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[accountID]
	if !ok {
		return ErrNoActiveSession
	}
	switch s.status.(type) {
	case Simulating:
		if s.cancelReason == "" {
			s.cancelReason = reason
		}
		s.cancel()
		return nil
	case Completing:
		return ErrSessionCompleting
	default:
		return ErrNoActiveSession
	}
}

// Acknowledge consumes a Result and frees the account for a new session.
func (c *Controller) Acknowledge(accountID string) error {
	c.mu.Lock()
	s, ok := c.sessions[accountID]
	if !ok {
		c.mu.Unlock()
		return ErrNoResult
	}
	if _, done := s.status.(Result); !done {
		c.mu.Unlock()
		return ErrNoResult
	}
	// Consumed: a concurrent Acknowledge now sees no result.
	s.status = Idle{}
	c.mu.Unlock()

	c.releaseGuard(s)
	c.mu.Lock()
	delete(c.sessions, accountID)
	c.publishLocked(accountID, Idle{})
	c.mu.Unlock()
	return nil
}

// Shutdown refuses new sessions, cancels simulating ones and waits for
// running trades to finish. Results stay readable until acknowledged but
// their guards are released, since this process stops refreshing them.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	accounts := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		accounts = append(accounts, id)
	}
	c.mu.Unlock()

	for _, id := range accounts {
		_ = c.cancel(id, ReasonCancelledByShutdown)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.mu.Lock()
	var held []*activeSession
	for _, s := range c.sessions {
		if _, ok := s.status.(Result); ok {
			held = append(held, s)
		}
	}
	c.mu.Unlock()
	for _, s := range held {
		c.releaseGuard(s)
	}

	if err != nil {
		return err
	}
	c.logger.Info("Controller stopped", zap.Int("unacknowledged_results", len(held)))
	return nil
}

func (c *Controller) setStatus(accountID string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[accountID]; ok {
		s.status = status
	}
	c.publishLocked(accountID, status)
}

// publishLocked broadcasts while mu is held so subscribers see the
// transitions of one account in order. Broadcast never blocks.
func (c *Controller) publishLocked(accountID string, status Status) {
	c.hub.Broadcast(Event{AccountID: accountID, At: c.now(), Status: status})
}

// holdGuard refreshes the guard row until the returned func is called.
func (c *Controller) holdGuard(l *zap.Logger, accountID, sessionID string) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(c.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			refreshCtx, stop := context.WithTimeout(ctx, guardTimeout)
			held, err := c.guard.Refresh(refreshCtx, accountID, sessionID)
			stop()
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				l.Warn("Failed to refresh session guard", zap.Error(err))
			case !held:
				l.Error("Session guard was taken over by another session")
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// releaseGuard stops refreshing the guard and deletes its row. It is safe
// to call more than once.
func (c *Controller) releaseGuard(s *activeSession) {
	if c.guard == nil {
		return
	}
	if s.stopRefresh != nil {
		s.stopRefresh()
	}
	accountID, sessionID := s.info.AccountID, s.info.ID
	ctx, cancel := context.WithTimeout(context.Background(), guardTimeout)
	defer cancel()
	if err := c.guard.Release(ctx, accountID, sessionID); err != nil {
		c.logger.Error("Failed to release session guard",
			zap.String("account_id", accountID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
