package trader

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleSweeper removes session guard rows left behind by crashed processes.
type StaleSweeper interface {
	SweepStale(ctx context.Context) (int64, error)
}

// Engine runs the controller's background housekeeping and owns its
// shutdown.
type Engine struct {
	logger          *zap.Logger
	controller      *Controller
	sweeper         StaleSweeper
	interval        time.Duration
	shutdownTimeout time.Duration
}

// NewEngine creates a new engine. sweeper may be nil when the session guard
// is kept in process.
func NewEngine(logger *zap.Logger, controller *Controller, sweeper StaleSweeper, interval, shutdownTimeout time.Duration) *Engine {
	return &Engine{
		logger:          logger.Named("engine"),
		controller:      controller,
		sweeper:         sweeper,
		interval:        interval,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run blocks until ctx is cancelled, then shuts the controller down.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Starting engine", zap.Duration("sweep_interval", e.interval))

	var tick <-chan time.Time
	if e.sweeper != nil && e.interval > 0 {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping engine...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
			defer cancel()
			return e.controller.Shutdown(shutdownCtx)
		case <-tick:
			e.sweep(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	removed, err := e.sweeper.SweepStale(ctx)
	if err != nil {
		e.logger.Error("Sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		e.logger.Warn("Reclaimed stale session guards", zap.Int64("count", removed))
	}
}
