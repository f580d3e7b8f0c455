package trader

import (
	"context"
	"math"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
)

// DefaultMetrics name the synthetic comparisons shown during analysis.
var DefaultMetrics = []string{"RSI", "Momentum", "Volatility", "Volume Trend", "Market Sentiment", "Liquidity"}

// SimulatorConfig fixes the timing of every analysis session.
type SimulatorConfig struct {
	Duration       time.Duration
	TickInterval   time.Duration
	GraceDelay     time.Duration
	SampleInterval time.Duration
	Steps          []string
	Metrics        []string
}

// Progress is published on every tick. It never influences the trade.
type Progress struct {
	Percent   int               `json:"percent"`
	StepIndex int               `json:"step_index"`
	StepName  string            `json:"step_name"`
	Elapsed   time.Duration     `json:"elapsed"`
	Sample    *ComparisonSample `json:"sample,omitempty"`
}

// ComparisonSample is telemetry only: two assets scored on one metric.
type ComparisonSample struct {
	Left       string  `json:"left"`
	Right      string  `json:"right"`
	Metric     string  `json:"metric"`
	LeftScore  float64 `json:"left_score"`
	RightScore float64 `json:"right_score"`
}

// Outcome is how a simulation ended.
type Outcome struct {
	Cancelled bool
	Asset     models.Asset
	Elapsed   time.Duration
}

// Simulator runs the fixed-duration analysis that precedes a trade.
// It performs no computation beyond producing progress telemetry.
type Simulator struct {
	cfg SimulatorConfig
	rng Rand
	now func() time.Time
}

func NewSimulator(cfg SimulatorConfig, rng Rand) *Simulator {
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = DefaultMetrics
	}
	return &Simulator{cfg: cfg, rng: rng, now: time.Now}
}

// Duration returns the fixed simulation length.
func (s *Simulator) Duration() time.Duration {
	return s.cfg.Duration
}

// ProgressAt computes percent and step for an elapsed time.
func (s *Simulator) ProgressAt(elapsed time.Duration) Progress {
	percent := 100
	if s.cfg.Duration > 0 {
		percent = min(100, int(math.Floor(float64(elapsed)/float64(s.cfg.Duration)*100)))
	}
	percent = max(0, percent)

	steps := len(s.cfg.Steps)
	p := Progress{Percent: percent, Elapsed: elapsed}
	if steps > 0 {
		p.StepIndex = min(steps-1, int(math.Floor(float64(percent)/100*float64(steps))))
		p.StepName = s.cfg.Steps[p.StepIndex]
	}
	return p
}

// Run drives one session until it reaches 100% and the grace delay passes,
// or until ctx is cancelled. asset is held for the whole run and returned
// unchanged on completion. pool feeds the comparison samples. report is
// called from the ticking goroutine and must not block.
func (s *Simulator) Run(ctx context.Context, asset models.Asset, pool []models.Asset, report func(Progress)) Outcome {
	start := s.now()
	lastSample := start

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{Cancelled: true, Asset: asset, Elapsed: s.now().Sub(start)}
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return Outcome{Cancelled: true, Asset: asset, Elapsed: s.now().Sub(start)}
		}

		now := s.now()
		p := s.ProgressAt(now.Sub(start))
		if s.cfg.SampleInterval > 0 && now.Sub(lastSample) >= s.cfg.SampleInterval {
			p.Sample = s.sample(pool)
			lastSample = now
		}
		report(p)

		if p.Percent >= 100 {
			break
		}
	}

	grace := time.NewTimer(s.cfg.GraceDelay)
	defer grace.Stop()
	select {
	case <-ctx.Done():
		return Outcome{Cancelled: true, Asset: asset, Elapsed: s.now().Sub(start)}
	case <-grace.C:
	}
	return Outcome{Asset: asset, Elapsed: s.now().Sub(start)}
}

func (s *Simulator) sample(pool []models.Asset) *ComparisonSample {
	if len(pool) < 2 {
		return nil
	}
	i := s.rng.Intn(len(pool))
	j := s.rng.Intn(len(pool) - 1)
	if j >= i {
		j++
	}
	score := func() float64 { return math.Round(uniform(s.rng, 0, 100)*10) / 10 }
	return &ComparisonSample{
		Left:       pool[i].Symbol,
		Right:      pool[j].Symbol,
		Metric:     s.cfg.Metrics[s.rng.Intn(len(s.cfg.Metrics))],
		LeftScore:  score(),
		RightScore: score(),
	}
}
