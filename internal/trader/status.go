package trader

import (
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
)

// Phase names a controller state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseEligible   Phase = "eligible"
	PhaseSimulating Phase = "simulating"
	PhaseCompleting Phase = "completing"
	PhaseResult     Phase = "result"
	PhaseRejected   Phase = "rejected"
	PhaseCancelled  Phase = "cancelled"
)

// Session is the transient record of one analysis run.
type Session struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	StartedAt       time.Time       `json:"started_at"`
	SelectedAsset   models.Asset    `json:"selected_asset"`
	Tier            models.RankTier `json:"tier"`
	RemainingTrades int             `json:"remaining_trades"`
	RequestedAmount float64         `json:"requested_amount,omitempty"`
}

// Status is one state of an account's session. Each implementation carries
// only the fields valid in that state.
type Status interface {
	Phase() Phase
	isStatus()
}

// Idle means no session exists for the account.
type Idle struct{}

// Eligible means Start is checking balance, quota and assets.
type Eligible struct {
	SessionID string
}

// Simulating carries the latest analysis progress.
type Simulating struct {
	Session  Session
	Progress Progress
}

// Completing means the ledger pair is being written.
type Completing struct {
	Session Session
}

// Result holds the outcome of the trade until it is acknowledged.
// Fatal is set when the ledger was left with an unmatched buy leg.
type Result struct {
	Session Session
	Trade   *TradeResult
	Err     error
	Fatal   bool
}

// Rejected is published when the eligibility check fails.
type Rejected struct {
	SessionID string
	Err       error
}

// Cancelled is published when a session stops before its trade.
type Cancelled struct {
	Session Session
	Reason  string
}

func (Idle) Phase() Phase       { return PhaseIdle }
func (Eligible) Phase() Phase   { return PhaseEligible }
func (Simulating) Phase() Phase { return PhaseSimulating }
func (Completing) Phase() Phase { return PhaseCompleting }
func (Result) Phase() Phase     { return PhaseResult }
func (Rejected) Phase() Phase   { return PhaseRejected }
func (Cancelled) Phase() Phase  { return PhaseCancelled }

func (Idle) isStatus()       {}
func (Eligible) isStatus()   {}
func (Simulating) isStatus() {}
func (Completing) isStatus() {}
func (Result) isStatus()     {}
func (Rejected) isStatus()   {}
func (Cancelled) isStatus()  {}

// Reason returns the result's reason code.
func (r Result) Reason() string { return ReasonCode(r.Err) }

// Reason returns the rejection's reason code.
func (r Rejected) Reason() string { return ReasonCode(r.Err) }

// Event is a status change published to subscribers.
type Event struct {
	AccountID string
	At        time.Time
	Status    Status
}

// progressTick reports whether ev is a progress update inside Simulating
// rather than a phase change. Only these may be coalesced for slow readers.
func progressTick(ev Event) bool {
	s, ok := ev.Status.(Simulating)
	return ok && s.Progress.Elapsed > 0
}
