package trader

import (
	"errors"
	"fmt"
)

// Eligibility outcomes. They are expected and reported synchronously by Start.
var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrQuotaExceeded        = errors.New("daily trade quota exceeded")
	ErrNoEligibleAsset      = errors.New("no eligible asset")
	ErrSessionAlreadyActive = errors.New("session already active")
	ErrInvalidAccount       = errors.New("account id is required")
	ErrShuttingDown         = errors.New("controller is shutting down")
)

// Ledger failures raised by the executor.
var (
	ErrLedgerWrite  = errors.New("ledger write failed")
	ErrPartialTrade = errors.New("partial trade inconsistency")
)

// Misuse of the session lifecycle.
var (
	ErrNoActiveSession   = errors.New("no active session")
	ErrSessionCompleting = errors.New("session is executing its trade")
	ErrNoResult          = errors.New("no result to acknowledge")
)

// PartialTradeError reports a pair whose buy leg was written but whose sell
// leg was not. The ledger is inconsistent and must be reconciled by hand;
// the engine never retries it.
type PartialTradeError struct {
	AccountID   string
	PairID      string
	BuyRecordID uint
	Err         error
}

func (e *PartialTradeError) Error() string {
	return fmt.Sprintf("partial trade for account %s: buy record %d (pair %s) has no sell leg: %v",
		e.AccountID, e.BuyRecordID, e.PairID, e.Err)
}

func (e *PartialTradeError) Unwrap() []error {
	return []error{ErrPartialTrade, ErrLedgerWrite, e.Err}
}

// Reason codes carried by terminal statuses.
const (
	ReasonInsufficientBalance  = "insufficient_balance"
	ReasonQuotaExceeded        = "quota_exceeded"
	ReasonNoEligibleAsset      = "no_eligible_asset"
	ReasonSessionAlreadyActive = "session_already_active"
	ReasonPartialTrade         = "partial_trade"
	ReasonLedgerWrite          = "ledger_write_failed"
	ReasonInvalidAccount       = "invalid_account"
	ReasonShuttingDown         = "shutting_down"
	ReasonInternal             = "internal_error"
	ReasonCompleted            = "completed"
	ReasonCancelledByUser      = "cancelled_by_user"
	ReasonCancelledByShutdown  = "cancelled_by_shutdown"
)

// ReasonCode maps an error to a stable code the host layer can render.
// Partial trades are checked first since they also match ErrLedgerWrite.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ReasonCompleted
	case errors.Is(err, ErrPartialTrade):
		return ReasonPartialTrade
	case errors.Is(err, ErrLedgerWrite):
		return ReasonLedgerWrite
	case errors.Is(err, ErrInsufficientBalance):
		return ReasonInsufficientBalance
	case errors.Is(err, ErrQuotaExceeded):
		return ReasonQuotaExceeded
	case errors.Is(err, ErrNoEligibleAsset):
		return ReasonNoEligibleAsset
	case errors.Is(err, ErrSessionAlreadyActive):
		return ReasonSessionAlreadyActive
	case errors.Is(err, ErrInvalidAccount):
		return ReasonInvalidAccount
	case errors.Is(err, ErrShuttingDown):
		return ReasonShuttingDown
	default:
		return ReasonInternal
	}
}
