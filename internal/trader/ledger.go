package trader

import (
	"context"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
)

// Ledger is the external store the engine reads balances from and appends
// trade records to.
type Ledger interface {
	TradeCounter
	GetBalance(ctx context.Context, accountID string) (float64, error)
	AppendTradeRecord(ctx context.Context, record *models.TradeRecord) error
}

// AssetSource lists the assets a session may trade.
type AssetSource interface {
	ListTradableAssets(ctx context.Context) ([]models.Asset, error)
}

// SessionGuard is an optional cross-process single-flight guard.
// Acquire must be atomic and report false when the account is held.
// Refresh keeps a held guard from being reclaimed as stale and reports
// false once sessionID has lost it.
type SessionGuard interface {
	Acquire(ctx context.Context, accountID, sessionID string) (bool, error)
	Refresh(ctx context.Context, accountID, sessionID string) (bool, error)
	Release(ctx context.Context, accountID, sessionID string) error
}
