package models

import "time"

// TradeSide is the direction of a ledger row.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeRecord is an append-only ledger row. Every completed session writes
// exactly two of them, a buy and a sell, linked by PairID.
type TradeRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AccountID   string    `gorm:"index:idx_trade_account_side_created,priority:1;not null" json:"account_id"`
	Side        TradeSide `gorm:"index:idx_trade_account_side_created,priority:2;type:varchar(4);not null" json:"side"`
	CreatedAt   time.Time `gorm:"index:idx_trade_account_side_created,priority:3" json:"created_at"`
	AssetID     string    `gorm:"not null" json:"asset_id"`
	Symbol      string    `json:"symbol"`
	Quantity    float64   `gorm:"not null" json:"quantity"`
	Price       float64   `gorm:"not null" json:"price"`
	TotalAmount float64   `gorm:"not null" json:"total_amount"`
	StrategyTag string    `json:"strategy_tag"`
	PairID      string    `gorm:"index;not null" json:"pair_id"`
	SessionID   string    `json:"session_id"`
}
