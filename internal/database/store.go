package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAccountNotFound is returned when the ledger has no row for an account.
var ErrAccountNotFound = errors.New("account not found")

// Store is the gorm-backed ledger used by the trading engine.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for read-only dashboards.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// GetBalance returns the current balance of an account.
func (s *Store) GetBalance(ctx context.Context, accountID string) (float64, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("could not load balance for %s: %w", accountID, err)
	}
	return account.Balance, nil
}

// SetBalance creates or updates an account balance. It stands in for the
// external ledger in demos and tests.
func (s *Store) SetBalance(ctx context.Context, accountID string, balance float64) error {
	account := models.Account{ID: accountID, Balance: balance}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&account).Error
	if err != nil {
		return fmt.Errorf("could not set balance for %s: %w", accountID, err)
	}
	return nil
}

// CountBuyTradesSince counts buy rows written for the account at or after since.
// Rows are stored in UTC, so since is compared in UTC as well.
func (s *Store) CountBuyTradesSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Where("account_id = ? AND side = ? AND created_at >= ?", accountID, models.SideBuy, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("could not count trades for %s: %w", accountID, err)
	}
	return int(count), nil
}

// AppendTradeRecord inserts one ledger row. Rows are never updated.
func (s *Store) AppendTradeRecord(ctx context.Context, record *models.TradeRecord) error {
	if record.ID != 0 {
		return fmt.Errorf("trade record already persisted with id %d", record.ID)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.CreatedAt = record.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("could not append %s record for %s: %w", record.Side, record.AccountID, err)
	}
	return nil
}

// ListTrades returns the most recent ledger rows, newest first.
// An empty accountID lists every account.
func (s *Store) ListTrades(ctx context.Context, accountID string, limit int) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	q := s.db.WithContext(ctx).Order("created_at desc").Order("id desc")
	if accountID != "" {
		q = q.Where("account_id = ?", accountID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("could not list trades: %w", err)
	}
	return trades, nil
}
