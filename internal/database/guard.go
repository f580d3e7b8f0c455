package database

import (
	"context"
	"fmt"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionGuard holds one active_sessions row per busy account so that
// several processes sharing a database cannot run two sessions for the
// same account. The holder refreshes AcquiredAt while it keeps the session,
// so rows older than staleAfter belong to a crashed process and are
// reclaimed on the next acquire.
type SessionGuard struct {
	db         *gorm.DB
	staleAfter time.Duration
	now        func() time.Time
}

// NewSessionGuard creates a guard. staleAfter should be several refresh
// intervals long.
func NewSessionGuard(db *gorm.DB, staleAfter time.Duration) *SessionGuard {
	return &SessionGuard{db: db, staleAfter: staleAfter, now: time.Now}
}

// Acquire inserts the guard row. It reports false when another session
// already holds the account.
func (g *SessionGuard) Acquire(ctx context.Context, accountID, sessionID string) (bool, error) {
	now := g.now().UTC()
	var acquired bool
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if g.staleAfter > 0 {
			if err := tx.Where("account_id = ? AND acquired_at < ?", accountID, now.Add(-g.staleAfter)).
				Delete(&models.ActiveSession{}).Error; err != nil {
				return err
			}
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ActiveSession{
			AccountID:  accountID,
			SessionID:  sessionID,
			AcquiredAt: now,
		})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("could not acquire session guard for %s: %w", accountID, err)
	}
	return acquired, nil
}

// Release removes the guard row if it is still owned by sessionID.
func (g *SessionGuard) Release(ctx context.Context, accountID, sessionID string) error {
	err := g.db.WithContext(ctx).
		Where("account_id = ? AND session_id = ?", accountID, sessionID).
		Delete(&models.ActiveSession{}).Error
	if err != nil {
		return fmt.Errorf("could not release session guard for %s: %w", accountID, err)
	}
	return nil
}

// Refresh stamps the guard row with the current time. It reports false when
// sessionID no longer owns the account.
func (g *SessionGuard) Refresh(ctx context.Context, accountID, sessionID string) (bool, error) {
	res := g.db.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("account_id = ? AND session_id = ?", accountID, sessionID).
		Update("acquired_at", g.now().UTC())
	if res.Error != nil {
		return false, fmt.Errorf("could not refresh session guard for %s: %w", accountID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SweepStale deletes guard rows older than staleAfter and returns how many
// were removed.
func (g *SessionGuard) SweepStale(ctx context.Context) (int64, error) {
	if g.staleAfter <= 0 {
		return 0, nil
	}
	res := g.db.WithContext(ctx).
		Where("acquired_at < ?", g.now().UTC().Add(-g.staleAfter)).
		Delete(&models.ActiveSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("could not sweep stale session guards: %w", res.Error)
	}
	return res.RowsAffected, nil
}
