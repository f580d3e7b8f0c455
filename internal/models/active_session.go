package models

import "time"

// ActiveSession marks an account as busy across processes.
// The unique index on AccountID is the single-flight guard.
type ActiveSession struct {
	AccountID  string    `gorm:"primaryKey"`
	SessionID  string    `gorm:"not null"`
	AcquiredAt time.Time `gorm:"not null;index"`
}
