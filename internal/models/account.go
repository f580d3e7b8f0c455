package models

import "time"

// Account is the balance holder owned by the external ledger.
// The engine only reads it.
type Account struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Balance   float64   `gorm:"not null;default:0" json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
