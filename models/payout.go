// models/payout.go
package models

import "time"

// PayoutKey is a registered payout destination (UPI id, bank account, ...).
// Withdrawals require one; its concrete routing is the gateway's problem.
type PayoutKey struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	KeyType   string    `gorm:"not null" json:"key_type"`
	KeyValue  string    `gorm:"not null" json:"key_value"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PayoutKey) TableName() string {
	return "payout_keys"
}
