// models/balance.go
package models

import (
	"time"
)

// BalanceAccount names one of the three sub-accounts of a user's ledger.
type BalanceAccount string

const (
	AccountWithdrawable BalanceAccount = "withdrawable"
	AccountBonus        BalanceAccount = "bonus"
	AccountAffiliate    BalanceAccount = "affiliate"
)

// EffectDirection is the sign of a ledger effect.
type EffectDirection string

const (
	EffectCredit EffectDirection = "credit"
	EffectDebit  EffectDirection = "debit"
)

// EffectReason tags why money moved. Every balance mutation carries one.
type EffectReason string

const (
	ReasonDepositPrincipal     EffectReason = "deposit_principal"
	ReasonDepositBonus         EffectReason = "deposit_bonus"
	ReasonAffiliateCommission  EffectReason = "affiliate_commission"
	ReasonChestReward          EffectReason = "chest_reward"
	ReasonWithdrawHold         EffectReason = "withdraw_hold"
	ReasonWithdrawRefund       EffectReason = "withdraw_refund"
	ReasonAffiliateTransferOut EffectReason = "affiliate_transfer_out"
	ReasonAffiliateTransferIn  EffectReason = "affiliate_transfer_in"
	ReasonGameSession          EffectReason = "game_session"
)

// UserBalance is the per-user ledger aggregate. The three sub-accounts are
// only ever mutated by the LedgerService, together with an appended
// LedgerEffect, inside one DB transaction.
type UserBalance struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string    `gorm:"uniqueIndex;not null" json:"user_id"`
	Withdrawable float64   `gorm:"not null;default:0" json:"withdrawable"`
	Bonus        float64   `gorm:"not null;default:0" json:"bonus"`
	Affiliate    float64   `gorm:"not null;default:0" json:"affiliate"`
	Version      int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (UserBalance) TableName() string {
	return "user_balances"
}

// Account returns the current amount of one sub-account.
func (b *UserBalance) Account(account BalanceAccount) float64 {
	switch account {
	case AccountWithdrawable:
		return b.Withdrawable
	case AccountBonus:
		return b.Bonus
	case AccountAffiliate:
		return b.Affiliate
	}
	return 0
}

// LedgerEffect is one row of the append-only effect log. Balances must equal
// the sum of their effects at all times (conservation).
type LedgerEffect struct {
	ID            string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string          `gorm:"index;not null" json:"user_id"`
	Account       BalanceAccount  `gorm:"not null" json:"account"`
	Direction     EffectDirection `gorm:"not null" json:"direction"`
	Amount        float64         `gorm:"not null" json:"amount"`
	Reason        EffectReason    `gorm:"not null;index" json:"reason"`
	CorrelationID string          `gorm:"index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
}

func (LedgerEffect) TableName() string {
	return "ledger_effects"
}

// Signed returns the amount with the direction applied.
func (e *LedgerEffect) Signed() float64 {
	if e.Direction == EffectDebit {
		return -e.Amount
	}
	return e.Amount
}
