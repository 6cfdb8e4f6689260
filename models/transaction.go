// models/transaction.go
package models

import "time"

// TxType distinguishes money in from money out.
type TxType string

const (
	TxTypeDeposit  TxType = "deposit"
	TxTypeWithdraw TxType = "withdraw"
)

// TxStatus is the transaction lifecycle state.
type TxStatus string

const (
	TxStatusPending    TxStatus = "pending"
	TxStatusProcessing TxStatus = "processing"
	TxStatusPaid       TxStatus = "paid"
	TxStatusFailed     TxStatus = "failed"
	TxStatusCancelled  TxStatus = "cancelled"
	TxStatusExpired    TxStatus = "expired"
)

// Terminal reports whether a status admits no further transitions.
func (s TxStatus) Terminal() bool {
	switch s {
	case TxStatusPaid, TxStatusFailed, TxStatusCancelled, TxStatusExpired:
		return true
	case TxStatusPending, TxStatusProcessing:
		return false
	}
	return false
}

// CanTransition encodes the status state machine:
// pending → processing → {paid, failed, cancelled}; deposits additionally
// pending → expired. Terminal states never move.
func CanTransition(txType TxType, from, to TxStatus) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case TxStatusPending:
		switch to {
		case TxStatusProcessing, TxStatusPaid, TxStatusFailed, TxStatusCancelled:
			return true
		case TxStatusExpired:
			return txType == TxTypeDeposit
		}
	case TxStatusProcessing:
		switch to {
		case TxStatusPaid, TxStatusFailed, TxStatusCancelled:
			return true
		}
	}
	return false
}

// Transaction is a deposit or withdrawal moving through the gateway.
// GatewayTransactionID is globally unique and is the idempotency key for
// settlement: the whole engine hangs off the CAS on its status.
type Transaction struct {
	ID                   string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID               string     `gorm:"index;not null" json:"user_id"`
	Type                 TxType     `gorm:"not null" json:"type"`
	Amount               float64    `gorm:"not null" json:"amount"`
	Fee                  float64    `gorm:"not null;default:0" json:"fee"`
	NetAmount            float64    `gorm:"not null" json:"net_amount"`
	Status               TxStatus   `gorm:"not null;index" json:"status"`
	GatewayTransactionID string     `gorm:"uniqueIndex;not null" json:"gateway_transaction_id"`
	PayoutKeyID          *string    `gorm:"index" json:"payout_key_id,omitempty"`
	ExpiresAt            *time.Time `gorm:"index" json:"expires_at,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`

	// EffectsComplete turns true only after the downstream reward pipeline
	// (bonus, commission, qualification) ran to completion for a paid
	// deposit. The reconciliation sweep re-runs rows where it is false.
	EffectsComplete bool `gorm:"not null;default:false;index" json:"effects_complete"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// PaymentPayload is what the client forwards to the payment gateway to start
// a deposit.
type PaymentPayload struct {
	GatewayTransactionID string  `json:"gateway_transaction_id"`
	Amount               float64 `json:"amount"`
	Currency             string  `json:"currency"`
	ExpiresAt            string  `json:"expires_at"`
}

// WebhookEvent is the payment gateway's settlement callback. Signature
// validation happens at the gateway edge before this service sees it.
type WebhookEvent struct {
	GatewayTransactionID string  `json:"gateway_transaction_id"`
	Status               string  `json:"status"`
	Amount               float64 `json:"amount"`
}
