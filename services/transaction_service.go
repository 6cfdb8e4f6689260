// services/transaction_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"payment-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionService creates deposit/withdrawal transactions and owns the
// non-settlement lifecycle transitions (expiry). Balance effects only ever
// happen through the ledger: the withdrawal hold here, everything else in
// settlement.
type TransactionService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewTransactionService(db *gorm.DB, ledger *LedgerService) *TransactionService {
	return &TransactionService{DB: db, Ledger: ledger}
}

const payCurrency = "INR"

// CreateDeposit validates the amount against the configured bounds and
// returns a pending transaction plus the gateway-facing payment payload.
func (s *TransactionService) CreateDeposit(userID string, amount float64, cfg models.BonusConfig) (*models.Transaction, *models.PaymentPayload, error) {
	if amount <= 0 {
		return nil, nil, validationf("deposit amount must be positive")
	}
	if cfg.MinDepositAmount > 0 && amount < cfg.MinDepositAmount {
		return nil, nil, validationf("deposit amount %.2f below minimum %.2f", amount, cfg.MinDepositAmount)
	}
	if cfg.MaxDepositAmount > 0 && amount > cfg.MaxDepositAmount {
		return nil, nil, validationf("deposit amount %.2f above maximum %.2f", amount, cfg.MaxDepositAmount)
	}

	ttl := time.Duration(cfg.DepositTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	expires := time.Now().UTC().Add(ttl)

	txn := &models.Transaction{
		ID:                   uuid.NewString(),
		UserID:               userID,
		Type:                 models.TxTypeDeposit,
		Amount:               round2(amount),
		Fee:                  0,
		NetAmount:            round2(amount),
		Status:               models.TxStatusPending,
		GatewayTransactionID: uuid.NewString(),
		ExpiresAt:            &expires,
	}
	if err := s.DB.Create(txn).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create deposit: %w", err)
	}

	payload := &models.PaymentPayload{
		GatewayTransactionID: txn.GatewayTransactionID,
		Amount:               txn.Amount,
		Currency:             payCurrency,
		ExpiresAt:            expires.Format(time.RFC3339),
	}
	return txn, payload, nil
}

// CreateWithdraw requires a registered payout key and sufficient withdrawable
// balance (bonus and affiliate funds are excluded). The amount is debited as a
// hold when the request is accepted; failed or cancelled withdrawals refund it
// through settlement.
func (s *TransactionService) CreateWithdraw(userID string, amount float64, payoutKeyID string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, validationf("withdraw amount must be positive")
	}

	var key models.PayoutKey
	err := s.DB.Where("id = ? AND user_id = ? AND active = ?", payoutKeyID, userID, true).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no active payout key %s", ErrNoPayoutMethod, payoutKeyID)
		}
		return nil, fmt.Errorf("failed to load payout key: %w", err)
	}

	txn := &models.Transaction{
		ID:                   uuid.NewString(),
		UserID:               userID,
		Type:                 models.TxTypeWithdraw,
		Amount:               round2(amount),
		Fee:                  0,
		NetAmount:            round2(amount),
		Status:               models.TxStatusPending,
		GatewayTransactionID: uuid.NewString(),
		PayoutKeyID:          &key.ID,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.Ledger.Debit(tx, userID, models.AccountWithdrawable, txn.Amount, models.ReasonWithdrawHold, txn.ID); err != nil {
			return err
		}
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// RegisterPayoutKey stores a payout destination for later withdrawals.
func (s *TransactionService) RegisterPayoutKey(userID, keyType, keyValue string) (*models.PayoutKey, error) {
	if keyType == "" || keyValue == "" {
		return nil, validationf("payout key type and value are required")
	}
	key := &models.PayoutKey{
		ID:       uuid.NewString(),
		UserID:   userID,
		KeyType:  keyType,
		KeyValue: keyValue,
		Active:   true,
	}
	if err := s.DB.Create(key).Error; err != nil {
		return nil, fmt.Errorf("failed to register payout key: %w", err)
	}
	return key, nil
}

// ExpireDeposits flips pending deposits past their deadline to expired. The
// status filter makes the sweep a CAS: a deposit settled between read and
// write is untouched. Expiry has no balance effect.
func (s *TransactionService) ExpireDeposits(now time.Time) (int64, error) {
	res := s.DB.Model(&models.Transaction{}).
		Where("type = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
			models.TxTypeDeposit, models.TxStatusPending, now).
		Update("status", models.TxStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire deposits: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("[Transactions] expired %d deposit(s)", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// ListTransactions returns the user's most recent transactions.
func (s *TransactionService) ListTransactions(userID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var txns []models.Transaction
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// GetByGatewayID loads a transaction by its idempotency key.
func (s *TransactionService) GetByGatewayID(gatewayTxID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.DB.Where("gateway_transaction_id = ?", gatewayTxID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, gatewayTxID)
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &txn, nil
}
