// services/ledger_service.go
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

// LedgerService is the only writer of user balances. Every mutation applies
// the delta to the UserBalance row via a version CAS and appends a
// LedgerEffect in the same DB transaction, so each balance always equals the
// sum of its effects.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

const balanceRetries = 5

// Credit adds amount to one sub-account inside the caller's transaction.
func (s *LedgerService) Credit(tx *gorm.DB, userID string, account models.BalanceAccount, amount float64, reason models.EffectReason, correlationID string) error {
	return s.apply(tx, userID, account, models.EffectCredit, amount, reason, correlationID)
}

// Debit removes amount from one sub-account; the balance can never go
// negative.
func (s *LedgerService) Debit(tx *gorm.DB, userID string, account models.BalanceAccount, amount float64, reason models.EffectReason, correlationID string) error {
	return s.apply(tx, userID, account, models.EffectDebit, amount, reason, correlationID)
}

func (s *LedgerService) apply(tx *gorm.DB, userID string, account models.BalanceAccount, direction models.EffectDirection, amount float64, reason models.EffectReason, correlationID string) error {
	if amount <= 0 {
		return validationf("effect amount must be positive, got %.2f", amount)
	}

	for attempt := 0; attempt < balanceRetries; attempt++ {
		balance, err := s.ensureBalance(tx, userID)
		if err != nil {
			return err
		}

		delta := amount
		if direction == models.EffectDebit {
			delta = -amount
		}
		next := round2(balance.Account(account) + delta)
		if next < 0 {
			return fmt.Errorf("%w: %s balance %.2f cannot cover %.2f",
				ErrInsufficientFunds, account, balance.Account(account), amount)
		}

		res := tx.Model(&models.UserBalance{}).
			Where("id = ? AND version = ?", balance.ID, balance.Version).
			Updates(map[string]any{
				string(account): next,
				"version":       balance.Version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the version race; reread and retry.
			continue
		}

		effect := &models.LedgerEffect{
			ID:            uuid.NewString(),
			UserID:        userID,
			Account:       account,
			Direction:     direction,
			Amount:        round2(amount),
			Reason:        reason,
			CorrelationID: correlationID,
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.Create(effect).Error; err != nil {
			return fmt.Errorf("failed to append ledger effect: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: balance update contention for user %s", ErrConflict, userID)
}

func (s *LedgerService) ensureBalance(tx *gorm.DB, userID string) (*models.UserBalance, error) {
	var balance models.UserBalance
	err := tx.Where("user_id = ?", userID).First(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	balance = models.UserBalance{
		ID:     uuid.NewString(),
		UserID: userID,
	}
	if err := tx.Create(&balance).Error; err != nil {
		// Another writer may have created the row first; reread.
		var existing models.UserBalance
		if rerr := tx.Where("user_id = ?", userID).First(&existing).Error; rerr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create balance row: %w", err)
	}
	return &balance, nil
}

// GetBalances returns the three sub-accounts, zeroes if the user has no
// ledger yet.
func (s *LedgerService) GetBalances(userID string) (*models.UserBalance, error) {
	var balance models.UserBalance
	if err := s.DB.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.UserBalance{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	return &balance, nil
}

// ApplySessionDelta is the game-session balance sync entry point: a signed
// delta against the withdrawable account, tagged with its own reason so it is
// distinguishable from deposits and withdrawals in the effect log.
func (s *LedgerService) ApplySessionDelta(userID string, delta float64, sessionID string) error {
	if delta == 0 {
		return nil
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if delta >= 0 {
			return s.Credit(tx, userID, models.AccountWithdrawable, delta, models.ReasonGameSession, sessionID)
		}
		err := s.Debit(tx, userID, models.AccountWithdrawable, -delta, models.ReasonGameSession, sessionID)
		if err != nil {
			log.Printf("[Ledger] session sync debit rejected for user %s: %v", userID, err)
		}
		return err
	})
}

// EffectSums recomputes each sub-account from the effect log. Audit/test
// helper backing the conservation invariant.
func (s *LedgerService) EffectSums(userID string) (map[models.BalanceAccount]float64, error) {
	var effects []models.LedgerEffect
	if err := s.DB.Where("user_id = ?", userID).Find(&effects).Error; err != nil {
		return nil, fmt.Errorf("failed to load effects: %w", err)
	}
	sums := map[models.BalanceAccount]float64{
		models.AccountWithdrawable: 0,
		models.AccountBonus:        0,
		models.AccountAffiliate:    0,
	}
	for i := range effects {
		sums[effects[i].Account] = round2(sums[effects[i].Account] + effects[i].Signed())
	}
	return sums, nil
}
