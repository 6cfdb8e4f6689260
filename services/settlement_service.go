// services/settlement_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"payment-reward-system/models"

	"gorm.io/gorm"
)

// SettlementService converts gateway webhook events into exactly-once balance
// effects. The single idempotency mechanism is the CAS on the transaction's
// status keyed by GatewayTransactionID: the durable commit point is the
// status flip plus the principal effect in one DB transaction. The downstream
// reward pipeline runs after the commit and is independently idempotent, so a
// partial failure is repaired by the reconciliation sweep, never by replaying
// the webhook through a different code path.
type SettlementService struct {
	DB         *gorm.DB
	Ledger     *LedgerService
	Commission *CommissionService
	Config     *ConfigService

	// Optional fast path in front of the DB CAS. A delivery is marked seen
	// only after it settled, so a transient failure never absorbs the
	// gateway's retries.
	Dedupe WebhookDedupe

	// Serializes settlement per gateway transaction id within this process.
	// Each user's ledger has a single logical owner, so no cross-node
	// coordination is needed; the DB CAS stays authoritative regardless.
	locks sync.Map
}

// WebhookDedupe suppresses repeat webhook deliveries without a DB roundtrip.
// Implementations must only ever report seen for deliveries that settled.
type WebhookDedupe interface {
	WebhookSeen(gatewayTxID, status string) bool
	MarkWebhookSeen(gatewayTxID, status string)
}

func NewSettlementService(db *gorm.DB, ledger *LedgerService, commission *CommissionService, config *ConfigService, cache *RedisCache) *SettlementService {
	s := &SettlementService{
		DB:         db,
		Ledger:     ledger,
		Commission: commission,
		Config:     config,
	}
	if cache != nil {
		s.Dedupe = cache
	}
	return s
}

func (s *SettlementService) lockFor(gatewayTxID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(gatewayTxID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// mapGatewayStatus normalizes the gateway's status vocabulary onto the
// internal enum. Unknown statuses map to "" and are acknowledged untouched.
func mapGatewayStatus(status string) models.TxStatus {
	switch status {
	case "paid", "success", "completed":
		return models.TxStatusPaid
	case "failed", "error", "rejected":
		return models.TxStatusFailed
	case "cancelled", "canceled":
		return models.TxStatusCancelled
	case "processing", "in_progress":
		return models.TxStatusProcessing
	}
	return ""
}

// HandleWebhook is the at-least-once ingestion point. It always answers
// "accepted" for events it can safely ignore: unknown transaction ids (we
// never manufacture transactions from gateway input), already-terminal
// transactions, and unknown statuses. Only infrastructure failures error.
func (s *SettlementService) HandleWebhook(event models.WebhookEvent) (bool, error) {
	if event.GatewayTransactionID == "" {
		return false, validationf("gateway_transaction_id is required")
	}

	target := mapGatewayStatus(event.Status)
	if target == "" {
		log.Printf("[Settlement] ignoring unknown gateway status %q for %s", event.Status, event.GatewayTransactionID)
		return true, nil
	}

	// Fast-path: an (id, status) pair that already settled is dropped
	// without touching the DB. Purely an optimization; the status CAS below
	// is what actually guarantees exactly-once.
	if s.Dedupe != nil && s.Dedupe.WebhookSeen(event.GatewayTransactionID, event.Status) {
		log.Printf("[Settlement] duplicate webhook for %s (%s), fast-path no-op", event.GatewayTransactionID, event.Status)
		return true, nil
	}

	var txn models.Transaction
	err := s.DB.Where("gateway_transaction_id = ?", event.GatewayTransactionID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Settlement] webhook for unknown transaction %s, acknowledged without effect", event.GatewayTransactionID)
			return true, nil
		}
		return false, fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn.Status.Terminal() {
		return true, nil
	}

	if err := s.Settle(event.GatewayTransactionID, target); err != nil {
		return false, err
	}
	if s.Dedupe != nil {
		s.Dedupe.MarkWebhookSeen(event.GatewayTransactionID, event.Status)
	}
	return true, nil
}

// Override is the admin entry point for manual status corrections. It maps
// the requested status and re-enters Settle — the same idempotent path a
// webhook takes — so an override can never double-apply effects. Unlike the
// webhook path, unknown transactions and statuses are reported, not absorbed.
func (s *SettlementService) Override(gatewayTxID, status string) error {
	target := mapGatewayStatus(status)
	if target == "" {
		return validationf("unknown status %q", status)
	}
	return s.Settle(gatewayTxID, target)
}

// Settle advances a transaction to the target status. Admin overrides call
// this exact path, so there is no second way to move money.
func (s *SettlementService) Settle(gatewayTxID string, target models.TxStatus) error {
	mu := s.lockFor(gatewayTxID)
	mu.Lock()
	defer mu.Unlock()

	var txn models.Transaction
	if err := s.DB.Where("gateway_transaction_id = ?", gatewayTxID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: transaction %s", ErrNotFound, gatewayTxID)
		}
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn.Status == target {
		return nil
	}
	if !models.CanTransition(txn.Type, txn.Status, target) {
		if txn.Status.Terminal() {
			// Repeated delivery after settlement: success as a no-op.
			return nil
		}
		return fmt.Errorf("%w: cannot move %s transaction from %s to %s",
			ErrConflict, txn.Type, txn.Status, target)
	}

	paidAt := time.Now().UTC()
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": target}
		if target == models.TxStatusPaid {
			updates["paid_at"] = paidAt
			updates["effects_complete"] = txn.Type == models.TxTypeWithdraw
		}

		// Transaction lock first, then the balance row: the CAS on status
		// is the exactly-once gate for everything below.
		res := tx.Model(&models.Transaction{}).
			Where("gateway_transaction_id = ? AND status IN ?", gatewayTxID,
				[]models.TxStatus{models.TxStatusPending, models.TxStatusProcessing}).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race to a concurrent settlement; nothing to do.
			return nil
		}

		switch {
		case target == models.TxStatusPaid && txn.Type == models.TxTypeDeposit:
			// Durable commit point: principal credit rides in the same DB
			// transaction as the status flip.
			if err := s.Ledger.Credit(tx, txn.UserID, models.AccountWithdrawable,
				txn.NetAmount, models.ReasonDepositPrincipal, txn.ID); err != nil {
				return err
			}
		case (target == models.TxStatusFailed || target == models.TxStatusCancelled) && txn.Type == models.TxTypeWithdraw:
			// Give the held funds back.
			if err := s.Ledger.Credit(tx, txn.UserID, models.AccountWithdrawable,
				txn.Amount, models.ReasonWithdrawRefund, txn.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if target == models.TxStatusPaid && txn.Type == models.TxTypeDeposit {
		txn.Status = models.TxStatusPaid
		txn.PaidAt = &paidAt
		if err := s.runDepositPipeline(&txn); err != nil {
			// The paid commit stands; the reconciliation sweep retries the
			// pipeline until it completes.
			log.Printf("[Settlement] reward pipeline incomplete for %s: %v", txn.ID, err)
			return nil
		}
	}
	return nil
}

// runDepositPipeline applies the downstream effects of a paid deposit: the
// deposit bonus, the affiliate commission, and referral qualification. Each
// step carries its own idempotency guard, so the pipeline can rerun safely.
// Chest state is derived from qualified-referral counts and needs no write
// here. EffectsComplete flips only once every step succeeded.
func (s *SettlementService) runDepositPipeline(txn *models.Transaction) error {
	cfg, err := s.Config.Current()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	first, err := s.isFirstSettledDeposit(txn)
	if err != nil {
		return err
	}

	if err := s.applyDepositBonus(txn, first, cfg); err != nil {
		return err
	}
	if err := s.Commission.ApplyCommission(txn, first, cfg); err != nil {
		return err
	}

	if err := s.DB.Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		Update("effects_complete", true).Error; err != nil {
		return fmt.Errorf("failed to mark effects complete: %w", err)
	}
	return nil
}

// isFirstSettledDeposit reports whether no other deposit of this user settled
// before this one. Equal paid_at timestamps break the tie on id, so exactly
// one deposit can ever count as first.
func (s *SettlementService) isFirstSettledDeposit(txn *models.Transaction) (bool, error) {
	var prior int64
	err := s.DB.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ? AND status = ? AND (paid_at < ? OR (paid_at = ? AND id < ?))",
			txn.UserID, models.TxTypeDeposit, models.TxStatusPaid, txn.PaidAt, txn.PaidAt, txn.ID).
		Count(&prior).Error
	if err != nil {
		return false, fmt.Errorf("failed to count settled deposits: %w", err)
	}
	return prior == 0, nil
}

// applyDepositBonus credits the promotional bonus exactly once per deposit,
// guarded by the effect log: a deposit_bonus effect correlated to this
// transaction means the credit already happened.
func (s *SettlementService) applyDepositBonus(txn *models.Transaction, first bool, cfg models.BonusConfig) error {
	percent := ComputeBonusPercent(txn.Amount, first, cfg)
	amount := BonusAmount(txn.Amount, percent)
	if amount <= 0 {
		return nil
	}

	var existing int64
	err := s.DB.Model(&models.LedgerEffect{}).
		Where("reason = ? AND correlation_id = ?", models.ReasonDepositBonus, txn.ID).
		Count(&existing).Error
	if err != nil {
		return fmt.Errorf("failed to check bonus effect: %w", err)
	}
	if existing > 0 {
		return nil
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		return s.Ledger.Credit(tx, txn.UserID, models.AccountBonus, amount, models.ReasonDepositBonus, txn.ID)
	})
}

// ReconcileIncomplete re-runs the reward pipeline for paid deposits whose
// downstream effects did not finish. This sweep is the only repair path for
// partial pipeline failure.
func (s *SettlementService) ReconcileIncomplete(limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	var txns []models.Transaction
	err := s.DB.Where("type = ? AND status = ? AND effects_complete = ?",
		models.TxTypeDeposit, models.TxStatusPaid, false).
		Order("paid_at ASC").Limit(limit).Find(&txns).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list incomplete settlements: %w", err)
	}

	repaired := 0
	for i := range txns {
		txn := txns[i]
		mu := s.lockFor(txn.GatewayTransactionID)
		mu.Lock()
		err := s.runDepositPipeline(&txn)
		mu.Unlock()
		if err != nil {
			log.Printf("[Settlement] reconcile failed for %s: %v", txn.ID, err)
			continue
		}
		repaired++
	}
	if repaired > 0 {
		log.Printf("[Settlement] reconciled %d incomplete settlement(s)", repaired)
	}
	return repaired, nil
}
