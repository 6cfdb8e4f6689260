package services_test

import (
	"errors"
	"testing"
	"time"

	"payment-reward-system/models"
	"payment-reward-system/services"
)

// Scenario A: referred user's first deposit of 50 with a 20% first-deposit
// bonus and a 50% first-deposit-only affiliate.
func TestSettlementEndToEnd(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	e.referUser(t, "aff-1", "user-1", 50, false)

	txn := e.settleDeposit(t, "user-1", 50, cfg)

	if txn.Status != models.TxStatusPaid {
		t.Errorf("status = %s, want paid", txn.Status)
	}
	if txn.PaidAt == nil {
		t.Error("paid_at should be set")
	}
	if !txn.EffectsComplete {
		t.Error("effects should be complete after settlement")
	}

	e.assertBalances(t, "user-1", 50, 10, 0)
	e.assertBalances(t, "aff-1", 25, 0, 0)

	var record models.AffiliateDepositRecord
	if err := e.db.Where("transaction_id = ?", txn.ID).First(&record).Error; err != nil {
		t.Fatalf("deposit record missing: %v", err)
	}
	if !record.IsFirstDeposit || record.BonusAmount != 25 {
		t.Errorf("record = {first: %t, bonus: %.2f}, want {true, 25}", record.IsFirstDeposit, record.BonusAmount)
	}
}

// Scenario B: a repeated paid webhook is a successful no-op.
func TestSettlementIdempotentWebhook(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	e.referUser(t, "aff-1", "user-1", 50, false)

	txn := e.settleDeposit(t, "user-1", 50, cfg)

	for i := 0; i < 3; i++ {
		accepted, err := e.settlement.HandleWebhook(models.WebhookEvent{
			GatewayTransactionID: txn.GatewayTransactionID,
			Status:               "paid",
		})
		if err != nil {
			t.Fatalf("duplicate webhook errored: %v", err)
		}
		if !accepted {
			t.Error("duplicate webhook should be accepted")
		}
	}

	e.assertBalances(t, "user-1", 50, 10, 0)
	e.assertBalances(t, "aff-1", 25, 0, 0)
}

// With AllDeposits=false the affiliate earns on the first settled deposit
// only; the second deposit still pays the user's own tier bonus.
func TestCommissionFirstDepositExclusivity(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	e.referUser(t, "aff-1", "user-1", 50, false)

	e.settleDeposit(t, "user-1", 50, cfg)
	e.settleDeposit(t, "user-1", 20, cfg)

	// Second deposit: 2% tier bonus (0.40), no affiliate commission.
	e.assertBalances(t, "user-1", 70, 10.40, 0)
	e.assertBalances(t, "aff-1", 25, 0, 0)

	// Audit record written even for the commission-free deposit.
	var records int64
	if err := e.db.Model(&models.AffiliateDepositRecord{}).
		Where("referred_user_id = ?", "user-1").Count(&records).Error; err != nil {
		t.Fatal(err)
	}
	if records != 2 {
		t.Errorf("deposit records = %d, want 2", records)
	}
}

func TestCommissionAllDeposits(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	e.referUser(t, "aff-1", "user-1", 10, true)

	e.settleDeposit(t, "user-1", 50, cfg)
	e.settleDeposit(t, "user-1", 50, cfg)

	// 10% of each of the two deposits.
	e.assertBalances(t, "aff-1", 10, 0, 0)
}

func TestWebhookUnknownTransaction(t *testing.T) {
	e := newEngine(t)
	e.seedConfig(t)

	accepted, err := e.settlement.HandleWebhook(models.WebhookEvent{
		GatewayTransactionID: "never-created",
		Status:               "paid",
	})
	if err != nil {
		t.Fatalf("unknown transaction webhook errored: %v", err)
	}
	if !accepted {
		t.Error("unknown transaction should be acknowledged")
	}

	// Settlement data must originate from a transaction this system created.
	var count int64
	if err := e.db.Model(&models.Transaction{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("transactions = %d, want 0", count)
	}
}

func TestWebhookUnknownStatus(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)

	txn, _, err := e.transactions.CreateDeposit("user-1", 50, cfg)
	if err != nil {
		t.Fatal(err)
	}

	accepted, err := e.settlement.HandleWebhook(models.WebhookEvent{
		GatewayTransactionID: txn.GatewayTransactionID,
		Status:               "definitely-not-a-status",
	})
	if err != nil || !accepted {
		t.Fatalf("unknown status should be acknowledged, got (%t, %v)", accepted, err)
	}

	reloaded, err := e.transactions.GetByGatewayID(txn.GatewayTransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.TxStatusPending {
		t.Errorf("status = %s, want pending", reloaded.Status)
	}
}

// A rerun of the reward pipeline (the reconciliation sweep) must not
// double-credit the bonus or the commission.
func TestReconcileDoesNotDoubleApply(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	e.referUser(t, "aff-1", "user-1", 50, false)

	txn := e.settleDeposit(t, "user-1", 50, cfg)

	// Simulate a crash between the paid commit and the completion mark.
	if err := e.db.Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		Update("effects_complete", false).Error; err != nil {
		t.Fatal(err)
	}

	repaired, err := e.settlement.ReconcileIncomplete(10)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired = %d, want 1", repaired)
	}

	e.assertBalances(t, "user-1", 50, 10, 0)
	e.assertBalances(t, "aff-1", 25, 0, 0)
}

func TestWithdrawRefundOnFailure(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)

	e.settleDeposit(t, "user-1", 100, cfg)

	key, err := e.transactions.RegisterPayoutKey("user-1", "upi", "user@bank")
	if err != nil {
		t.Fatal(err)
	}
	withdrawal, err := e.transactions.CreateWithdraw("user-1", 60, key.ID)
	if err != nil {
		t.Fatalf("failed to create withdrawal: %v", err)
	}

	// Hold debited up front.
	e.assertBalances(t, "user-1", 40, 20, 0)

	accepted, err := e.settlement.HandleWebhook(models.WebhookEvent{
		GatewayTransactionID: withdrawal.GatewayTransactionID,
		Status:               "failed",
	})
	if err != nil || !accepted {
		t.Fatalf("failed webhook not accepted: (%t, %v)", accepted, err)
	}

	// Hold refunded, nothing else moved.
	e.assertBalances(t, "user-1", 100, 20, 0)

	reloaded, err := e.transactions.GetByGatewayID(withdrawal.GatewayTransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.TxStatusFailed {
		t.Errorf("status = %s, want failed", reloaded.Status)
	}
}

func TestWithdrawPaidKeepsHold(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)

	e.settleDeposit(t, "user-1", 100, cfg)

	key, err := e.transactions.RegisterPayoutKey("user-1", "upi", "user@bank")
	if err != nil {
		t.Fatal(err)
	}
	withdrawal, err := e.transactions.CreateWithdraw("user-1", 60, key.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.settlement.HandleWebhook(models.WebhookEvent{
		GatewayTransactionID: withdrawal.GatewayTransactionID,
		Status:               "paid",
	}); err != nil {
		t.Fatal(err)
	}

	// Money left the system; the hold is not refunded.
	e.assertBalances(t, "user-1", 40, 20, 0)
}

func TestAdminOverrideReusesSettlementPath(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)

	txn, _, err := e.transactions.CreateDeposit("user-1", 50, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.settlement.Override(txn.GatewayTransactionID, "paid"); err != nil {
		t.Fatalf("override failed: %v", err)
	}
	// Re-running the override is the same idempotent no-op as a webhook.
	if err := e.settlement.Override(txn.GatewayTransactionID, "paid"); err != nil {
		t.Fatalf("repeated override failed: %v", err)
	}

	e.assertBalances(t, "user-1", 50, 10, 0)

	if err := e.settlement.Override("missing-id", "paid"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("override of unknown transaction = %v, want ErrNotFound", err)
	}
	if err := e.settlement.Override(txn.GatewayTransactionID, "nonsense"); !errors.Is(err, services.ErrValidation) {
		t.Errorf("override with bad status = %v, want ErrValidation", err)
	}
}

// memoryDedupe stands in for the Redis duplicate filter.
type memoryDedupe struct {
	seen map[string]bool
}

func (d *memoryDedupe) WebhookSeen(gatewayTxID, status string) bool {
	return d.seen[gatewayTxID+":"+status]
}

func (d *memoryDedupe) MarkWebhookSeen(gatewayTxID, status string) {
	d.seen[gatewayTxID+":"+status] = true
}

// A delivery that fails on infrastructure must stay retryable: the duplicate
// filter only records deliveries that actually settled, so the gateway's
// retry lands on the DB path and credits the deposit.
func TestWebhookRetryAfterTransientFailure(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	dedupe := &memoryDedupe{seen: map[string]bool{}}
	e.settlement.Dedupe = dedupe

	txn, _, err := e.transactions.CreateDeposit("user-1", 50, cfg)
	if err != nil {
		t.Fatal(err)
	}
	event := models.WebhookEvent{
		GatewayTransactionID: txn.GatewayTransactionID,
		Status:               "paid",
	}

	// Knock the transactions table out from under the first delivery.
	if err := e.db.Exec("ALTER TABLE transactions RENAME TO transactions_hidden").Error; err != nil {
		t.Fatal(err)
	}
	if _, err := e.settlement.HandleWebhook(event); err == nil {
		t.Fatal("delivery should fail while the database is unavailable")
	}
	if dedupe.WebhookSeen(txn.GatewayTransactionID, "paid") {
		t.Fatal("failed delivery must not be marked seen")
	}
	if err := e.db.Exec("ALTER TABLE transactions_hidden RENAME TO transactions").Error; err != nil {
		t.Fatal(err)
	}

	accepted, err := e.settlement.HandleWebhook(event)
	if err != nil || !accepted {
		t.Fatalf("retry after transient failure = (%t, %v), want settled", accepted, err)
	}
	e.assertBalances(t, "user-1", 50, 10, 0)

	// Only now is the delivery recorded, and repeats short-circuit.
	if !dedupe.WebhookSeen(txn.GatewayTransactionID, "paid") {
		t.Error("settled delivery should be marked seen")
	}
	accepted, err = e.settlement.HandleWebhook(event)
	if err != nil || !accepted {
		t.Fatalf("duplicate after settle = (%t, %v), want accepted", accepted, err)
	}
	e.assertBalances(t, "user-1", 50, 10, 0)
}

// Two deposits settling in the same instant must not both count as the
// user's first: the tie breaks deterministically and a first-deposit-only
// affiliate is paid once.
func TestFirstDepositTieBreak(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	e.referUser(t, "aff-1", "user-1", 50, false)

	a, _, err := e.transactions.CreateDeposit("user-1", 40, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := e.transactions.CreateDeposit("user-1", 40, cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Both paid at the exact same timestamp, reward pipeline still owed.
	paidAt := time.Now().UTC()
	for _, txn := range []*models.Transaction{a, b} {
		if err := e.db.Model(&models.Transaction{}).
			Where("id = ?", txn.ID).
			Updates(map[string]any{
				"status":           models.TxStatusPaid,
				"paid_at":          paidAt,
				"effects_complete": false,
			}).Error; err != nil {
			t.Fatal(err)
		}
	}

	repaired, err := e.settlement.ReconcileIncomplete(10)
	if err != nil {
		t.Fatal(err)
	}
	if repaired != 2 {
		t.Fatalf("repaired = %d, want 2", repaired)
	}

	var firsts int64
	if err := e.db.Model(&models.AffiliateDepositRecord{}).
		Where("referred_user_id = ? AND is_first_deposit = ?", "user-1", true).
		Count(&firsts).Error; err != nil {
		t.Fatal(err)
	}
	if firsts != 1 {
		t.Errorf("first-deposit records = %d, want exactly 1", firsts)
	}

	// One 50% commission on 40, not two.
	e.assertBalances(t, "aff-1", 20, 0, 0)
}
