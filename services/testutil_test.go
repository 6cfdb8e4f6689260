package services_test

import (
	"fmt"
	"testing"

	"payment-reward-system/models"
	"payment-reward-system/services"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a fresh in-memory database per test. The shared-cache DSN
// with a unique name keeps the database alive across pooled connections.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.UserBalance{},
		&models.LedgerEffect{},
		&models.Transaction{},
		&models.PayoutKey{},
		&models.AffiliateProfile{},
		&models.AffiliateReferralLink{},
		&models.AffiliateDepositRecord{},
		&models.ChestClaim{},
		&models.BonusSettings{},
		&models.BonusTier{},
		&models.ChestTier{},
		&models.TopAffiliateWindow{},
		&models.WindowPrize{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// engine bundles the fully wired service graph for scenario tests.
type engine struct {
	db           *gorm.DB
	ledger       *services.LedgerService
	config       *services.ConfigService
	referrals    *services.ReferralService
	commission   *services.CommissionService
	settlement   *services.SettlementService
	transactions *services.TransactionService
	chests       *services.ChestService
	ranking      *services.RankingService
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	db := newTestDB(t)
	ledger := services.NewLedgerService(db)
	config := services.NewConfigService(db)
	referrals := services.NewReferralService(db)
	commission := services.NewCommissionService(db, ledger, referrals, nil)
	settlement := services.NewSettlementService(db, ledger, commission, config, nil)
	return &engine{
		db:           db,
		ledger:       ledger,
		config:       config,
		referrals:    referrals,
		commission:   commission,
		settlement:   settlement,
		transactions: services.NewTransactionService(db, ledger),
		chests:       services.NewChestService(db, ledger, referrals),
		ranking:      services.NewRankingService(db),
	}
}

// seedConfig installs the standard test configuration used by the scenario
// tests: 20% first-deposit bonus, tiers [{10,0%},{20,2%}], qualification at
// deposits>=10 and bets>=100, chest tiers at 1 and 3 qualified referrals.
func (e *engine) seedConfig(t *testing.T) models.BonusConfig {
	t.Helper()

	if _, err := e.config.UpdateSettings(models.BonusSettings{
		FirstDepositBonusPercent: 20,
		FallbackBonusPercent:     -1,
		MinDepositAmount:         10,
		MaxDepositAmount:         100000,
		QualifyMinDeposit:        10,
		QualifyMinBet:            100,
		DepositTTLMinutes:        30,
	}); err != nil {
		t.Fatalf("failed to seed settings: %v", err)
	}
	if err := e.config.ReplaceDepositTiers([]models.BonusTier{
		{Amount: 10, BonusPercent: 0},
		{Amount: 20, BonusPercent: 2},
	}); err != nil {
		t.Fatalf("failed to seed deposit tiers: %v", err)
	}
	if err := e.config.ReplaceChestTiers([]models.ChestTier{
		{Level: 1, ReferralsRequired: 1, RewardAmount: 100},
		{Level: 2, ReferralsRequired: 3, RewardAmount: 500},
	}); err != nil {
		t.Fatalf("failed to seed chest tiers: %v", err)
	}

	cfg, err := e.config.Current()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// referUser wires affiliate → referred user and returns the affiliate's id.
func (e *engine) referUser(t *testing.T, affiliateID, referredID string, percent float64, allDeposits bool) {
	t.Helper()

	profile, err := e.referrals.EnsureProfile(affiliateID, "affiliate-"+affiliateID, percent, allDeposits)
	if err != nil {
		t.Fatalf("failed to create affiliate profile: %v", err)
	}
	if _, err := e.referrals.EstablishReferral(profile.ReferralCode, referredID); err != nil {
		t.Fatalf("failed to establish referral: %v", err)
	}
}

// settleDeposit creates a deposit and delivers the paid webhook for it.
func (e *engine) settleDeposit(t *testing.T, userID string, amount float64, cfg models.BonusConfig) *models.Transaction {
	t.Helper()

	txn, _, err := e.transactions.CreateDeposit(userID, amount, cfg)
	if err != nil {
		t.Fatalf("failed to create deposit: %v", err)
	}
	accepted, err := e.settlement.HandleWebhook(models.WebhookEvent{
		GatewayTransactionID: txn.GatewayTransactionID,
		Status:               "paid",
		Amount:               amount,
	})
	if err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	if !accepted {
		t.Fatal("webhook should be accepted")
	}

	settled, err := e.transactions.GetByGatewayID(txn.GatewayTransactionID)
	if err != nil {
		t.Fatalf("failed to reload transaction: %v", err)
	}
	return settled
}

// assertBalances checks the three sub-accounts and the conservation
// invariant: the balances must equal the effect-log sums.
func (e *engine) assertBalances(t *testing.T, userID string, withdrawable, bonus, affiliate float64) {
	t.Helper()

	balance, err := e.ledger.GetBalances(userID)
	if err != nil {
		t.Fatalf("failed to load balances: %v", err)
	}
	if balance.Withdrawable != withdrawable {
		t.Errorf("withdrawable = %.2f, want %.2f", balance.Withdrawable, withdrawable)
	}
	if balance.Bonus != bonus {
		t.Errorf("bonus = %.2f, want %.2f", balance.Bonus, bonus)
	}
	if balance.Affiliate != affiliate {
		t.Errorf("affiliate = %.2f, want %.2f", balance.Affiliate, affiliate)
	}

	sums, err := e.ledger.EffectSums(userID)
	if err != nil {
		t.Fatalf("failed to sum effects: %v", err)
	}
	if sums[models.AccountWithdrawable] != balance.Withdrawable ||
		sums[models.AccountBonus] != balance.Bonus ||
		sums[models.AccountAffiliate] != balance.Affiliate {
		t.Errorf("conservation violated: balances (%.2f, %.2f, %.2f) vs effect sums (%.2f, %.2f, %.2f)",
			balance.Withdrawable, balance.Bonus, balance.Affiliate,
			sums[models.AccountWithdrawable], sums[models.AccountBonus], sums[models.AccountAffiliate])
	}
}
