package services_test

import (
	"testing"
	"time"

	"payment-reward-system/models"
)

func seedWindow(t *testing.T, e *engine, minCommissionPercent float64) *models.TopAffiliateWindow {
	t.Helper()
	window, err := e.config.SetTopAffiliateWindow(models.TopAffiliateWindow{
		StartDate:            time.Now().Add(-time.Hour),
		EndDate:              time.Now().Add(time.Hour),
		MinCommissionPercent: minCommissionPercent,
		Prizes: []models.WindowPrize{
			{Position: 1, PrizeValue: 1000},
			{Position: 2, PrizeValue: 500},
		},
	})
	if err != nil {
		t.Fatalf("failed to set window: %v", err)
	}
	return window
}

func TestTopAffiliates(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	window := seedWindow(t, e, 0)

	// aff-1 referrals deposit 50+30, aff-2 referrals deposit 60, aff-3 has
	// no referred deposits in the window.
	e.referUser(t, "aff-1", "user-1", 50, true)
	e.referUser(t, "aff-1", "user-2", 50, true)
	e.referUser(t, "aff-2", "user-3", 50, true)
	e.referUser(t, "aff-3", "user-4", 50, true)

	e.settleDeposit(t, "user-1", 50, cfg)
	e.settleDeposit(t, "user-2", 30, cfg)
	e.settleDeposit(t, "user-3", 60, cfg)

	entries, err := e.ranking.TopAffiliates(window, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2 (affiliates without window deposits excluded)", len(entries))
	}
	if entries[0].AffiliateUserID != "aff-1" || entries[0].DepositTotal != 80 {
		t.Errorf("first = %s/%.2f, want aff-1/80", entries[0].AffiliateUserID, entries[0].DepositTotal)
	}
	if entries[1].AffiliateUserID != "aff-2" || entries[1].DepositTotal != 60 {
		t.Errorf("second = %s/%.2f, want aff-2/60", entries[1].AffiliateUserID, entries[1].DepositTotal)
	}
	if entries[0].Position != 1 || entries[1].Position != 2 {
		t.Errorf("positions = %d/%d, want 1/2", entries[0].Position, entries[1].Position)
	}
	if entries[0].PrizeValue != 1000 || entries[1].PrizeValue != 500 {
		t.Errorf("prizes = %.2f/%.2f, want 1000/500", entries[0].PrizeValue, entries[1].PrizeValue)
	}
}

func TestTopAffiliatesTieBreakAndPrizeExhaustion(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	window := seedWindow(t, e, 0)

	// Equal totals; aff-1's referred deposit settles first.
	e.referUser(t, "aff-1", "user-1", 50, true)
	e.referUser(t, "aff-2", "user-2", 50, true)
	e.referUser(t, "aff-3", "user-3", 50, true)

	e.settleDeposit(t, "user-1", 40, cfg)
	time.Sleep(5 * time.Millisecond)
	e.settleDeposit(t, "user-2", 40, cfg)
	time.Sleep(5 * time.Millisecond)
	e.settleDeposit(t, "user-3", 25, cfg)

	entries, err := e.ranking.TopAffiliates(window, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].AffiliateUserID != "aff-1" {
		t.Errorf("tie should rank the earlier deposit first, got %s", entries[0].AffiliateUserID)
	}
	if entries[1].AffiliateUserID != "aff-2" {
		t.Errorf("second = %s, want aff-2", entries[1].AffiliateUserID)
	}
	// Only two prize positions are configured.
	if entries[2].PrizeValue != 0 {
		t.Errorf("prize beyond table = %.2f, want 0", entries[2].PrizeValue)
	}
}

func TestTopAffiliatesEligibilityBar(t *testing.T) {
	e := newEngine(t)
	cfg := e.seedConfig(t)
	window := seedWindow(t, e, 40)

	e.referUser(t, "aff-high", "user-1", 50, true)
	e.referUser(t, "aff-low", "user-2", 10, true)

	e.settleDeposit(t, "user-1", 20, cfg)
	e.settleDeposit(t, "user-2", 90, cfg)

	entries, err := e.ranking.TopAffiliates(window, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].AffiliateUserID != "aff-high" {
		t.Fatalf("entries = %+v, want only aff-high", entries)
	}
}

func TestActiveWindowReplacement(t *testing.T) {
	e := newEngine(t)
	e.seedConfig(t)

	first := seedWindow(t, e, 0)
	second := seedWindow(t, e, 25)

	active, err := e.config.ActiveWindow()
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != second.ID {
		t.Errorf("active window = %s, want the latest (%s)", active.ID, second.ID)
	}
	if active.MinCommissionPercent != 25 {
		t.Errorf("min commission = %.2f, want 25", active.MinCommissionPercent)
	}
	if len(active.Prizes) != 2 {
		t.Errorf("prizes = %d, want 2 (preloaded)", len(active.Prizes))
	}

	var old models.TopAffiliateWindow
	if err := e.db.First(&old, "id = ?", first.ID).Error; err != nil {
		t.Fatal(err)
	}
	if old.Active {
		t.Error("previous window should have been deactivated")
	}
}
