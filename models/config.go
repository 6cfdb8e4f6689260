// models/config.go
package models

import "time"

// BonusTier is one deposit-amount threshold. Tiers are kept sorted ascending
// by Amount; selection is inclusive on the lower bound.
type BonusTier struct {
	ID           string  `gorm:"primaryKey;type:uuid" json:"id"`
	Amount       float64 `gorm:"not null" json:"amount"`
	BonusPercent float64 `gorm:"not null" json:"bonus_percent"`
}

func (BonusTier) TableName() string {
	return "bonus_tiers"
}

// ChestTier is one referral-count reward threshold.
type ChestTier struct {
	ID                string  `gorm:"primaryKey;type:uuid" json:"id"`
	Level             int     `gorm:"uniqueIndex;not null" json:"level"`
	ReferralsRequired int     `gorm:"not null" json:"referrals_required"`
	RewardAmount      float64 `gorm:"not null" json:"reward_amount"`
}

func (ChestTier) TableName() string {
	return "chest_tiers"
}

// BonusSettings is the single admin-mutable settings row backing BonusConfig.
type BonusSettings struct {
	ID                       string  `gorm:"primaryKey;type:uuid" json:"id"`
	FirstDepositBonusPercent float64 `gorm:"not null;default:0" json:"first_deposit_bonus_percent"`
	// FallbackBonusPercent applies to deposits above the highest tier.
	// Negative means "cap at the top tier's percent".
	FallbackBonusPercent float64   `gorm:"not null;default:-1" json:"fallback_bonus_percent"`
	MinDepositAmount     float64   `gorm:"not null;default:0" json:"min_deposit_amount"`
	MaxDepositAmount     float64   `gorm:"not null;default:0" json:"max_deposit_amount"`
	QualifyMinDeposit    float64   `gorm:"not null;default:0" json:"qualify_min_deposit"`
	QualifyMinBet        float64   `gorm:"not null;default:0" json:"qualify_min_bet"`
	DepositTTLMinutes    int       `gorm:"not null;default:30" json:"deposit_ttl_minutes"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (BonusSettings) TableName() string {
	return "bonus_settings"
}

// BonusConfig is the assembled configuration value passed explicitly into
// every calculation. It is never read from ambient state, so tests can supply
// arbitrary configurations.
type BonusConfig struct {
	FirstDepositBonusPercent float64     `json:"first_deposit_bonus_percent"`
	FallbackBonusPercent     float64     `json:"fallback_bonus_percent"`
	MinDepositAmount         float64     `json:"min_deposit_amount"`
	MaxDepositAmount         float64     `json:"max_deposit_amount"`
	QualifyMinDeposit        float64     `json:"qualify_min_deposit"`
	QualifyMinBet            float64     `json:"qualify_min_bet"`
	DepositTTLMinutes        int         `json:"deposit_ttl_minutes"`
	DepositTiers             []BonusTier `json:"deposit_tiers"`
	ChestTiers               []ChestTier `json:"chest_tiers"`
}

// WindowPrize is the prize for one leaderboard position.
type WindowPrize struct {
	ID         string  `gorm:"primaryKey;type:uuid" json:"id"`
	WindowID   string  `gorm:"index;not null" json:"window_id"`
	Position   int     `gorm:"not null" json:"position"`
	PrizeValue float64 `gorm:"not null" json:"prize_value"`
}

func (WindowPrize) TableName() string {
	return "window_prizes"
}

// TopAffiliateWindow is the admin-configured leaderboard period. Rankings are
// always derived from AffiliateDepositRecord, never persisted.
type TopAffiliateWindow struct {
	ID                   string        `gorm:"primaryKey;type:uuid" json:"id"`
	StartDate            time.Time     `gorm:"not null" json:"start_date"`
	EndDate              time.Time     `gorm:"not null" json:"end_date"`
	MinCommissionPercent float64       `gorm:"not null;default:0" json:"min_commission_percent"`
	Active               bool          `gorm:"not null;default:true" json:"active"`
	Prizes               []WindowPrize `gorm:"foreignKey:WindowID" json:"prizes"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

func (TopAffiliateWindow) TableName() string {
	return "top_affiliate_windows"
}

// PrizeFor returns the prize for a 1-based rank, 0 beyond the table.
func (w *TopAffiliateWindow) PrizeFor(position int) float64 {
	for _, p := range w.Prizes {
		if p.Position == position {
			return p.PrizeValue
		}
	}
	return 0
}
