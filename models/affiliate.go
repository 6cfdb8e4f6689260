// models/affiliate.go
package models

import "time"

// ReferralStatus tracks a referred user's qualification progress.
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusQualified ReferralStatus = "qualified"
	ReferralStatusRewarded  ReferralStatus = "rewarded"
)

// AffiliateProfile holds a user's affiliate settings. DepositBonusPercent is
// the commission rate on referred deposits; AllDeposits decides whether every
// settled deposit pays commission or only the referred user's first one.
type AffiliateProfile struct {
	ID                  string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID              string    `gorm:"uniqueIndex;not null" json:"user_id"`
	ReferralCode        string    `gorm:"uniqueIndex;not null" json:"referral_code"`
	DepositBonusPercent float64   `gorm:"not null;default:0" json:"deposit_bonus_percent"`
	AllDeposits         bool      `gorm:"not null;default:false" json:"all_deposits"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (AffiliateProfile) TableName() string {
	return "affiliate_profiles"
}

// AffiliateReferralLink ties a referred user to the affiliate who brought
// them in. Created once; the accumulators only ever grow.
type AffiliateReferralLink struct {
	ID              string         `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateUserID string         `gorm:"index;not null" json:"affiliate_user_id"`
	ReferredUserID  string         `gorm:"uniqueIndex;not null" json:"referred_user_id"`
	Status          ReferralStatus `gorm:"not null;index" json:"status"`
	TotalDeposits   float64        `gorm:"not null;default:0" json:"total_deposits"`
	TotalBets       float64        `gorm:"not null;default:0" json:"total_bets"`
	QualifiedAt     *time.Time     `json:"qualified_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (AffiliateReferralLink) TableName() string {
	return "affiliate_referral_links"
}

// AffiliateDepositRecord is the append-only audit trail of commission
// decisions. The unique TransactionID guarantees at-most-once commission per
// settled deposit; a row is written even when BonusAmount is 0.
type AffiliateDepositRecord struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateUserID string    `gorm:"index;not null" json:"affiliate_user_id"`
	ReferredUserID  string    `gorm:"index;not null" json:"referred_user_id"`
	TransactionID   string    `gorm:"uniqueIndex;not null" json:"transaction_id"`
	DepositAmount   float64   `gorm:"not null" json:"deposit_amount"`
	IsFirstDeposit  bool      `gorm:"not null" json:"is_first_deposit"`
	BonusPercent    float64   `gorm:"not null" json:"bonus_percent"`
	BonusAmount     float64   `gorm:"not null" json:"bonus_amount"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

func (AffiliateDepositRecord) TableName() string {
	return "affiliate_deposit_records"
}
