// models/chest.go
package models

import "time"

// ChestStatus is derived, not stored: locked/unlocked are recomputed from the
// qualified-referral count on every read. Only claims are persisted, which is
// what makes "claimed" sticky.
type ChestStatus string

const (
	ChestStatusLocked   ChestStatus = "locked"
	ChestStatusUnlocked ChestStatus = "unlocked"
	ChestStatusClaimed  ChestStatus = "claimed"
)

// ChestClaim marks one affiliate's claim of one chest tier. The composite
// unique index is the double-claim guard.
type ChestClaim struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateUserID string    `gorm:"not null;uniqueIndex:idx_chest_claim_user_tier" json:"affiliate_user_id"`
	TierLevel       int       `gorm:"not null;uniqueIndex:idx_chest_claim_user_tier" json:"tier_level"`
	RewardAmount    float64   `gorm:"not null" json:"reward_amount"`
	ClaimedAt       time.Time `json:"claimed_at"`
}

func (ChestClaim) TableName() string {
	return "chest_claims"
}

// ChestView is the read-model handed to clients: one entry per configured
// tier with the recomputed status.
type ChestView struct {
	TierLevel          int         `json:"tier_level"`
	ReferralsRequired  int         `json:"referrals_required"`
	RewardAmount       float64     `json:"reward_amount"`
	Status             ChestStatus `json:"status"`
	QualifiedReferrals int64       `json:"qualified_referrals"`
	ClaimedAt          *time.Time  `json:"claimed_at,omitempty"`
}
