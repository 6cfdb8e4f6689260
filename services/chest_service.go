// services/chest_service.go
package services

import (
	"fmt"
	"time"

	"payment-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChestService derives chest state from qualified-referral counts and handles
// claims. Locked/unlocked are never stored — only claims persist, and the
// composite unique index on (affiliate, tier) makes "claimed" sticky.
type ChestService struct {
	DB        *gorm.DB
	Ledger    *LedgerService
	Referrals *ReferralService
}

func NewChestService(db *gorm.DB, ledger *LedgerService, referrals *ReferralService) *ChestService {
	return &ChestService{DB: db, Ledger: ledger, Referrals: referrals}
}

// ChestStatuses recomputes one view entry per configured tier.
func (s *ChestService) ChestStatuses(affiliateUserID string, cfg models.BonusConfig) ([]models.ChestView, error) {
	qualified, err := s.Referrals.QualifiedReferralCount(affiliateUserID)
	if err != nil {
		return nil, err
	}

	var claims []models.ChestClaim
	if err := s.DB.Where("affiliate_user_id = ?", affiliateUserID).Find(&claims).Error; err != nil {
		return nil, fmt.Errorf("failed to load chest claims: %w", err)
	}
	claimed := make(map[int]*models.ChestClaim, len(claims))
	for i := range claims {
		claimed[claims[i].TierLevel] = &claims[i]
	}

	views := make([]models.ChestView, 0, len(cfg.ChestTiers))
	for _, tier := range cfg.ChestTiers {
		view := models.ChestView{
			TierLevel:          tier.Level,
			ReferralsRequired:  tier.ReferralsRequired,
			RewardAmount:       tier.RewardAmount,
			Status:             models.ChestStatusLocked,
			QualifiedReferrals: qualified,
		}
		if claim, ok := claimed[tier.Level]; ok {
			view.Status = models.ChestStatusClaimed
			view.ClaimedAt = &claim.ClaimedAt
		} else if qualified >= int64(tier.ReferralsRequired) {
			view.Status = models.ChestStatusUnlocked
		}
		views = append(views, view)
	}
	return views, nil
}

// ClaimChest claims an unlocked tier: the claim row insert (unique per
// affiliate × tier) and the affiliate-balance credit commit together.
func (s *ChestService) ClaimChest(affiliateUserID string, tierLevel int, cfg models.BonusConfig) (*models.UserBalance, error) {
	var tier *models.ChestTier
	for i := range cfg.ChestTiers {
		if cfg.ChestTiers[i].Level == tierLevel {
			tier = &cfg.ChestTiers[i]
			break
		}
	}
	if tier == nil {
		return nil, fmt.Errorf("%w: chest tier %d", ErrNotFound, tierLevel)
	}

	qualified, err := s.Referrals.QualifiedReferralCount(affiliateUserID)
	if err != nil {
		return nil, err
	}
	if qualified < int64(tier.ReferralsRequired) {
		return nil, fmt.Errorf("%w: tier %d needs %d qualified referrals, have %d",
			ErrNotUnlocked, tierLevel, tier.ReferralsRequired, qualified)
	}

	claim := &models.ChestClaim{
		ID:              uuid.NewString(),
		AffiliateUserID: affiliateUserID,
		TierLevel:       tierLevel,
		RewardAmount:    tier.RewardAmount,
		ClaimedAt:       time.Now().UTC(),
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "affiliate_user_id"}, {Name: "tier_level"}},
			DoNothing: true,
		}).Create(claim)
		if res.Error != nil {
			return fmt.Errorf("failed to insert chest claim: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: chest tier %d", ErrAlreadyClaimed, tierLevel)
		}
		return s.Ledger.Credit(tx, affiliateUserID, models.AccountAffiliate,
			tier.RewardAmount, models.ReasonChestReward, claim.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Ledger.GetBalances(affiliateUserID)
}

// TransferAffiliateBalance moves funds from the affiliate pool to the
// withdrawable account as two paired effects under one correlation id.
func (s *ChestService) TransferAffiliateBalance(affiliateUserID string, amount float64) (*models.UserBalance, error) {
	if amount <= 0 {
		return nil, validationf("transfer amount must be positive")
	}

	balance, err := s.Ledger.GetBalances(affiliateUserID)
	if err != nil {
		return nil, err
	}
	if balance.Affiliate < amount {
		return nil, fmt.Errorf("%w: affiliate balance %.2f cannot cover %.2f",
			ErrInsufficientAffiliateBalance, balance.Affiliate, amount)
	}

	correlationID := uuid.NewString()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.Ledger.Debit(tx, affiliateUserID, models.AccountAffiliate,
			amount, models.ReasonAffiliateTransferOut, correlationID); err != nil {
			return err
		}
		return s.Ledger.Credit(tx, affiliateUserID, models.AccountWithdrawable,
			amount, models.ReasonAffiliateTransferIn, correlationID)
	})
	if err != nil {
		return nil, err
	}
	return s.Ledger.GetBalances(affiliateUserID)
}
