// services/referral_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"payment-reward-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ReferralService owns affiliate profiles, referral links and the
// qualification state machine. Accumulators only ever grow; the
// pending→qualified transition fires exactly once via a status CAS.
type ReferralService struct {
	DB *gorm.DB
}

func NewReferralService(db *gorm.DB) *ReferralService {
	return &ReferralService{DB: db}
}

// EnsureProfile creates the affiliate profile with a readable referral code
// derived from the username. Existing profiles are returned untouched.
func (s *ReferralService) EnsureProfile(userID, username string, depositBonusPercent float64, allDeposits bool) (*models.AffiliateProfile, error) {
	var existing models.AffiliateProfile
	err := s.DB.Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load affiliate profile: %w", err)
	}

	profile := &models.AffiliateProfile{
		ID:                  uuid.NewString(),
		UserID:              userID,
		ReferralCode:        makeReferralCode(username),
		DepositBonusPercent: depositBonusPercent,
		AllDeposits:         allDeposits,
	}
	if err := s.DB.Create(profile).Error; err != nil {
		return nil, fmt.Errorf("failed to create affiliate profile: %w", err)
	}
	return profile, nil
}

// makeReferralCode slugs the username and appends a short random suffix so
// codes stay unique without leaking user ids.
func makeReferralCode(username string) string {
	base := slug.Make(username)
	if base == "" {
		base = "ref"
	}
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return base + "-" + suffix
}

// EstablishReferral binds a new user to the affiliate owning the referral
// code. The link is created once; self-referrals and double binds are
// rejected.
func (s *ReferralService) EstablishReferral(referralCode, referredUserID string) (*models.AffiliateReferralLink, error) {
	var profile models.AffiliateProfile
	err := s.DB.Where("referral_code = ?", referralCode).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: referral code %s", ErrNotFound, referralCode)
		}
		return nil, fmt.Errorf("failed to load referral code: %w", err)
	}
	if profile.UserID == referredUserID {
		return nil, validationf("users cannot refer themselves")
	}

	var existing models.AffiliateReferralLink
	err = s.DB.Where("referred_user_id = ?", referredUserID).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: user %s is already referred", ErrConflict, referredUserID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check referral link: %w", err)
	}

	link := &models.AffiliateReferralLink{
		ID:              uuid.NewString(),
		AffiliateUserID: profile.UserID,
		ReferredUserID:  referredUserID,
		Status:          models.ReferralStatusPending,
	}
	if err := s.DB.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create referral link: %w", err)
	}
	return link, nil
}

// RecordDeposit raises the link's deposit accumulator inside the caller's DB
// transaction and re-evaluates qualification. Callers gate invocation on the
// deposit record insert, which keeps the accumulator exactly-once.
func (s *ReferralService) RecordDeposit(tx *gorm.DB, link *models.AffiliateReferralLink, amount float64, cfg models.BonusConfig) error {
	link.TotalDeposits = round2(link.TotalDeposits + amount)
	if err := tx.Model(&models.AffiliateReferralLink{}).
		Where("id = ?", link.ID).
		Update("total_deposits", link.TotalDeposits).Error; err != nil {
		return fmt.Errorf("failed to update deposit total: %w", err)
	}
	return s.evaluateQualification(tx, link, cfg)
}

// RecordBets sets the link's bet accumulator to the synced total. Totals are
// monotonic: a smaller incoming value (stale poll, upstream reset) never
// lowers the stored one.
func (s *ReferralService) RecordBets(referredUserID string, totalBets float64, cfg models.BonusConfig) error {
	var link models.AffiliateReferralLink
	err := s.DB.Where("referred_user_id = ?", referredUserID).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// User was not referred; bet totals are irrelevant here.
			return nil
		}
		return fmt.Errorf("failed to load referral link: %w", err)
	}
	if totalBets <= link.TotalBets {
		return nil
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AffiliateReferralLink{}).
			Where("id = ? AND total_bets < ?", link.ID, totalBets).
			Update("total_bets", totalBets)
		if res.Error != nil {
			return fmt.Errorf("failed to update bet total: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		link.TotalBets = totalBets
		return s.evaluateQualification(tx, &link, cfg)
	})
}

// evaluateQualification flips pending→qualified the first time both
// thresholds hold. The status filter in the update makes re-evaluation a
// no-op: an already-qualified link cannot transition again.
func (s *ReferralService) evaluateQualification(tx *gorm.DB, link *models.AffiliateReferralLink, cfg models.BonusConfig) error {
	if link.Status != models.ReferralStatusPending {
		return nil
	}
	if link.TotalDeposits < cfg.QualifyMinDeposit || link.TotalBets < cfg.QualifyMinBet {
		return nil
	}

	now := time.Now().UTC()
	res := tx.Model(&models.AffiliateReferralLink{}).
		Where("id = ? AND status = ?", link.ID, models.ReferralStatusPending).
		Updates(map[string]any{
			"status":       models.ReferralStatusQualified,
			"qualified_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to qualify referral: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		link.Status = models.ReferralStatusQualified
		link.QualifiedAt = &now
		log.Printf("[Referral] link %s qualified (deposits %.2f, bets %.2f)",
			link.ID, link.TotalDeposits, link.TotalBets)
	}
	return nil
}

// QualifiedReferralCount counts an affiliate's qualified (or rewarded)
// referrals; chest state derives from this number.
func (s *ReferralService) QualifiedReferralCount(affiliateUserID string) (int64, error) {
	var count int64
	err := s.DB.Model(&models.AffiliateReferralLink{}).
		Where("affiliate_user_id = ? AND status IN ?", affiliateUserID,
			[]models.ReferralStatus{models.ReferralStatusQualified, models.ReferralStatusRewarded}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count qualified referrals: %w", err)
	}
	return count, nil
}
