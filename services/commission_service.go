// services/commission_service.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"payment-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommissionService credits the referring affiliate on qualifying settled
// deposits. The unique AffiliateDepositRecord.TransactionID is the
// at-most-once guard: the insert either claims the deposit or the whole call
// is a no-op, so repeated pipeline runs cannot double-pay.
type CommissionService struct {
	DB        *gorm.DB
	Ledger    *LedgerService
	Referrals *ReferralService
	Cache     *RedisCache
}

func NewCommissionService(db *gorm.DB, ledger *LedgerService, referrals *ReferralService, cache *RedisCache) *CommissionService {
	return &CommissionService{DB: db, Ledger: ledger, Referrals: referrals, Cache: cache}
}

// ApplyCommission runs once per settled deposit. A record is written even
// when the computed commission is 0 so the audit trail is complete; the
// referral link's deposit accumulator and qualification state advance only
// when the record was actually inserted.
func (s *CommissionService) ApplyCommission(txn *models.Transaction, isFirstDeposit bool, cfg models.BonusConfig) error {
	var link models.AffiliateReferralLink
	err := s.DB.Where("referred_user_id = ?", txn.UserID).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Not a referred user; nothing to pay.
			return nil
		}
		return fmt.Errorf("failed to load referral link: %w", err)
	}

	var profile models.AffiliateProfile
	err = s.DB.Where("user_id = ?", link.AffiliateUserID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Commission] referral link %s has no affiliate profile, skipping", link.ID)
			return nil
		}
		return fmt.Errorf("failed to load affiliate profile: %w", err)
	}

	percent := profile.DepositBonusPercent
	eligible := percent > 0 && (profile.AllDeposits || isFirstDeposit)
	amount := 0.0
	if eligible {
		amount = round2(txn.Amount * percent / 100)
	}

	record := &models.AffiliateDepositRecord{
		ID:              uuid.NewString(),
		AffiliateUserID: link.AffiliateUserID,
		ReferredUserID:  txn.UserID,
		TransactionID:   txn.ID,
		DepositAmount:   txn.Amount,
		IsFirstDeposit:  isFirstDeposit,
		BonusPercent:    percent,
		BonusAmount:     amount,
		CreatedAt:       time.Now().UTC(),
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).Create(record)
		if res.Error != nil {
			return fmt.Errorf("failed to insert deposit record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Deposit already processed on an earlier run.
			return nil
		}

		if amount > 0 {
			if err := s.Ledger.Credit(tx, link.AffiliateUserID, models.AccountWithdrawable,
				amount, models.ReasonAffiliateCommission, txn.ID); err != nil {
				return err
			}
			log.Printf("[Commission] affiliate %s earned %.2f on deposit %s", link.AffiliateUserID, amount, txn.ID)
		}

		return s.Referrals.RecordDeposit(tx, &link, txn.Amount, cfg)
	})
}

// AffiliateStatsResult aggregates an affiliate's referral performance over a
// period.
type AffiliateStatsResult struct {
	AffiliateUserID    string  `json:"affiliate_user_id"`
	ReferralCount      int64   `json:"referral_count"`
	QualifiedReferrals int64   `json:"qualified_referrals"`
	DepositTotal       float64 `json:"deposit_total"`
	CommissionEarned   float64 `json:"commission_earned"`
	From               string  `json:"from"`
	To                 string  `json:"to"`
}

// AffiliateStats computes the aggregated metrics for one affiliate within
// [from, to]. Results are cached briefly when Redis is wired since the stats
// page polls.
func (s *CommissionService) AffiliateStats(userID string, from, to time.Time) (*AffiliateStatsResult, error) {
	if s.Cache != nil {
		if cached, ok := s.Cache.GetAffiliateStats(userID, from, to); ok {
			var result AffiliateStatsResult
			if err := json.Unmarshal(cached, &result); err == nil {
				return &result, nil
			}
		}
	}

	result := &AffiliateStatsResult{
		AffiliateUserID: userID,
		From:            from.Format(time.RFC3339),
		To:              to.Format(time.RFC3339),
	}

	if err := s.DB.Model(&models.AffiliateReferralLink{}).
		Where("affiliate_user_id = ?", userID).
		Count(&result.ReferralCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}
	if err := s.DB.Model(&models.AffiliateReferralLink{}).
		Where("affiliate_user_id = ? AND status IN ?", userID,
			[]models.ReferralStatus{models.ReferralStatusQualified, models.ReferralStatusRewarded}).
		Count(&result.QualifiedReferrals).Error; err != nil {
		return nil, fmt.Errorf("failed to count qualified referrals: %w", err)
	}

	type sums struct {
		DepositTotal     float64
		CommissionEarned float64
	}
	var agg sums
	err := s.DB.Model(&models.AffiliateDepositRecord{}).
		Select("COALESCE(SUM(deposit_amount),0) AS deposit_total, COALESCE(SUM(bonus_amount),0) AS commission_earned").
		Where("affiliate_user_id = ? AND created_at >= ? AND created_at <= ?", userID, from, to).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate deposit records: %w", err)
	}
	result.DepositTotal = round2(agg.DepositTotal)
	result.CommissionEarned = round2(agg.CommissionEarned)

	if s.Cache != nil {
		if data, err := json.Marshal(result); err == nil {
			s.Cache.SetAffiliateStats(userID, from, to, data)
		}
	}
	return result, nil
}
