// services/ranking_service.go
package services

import (
	"fmt"
	"sort"
	"time"

	"payment-reward-system/models"

	"gorm.io/gorm"
)

// RankingService computes the top-affiliate leaderboard for the configured
// window. It is a full scan over AffiliateDepositRecord on every call:
// rankings are derived, never persisted, so the hot settlement path never
// contends with leaderboard writes.
type RankingService struct {
	DB *gorm.DB
}

func NewRankingService(db *gorm.DB) *RankingService {
	return &RankingService{DB: db}
}

// RankingEntry is one leaderboard row.
type RankingEntry struct {
	Position        int     `json:"position"`
	AffiliateUserID string  `json:"affiliate_user_id"`
	DepositTotal    float64 `json:"deposit_total"`
	PrizeValue      float64 `json:"prize_value"`

	firstAt time.Time
}

// TopAffiliates aggregates per-affiliate deposit totals inside the window,
// keeps affiliates whose commission percent meets the window's eligibility
// bar, sorts descending by total with earliest-deposit tie-break, and looks
// prizes up from the window's prize table (0 beyond the configured
// positions).
func (s *RankingService) TopAffiliates(window *models.TopAffiliateWindow, limit int) ([]RankingEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var records []models.AffiliateDepositRecord
	err := s.DB.Where("created_at >= ? AND created_at <= ?", window.StartDate, window.EndDate).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan deposit records: %w", err)
	}
	if len(records) == 0 {
		return []RankingEntry{}, nil
	}

	eligible, err := s.eligibleAffiliates(window.MinCommissionPercent)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]*RankingEntry)
	for i := range records {
		rec := &records[i]
		if !eligible[rec.AffiliateUserID] {
			continue
		}
		entry, ok := totals[rec.AffiliateUserID]
		if !ok {
			entry = &RankingEntry{
				AffiliateUserID: rec.AffiliateUserID,
				firstAt:         rec.CreatedAt,
			}
			totals[rec.AffiliateUserID] = entry
		}
		entry.DepositTotal = round2(entry.DepositTotal + rec.DepositAmount)
		if rec.CreatedAt.Before(entry.firstAt) {
			entry.firstAt = rec.CreatedAt
		}
	}

	entries := make([]RankingEntry, 0, len(totals))
	for _, entry := range totals {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DepositTotal != entries[j].DepositTotal {
			return entries[i].DepositTotal > entries[j].DepositTotal
		}
		return entries[i].firstAt.Before(entries[j].firstAt)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Position = i + 1
		entries[i].PrizeValue = window.PrizeFor(i + 1)
	}
	return entries, nil
}

func (s *RankingService) eligibleAffiliates(minCommissionPercent float64) (map[string]bool, error) {
	var profiles []models.AffiliateProfile
	err := s.DB.Where("deposit_bonus_percent >= ?", minCommissionPercent).
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible affiliates: %w", err)
	}
	eligible := make(map[string]bool, len(profiles))
	for i := range profiles {
		eligible[profiles[i].UserID] = true
	}
	return eligible, nil
}
