// services/bonus.go
package services

import (
	"math"
	"sort"

	"payment-reward-system/models"
)

// round2 keeps monetary amounts at two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeBonusPercent selects the deposit bonus percentage. First deposits get
// the flat first-deposit percent. Otherwise the highest tier whose threshold
// is <= amount wins (inclusive lower bound); below the lowest tier the bonus
// is 0; above the highest tier the configured fallback percent applies, with a
// negative fallback meaning "cap at the top tier's percent".
func ComputeBonusPercent(amount float64, isFirstDeposit bool, cfg models.BonusConfig) float64 {
	if isFirstDeposit {
		return cfg.FirstDepositBonusPercent
	}
	if len(cfg.DepositTiers) == 0 {
		return 0
	}

	tiers := make([]models.BonusTier, len(cfg.DepositTiers))
	copy(tiers, cfg.DepositTiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Amount < tiers[j].Amount })

	if amount < tiers[0].Amount {
		return 0
	}
	top := tiers[len(tiers)-1]
	if amount > top.Amount {
		if cfg.FallbackBonusPercent >= 0 {
			return cfg.FallbackBonusPercent
		}
		return top.BonusPercent
	}

	percent := 0.0
	for _, tier := range tiers {
		if tier.Amount <= amount {
			percent = tier.BonusPercent
		}
	}
	return percent
}

// BonusAmount converts a percent into the credited bonus.
func BonusAmount(amount, percent float64) float64 {
	return round2(amount * percent / 100)
}
