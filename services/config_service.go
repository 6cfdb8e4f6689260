// services/config_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"payment-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConfigService assembles the admin-mutable bonus configuration into the
// BonusConfig value that every calculation receives explicitly. Nothing reads
// configuration ambiently.
type ConfigService struct {
	DB *gorm.DB
}

func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{DB: db}
}

// Current loads the settings row plus tier tables. A missing settings row is
// non-fatal: the engine degrades to zero bonuses rather than blocking
// settlement.
func (s *ConfigService) Current() (models.BonusConfig, error) {
	cfg := models.BonusConfig{DepositTTLMinutes: 30}

	var settings models.BonusSettings
	if err := s.DB.First(&settings).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return cfg, fmt.Errorf("failed to load bonus settings: %w", err)
		}
		log.Printf("[Config] no bonus settings row, using zero-bonus defaults")
		cfg.FallbackBonusPercent = -1
	} else {
		cfg.FirstDepositBonusPercent = settings.FirstDepositBonusPercent
		cfg.FallbackBonusPercent = settings.FallbackBonusPercent
		cfg.MinDepositAmount = settings.MinDepositAmount
		cfg.MaxDepositAmount = settings.MaxDepositAmount
		cfg.QualifyMinDeposit = settings.QualifyMinDeposit
		cfg.QualifyMinBet = settings.QualifyMinBet
		if settings.DepositTTLMinutes > 0 {
			cfg.DepositTTLMinutes = settings.DepositTTLMinutes
		}
	}

	if err := s.DB.Order("amount ASC").Find(&cfg.DepositTiers).Error; err != nil {
		return cfg, fmt.Errorf("failed to load bonus tiers: %w", err)
	}
	if err := s.DB.Order("level ASC").Find(&cfg.ChestTiers).Error; err != nil {
		return cfg, fmt.Errorf("failed to load chest tiers: %w", err)
	}
	return cfg, nil
}

// UpdateSettings upserts the singleton settings row.
func (s *ConfigService) UpdateSettings(settings models.BonusSettings) (*models.BonusSettings, error) {
	var existing models.BonusSettings
	err := s.DB.First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		settings.ID = uuid.NewString()
		if err := s.DB.Create(&settings).Error; err != nil {
			return nil, fmt.Errorf("failed to create bonus settings: %w", err)
		}
		return &settings, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load bonus settings: %w", err)
	}

	settings.ID = existing.ID
	if err := s.DB.Save(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to update bonus settings: %w", err)
	}
	return &settings, nil
}

// ReplaceDepositTiers swaps the whole tier table; tiers are stored sorted.
func (s *ConfigService) ReplaceDepositTiers(tiers []models.BonusTier) error {
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Amount < tiers[j].Amount })
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.BonusTier{}).Error; err != nil {
			return fmt.Errorf("failed to clear bonus tiers: %w", err)
		}
		for i := range tiers {
			tiers[i].ID = uuid.NewString()
		}
		if len(tiers) == 0 {
			return nil
		}
		if err := tx.Create(&tiers).Error; err != nil {
			return fmt.Errorf("failed to insert bonus tiers: %w", err)
		}
		return nil
	})
}

// ReplaceChestTiers swaps the chest tier table.
func (s *ConfigService) ReplaceChestTiers(tiers []models.ChestTier) error {
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Level < tiers[j].Level })
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ChestTier{}).Error; err != nil {
			return fmt.Errorf("failed to clear chest tiers: %w", err)
		}
		for i := range tiers {
			tiers[i].ID = uuid.NewString()
		}
		if len(tiers) == 0 {
			return nil
		}
		if err := tx.Create(&tiers).Error; err != nil {
			return fmt.Errorf("failed to insert chest tiers: %w", err)
		}
		return nil
	})
}

// SetTopAffiliateWindow deactivates the previous window and installs the new
// one with its prize table.
func (s *ConfigService) SetTopAffiliateWindow(window models.TopAffiliateWindow) (*models.TopAffiliateWindow, error) {
	if !window.EndDate.After(window.StartDate) {
		return nil, validationf("window end date must be after start date")
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.TopAffiliateWindow{}).
			Where("active = ?", true).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate windows: %w", err)
		}
		window.ID = uuid.NewString()
		window.Active = true
		for i := range window.Prizes {
			window.Prizes[i].ID = uuid.NewString()
			window.Prizes[i].WindowID = window.ID
		}
		if err := tx.Create(&window).Error; err != nil {
			return fmt.Errorf("failed to create window: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &window, nil
}

// ActiveWindow returns the current leaderboard window with prizes preloaded.
func (s *ConfigService) ActiveWindow() (*models.TopAffiliateWindow, error) {
	var window models.TopAffiliateWindow
	err := s.DB.Preload("Prizes").Where("active = ?", true).
		Order("created_at DESC").First(&window).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no active top-affiliate window", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load window: %w", err)
	}
	return &window, nil
}
