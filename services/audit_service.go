// services/audit_service.go
package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"time"

	"payment-reward-system/models"
	"payment-reward-system/utils"

	"gorm.io/gorm"
)

// AuditService exports the effect log for offline reconciliation. One CSV per
// day, uploaded to R2 under ledger-exports/.
type AuditService struct {
	DB *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{DB: db}
}

// ExportDay writes every ledger effect of the given UTC day to a CSV and
// uploads it. Re-running simply overwrites the same object key.
func (s *AuditService) ExportDay(day time.Time) (string, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var effects []models.LedgerEffect
	err := s.DB.Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at ASC").Find(&effects).Error
	if err != nil {
		return "", fmt.Errorf("failed to load effects for export: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "user_id", "account", "direction", "amount", "reason", "correlation_id", "created_at"})
	for i := range effects {
		e := &effects[i]
		_ = w.Write([]string{
			e.ID,
			e.UserID,
			string(e.Account),
			string(e.Direction),
			strconv.FormatFloat(e.Amount, 'f', 2, 64),
			string(e.Reason),
			e.CorrelationID,
			e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write export csv: %w", err)
	}

	key := fmt.Sprintf("ledger-exports/%s.csv", start.Format("2006-01-02"))
	url, err := utils.UploadBytesToR2(key, "text/csv", buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	log.Printf("[Audit] exported %d effect(s) to %s", len(effects), key)
	return url, nil
}
