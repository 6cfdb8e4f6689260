// workers/bet_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"payment-reward-system/services"
	"payment-reward-system/utils"
)

// BetTotal is the game service's aggregated wagering figure for one user.
// Totals are lifetime-monotonic upstream; the referral tracker enforces that
// again on write.
type BetTotal struct {
	UserID    string  `json:"user_id"`
	TotalBets float64 `json:"total_bets"`
	UpdatedAt string  `json:"updated_at"`
}

// BetSyncClient polls the game service for changed bet totals and feeds them
// into referral qualification.
type BetSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Referrals  *services.ReferralService
	Config     *services.ConfigService
}

func NewBetSyncClient(referrals *services.ReferralService, config *services.ConfigService) *BetSyncClient {
	baseURL := os.Getenv("SYNC_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("PAYMENT_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("PAYMENT_SERVICE_TOKEN environment variable is required for bet sync")
	}

	return &BetSyncClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
		Referrals:  referrals,
		Config:     config,
	}
}

func (c *BetSyncClient) GetChangedBetTotals(ctx context.Context, since time.Time) ([]BetTotal, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/bet-totals", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Totals []BetTotal `json:"totals"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}

	return response.Totals, nil
}

// PollBetTotals feeds changed bet totals into the referral tracker. The sync
// cursor only advances when the whole batch applied, so a failed tick retries
// the same window; reapplying a batch is safe because bet totals are
// monotonic.
func PollBetTotals(ctx context.Context, client *BetSyncClient, pollInterval time.Duration) {
	log.Println("Starting bet-total polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Bet-total polling stopped.")
			return
		case <-ticker.C:
			tickTime := time.Now().UTC()

			totals, err := client.GetChangedBetTotals(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling bet totals: %v", err)
				continue
			}
			if len(totals) == 0 {
				continue
			}

			cfg, err := client.Config.Current()
			if err != nil {
				log.Printf("❌ Failed to load bonus config for bet sync: %v", err)
				continue
			}

			failed := 0
			for _, total := range totals {
				if err := client.Referrals.RecordBets(total.UserID, total.TotalBets, cfg); err != nil {
					log.Printf("❌ Failed to record bets for user %s: %v", total.UserID, err)
					failed++
				}
			}
			if failed > 0 {
				// Retry the same window next tick.
				continue
			}

			lastSyncTime = tickTime
			log.Printf("✅ Applied %d bet total(s) from sync service.", len(totals))
		}
	}
}
