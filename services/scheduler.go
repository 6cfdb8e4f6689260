// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweeps launches the background jobs that keep the ledger consistent:
// deposit expiry, settlement reconciliation, and the daily audit export.
func StartSweeps(transactions *TransactionService, settlement *SettlementService, audit *AuditService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: terminate pending deposits past their deadline.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if _, err := transactions.ExpireDeposits(time.Now().UTC()); err != nil {
				log.Printf("[Scheduler] deposit expiry failed: %v", err)
			}
		}),
	)

	// Every minute: re-run the reward pipeline for paid deposits whose
	// downstream effects did not finish.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if _, err := settlement.ReconcileIncomplete(50); err != nil {
				log.Printf("[Scheduler] reconciliation failed: %v", err)
			}
		}),
	)

	// Daily: export yesterday's effect log for offline reconciliation.
	_, _ = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 15, 0))),
		gocron.NewTask(func() {
			yesterday := time.Now().UTC().Add(-24 * time.Hour)
			if _, err := audit.ExportDay(yesterday); err != nil {
				log.Printf("[Scheduler] audit export failed: %v", err)
			}
		}),
	)
}
