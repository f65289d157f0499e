package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmvendtrack/vending_backend/config"
	"github.com/mmvendtrack/vending_backend/models"
)

// Ops tool for runs stuck in PROCESSING (processor crashed mid-run).
// Lists them by default; --fail stamps them FAILED so they can be deleted
// and recreated.
func main() {
	olderThanMin := flag.Int("older-than-minutes", 30, "Only runs that entered PROCESSING at least this long ago")
	organizationID := flag.String("organization-id", "", "Optional: limit to one organization")
	markFailed := flag.Bool("fail", false, "Mark the listed runs FAILED (default is list only)")
	confirm := flag.String("confirm", "", "Type MARK_FAILED to proceed when --fail is set")
	flag.Parse()

	if *olderThanMin <= 0 {
		fmt.Fprintln(os.Stderr, "--older-than-minutes must be positive")
		os.Exit(1)
	}
	if *markFailed && strings.TrimSpace(*confirm) != "MARK_FAILED" {
		fmt.Fprintln(os.Stderr, "set --confirm=MARK_FAILED to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	cutoff := time.Now().Add(-time.Duration(*olderThanMin) * time.Minute)
	query := db.Model(&models.ReconciliationRun{}).
		Where("status = ? AND started_at < ?", models.RunStatusProcessing, cutoff)
	if strings.TrimSpace(*organizationID) != "" {
		query = query.Where("organization_id = ?", *organizationID)
	}

	var runs []*models.ReconciliationRun
	if err := query.Find(&runs).Error; err != nil {
		fmt.Fprintln(os.Stderr, "query failed:", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("no stale runs found")
		return
	}

	for _, run := range runs {
		startedAt := "-"
		if run.StartedAt != nil {
			startedAt = run.StartedAt.Format(time.RFC3339)
		}
		fmt.Printf("run=%d organization=%s started_at=%s correlation_id=%s\n",
			run.ID, run.OrganizationId, startedAt, run.CorrelationId)
	}

	if !*markFailed {
		fmt.Printf("%d stale run(s); re-run with --fail --confirm=MARK_FAILED to mark them FAILED\n", len(runs))
		return
	}

	now := time.Now()
	for _, run := range runs {
		// Conditional on status so a processor that finished meanwhile wins.
		result := db.Model(&models.ReconciliationRun{}).
			Where("id = ? AND status = ?", run.ID, models.RunStatusProcessing).
			Updates(map[string]interface{}{
				"status":        models.RunStatusFailed,
				"completed_at":  now,
				"error_message": "marked failed by requeue-stale-runs",
			})
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "run=%d update failed: %v\n", run.ID, result.Error)
			continue
		}
		if result.RowsAffected == 0 {
			fmt.Printf("run=%d left PROCESSING before update; skipped\n", run.ID)
			continue
		}
		fmt.Printf("run=%d marked FAILED\n", run.ID)
	}
}
