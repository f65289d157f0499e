package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmvendtrack/vending_backend/config"
	"github.com/mmvendtrack/vending_backend/models"
	"github.com/mmvendtrack/vending_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const runLockTTL = 5 * time.Minute

// ProcessReconciliationRun executes one run end to end: claim the PENDING
// status, load the record window, classify, persist mismatches, claim the
// matched records, and stamp the terminal status. Any failure after the
// PENDING -> PROCESSING transition marks the run FAILED with the error
// message; the run is never left in PROCESSING on a returned error.
func ProcessReconciliationRun(ctx context.Context, logger *logrus.Logger, runId int) error {
	started := time.Now()

	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return errors.New("organization id is required")
	}

	run, err := utils.FetchModel[models.ReconciliationRun](ctx, organizationId, runId)
	if err != nil {
		return err
	}

	// Claim the run. The conditional update is the single-writer gate: two
	// concurrent processors race here and exactly one wins.
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&models.ReconciliationRun{}).
		Where("id = ? AND status = ?", run.ID, models.RunStatusPending).
		Updates(map[string]interface{}{
			"status":     models.RunStatusProcessing,
			"started_at": started,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.InvalidStateErrorf("run %d is %s; only pending runs can be processed", run.ID, run.Status)
	}

	// Best-effort lock narrowing the window for overlapping runs to race on
	// the same raw records. The claim update below stays correct without it.
	if !config.DisableRunRedisLock() {
		release, lockErr := utils.OrganizationLock(ctx, organizationId, "reconciliationRun", runLockTTL, "reconciliationWorkflow.go", "ProcessReconciliationRun")
		if lockErr != nil {
			logger.WithFields(logrus.Fields{
				"module":         "reconciliationWorkflow.go",
				"organizationId": organizationId,
				"runId":          run.ID,
			}).Warn("proceeding without organization lock: " + lockErr.Error())
		} else {
			defer release()
		}
	}

	summary, err := executeRun(ctx, logger, run)
	if err != nil {
		markRunFailed(ctx, logger, run.ID, started, err)
		return err
	}

	completedAt := time.Now()
	if err := db.WithContext(ctx).Model(&models.ReconciliationRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":             models.RunStatusCompleted,
			"completed_at":       completedAt,
			"processing_time_ms": completedAt.Sub(started).Milliseconds(),
			"summary_json":       models.EncodeRunSummary(summary),
		}).Error; err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationRun", "Stamping COMPLETED", run.ID, err)
		return err
	}

	logger.WithFields(logrus.Fields{
		"module":        "reconciliationWorkflow.go",
		"runId":         run.ID,
		"correlationId": run.CorrelationId,
		"totalRecords":  summary.TotalRecords,
		"matched":       summary.Matched,
		"matchRate":     summary.MatchRate.String(),
	}).Info("reconciliation run completed")
	return nil
}

func executeRun(ctx context.Context, logger *logrus.Logger, run *models.ReconciliationRun) (*models.RunSummary, error) {
	records, err := models.FetchRawSaleWindow(ctx, run.OrganizationId, run.DateFrom, run.DateTo, run.MachineIds())
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "executeRun", "Loading raw sale window", run.ID, err)
		return nil, err
	}

	outcome := ClassifyRawSales(records, MatchOptions{
		StrictDuplicateFields: config.StrictDuplicateFields(),
	})

	for _, mismatch := range outcome.Mismatches {
		mismatch.RunId = run.ID
		mismatch.OrganizationId = run.OrganizationId
		mismatch.CorrelationId = run.CorrelationId
	}

	matchedIds := make([]int, 0, len(outcome.Matched))
	for _, record := range outcome.Matched {
		matchedIds = append(matchedIds, record.ID)
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.CreateMismatchRecords(tx, outcome.Mismatches); err != nil {
			return err
		}
		claimed, err := models.ClaimRawSaleRecords(tx, run.OrganizationId, run.ID, matchedIds)
		if err != nil {
			return err
		}
		if claimed < int64(len(matchedIds)) {
			// Another run claimed part of the window first. Not an error:
			// the claim only writes where the linkage is still null.
			logger.WithFields(logrus.Fields{
				"module":  "reconciliationWorkflow.go",
				"runId":   run.ID,
				"matched": len(matchedIds),
				"claimed": claimed,
			}).Warn("some matched records were already claimed by another run")
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "executeRun", "Persisting match outcome", run.ID, err)
		return nil, err
	}

	return &outcome.Summary, nil
}

func markRunFailed(ctx context.Context, logger *logrus.Logger, runId int, started time.Time, cause error) {
	completedAt := time.Now()
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.ReconciliationRun{}).
		Where("id = ?", runId).
		Updates(map[string]interface{}{
			"status":             models.RunStatusFailed,
			"completed_at":       completedAt,
			"processing_time_ms": completedAt.Sub(started).Milliseconds(),
			"error_message":      cause.Error(),
		}).Error; err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "markRunFailed", "Stamping FAILED", runId, err)
	}
}
