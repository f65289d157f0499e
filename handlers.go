package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmvendtrack/vending_backend/config"
	"github.com/mmvendtrack/vending_backend/models"
	"github.com/mmvendtrack/vending_backend/utils"
	"github.com/mmvendtrack/vending_backend/workflow"
	"github.com/sirupsen/logrus"
)

// respondError maps domain errors onto HTTP statuses. Unknown errors are
// logged and surface as a bare 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, utils.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(config.SearchLimit)))
	return page, limit
}

// detachedContext copies the caller's identity onto a fresh context so
// background processing survives the HTTP request ending.
func detachedContext(ctx context.Context) context.Context {
	detached := context.Background()
	if organizationId, ok := utils.GetOrganizationIdFromContext(ctx); ok {
		detached = utils.SetOrganizationIdInContext(detached, organizationId)
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		detached = utils.SetUserIdInContext(detached, userId)
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		detached = utils.SetCorrelationIdInContext(detached, correlationId)
	}
	return detached
}

/* reconciliation runs */

func createRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewReconciliationRun
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		run, err := models.CreateReconciliationRun(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, run)
	}
}

func listRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter models.ReconciliationRunFilter
		if v := c.Query("status"); v != "" {
			status, err := models.ParseRunStatus(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			filter.Status = &status
		}
		if v := c.Query("date_from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from"})
				return
			}
			filter.DateFrom = &t
		}
		if v := c.Query("date_to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to"})
				return
			}
			filter.DateTo = &t
		}

		page, limit := pagination(c)
		runs, total, err := models.PaginateReconciliationRuns(c.Request.Context(), filter, page, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs, "total": total, "page": page, "limit": limit})
	}
}

func getRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		run, err := models.GetReconciliationRun(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func deleteRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		run, err := models.DeleteReconciliationRun(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted_run_id": run.ID})
	}
}

// processRunHandler kicks the run workflow. Default is fire-and-forget with
// a 202; ?wait=true runs synchronously and returns the finished run.
func processRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		logger := config.GetLogger()

		// Reject early so the caller gets 404/409 instead of a silent 202.
		run, err := models.GetReconciliationRun(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !run.Status.CanProcess() {
			respondError(c, utils.InvalidStateErrorf("run %d is %s; only pending runs can be processed", id, run.Status))
			return
		}

		if strings.EqualFold(c.Query("wait"), "true") {
			ctx, span := tracer.Start(c.Request.Context(), "ProcessReconciliationRun")
			err := workflow.ProcessReconciliationRun(ctx, logger, id)
			span.End()
			if err != nil {
				respondError(c, err)
				return
			}
			finished, err := models.GetReconciliationRun(c.Request.Context(), id)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, finished)
			return
		}

		ctx := detachedContext(c.Request.Context())
		go func() {
			ctx, span := tracer.Start(ctx, "ProcessReconciliationRun")
			defer span.End()
			if err := workflow.ProcessReconciliationRun(ctx, logger, id); err != nil {
				logger.WithFields(logrus.Fields{
					"module": "handlers.go",
					"runId":  id,
				}).Error("background run processing failed: " + err.Error())
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{"run_id": id, "accepted": true})
	}
}

func cancelRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		run, err := models.CancelReconciliationRun(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func runSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		run, err := models.GetReconciliationRun(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		summary := run.Summary()
		if summary == nil {
			respondError(c, utils.InvalidStateErrorf("run %d has no summary; status is %s", id, run.Status))
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

/* mismatches */

func listMismatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}

		var filter models.MismatchFilter
		if v := c.Query("type"); v != "" {
			mismatchType, err := models.ParseMismatchType(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			filter.MismatchType = &mismatchType
		}
		if v := c.Query("resolved"); v != "" {
			resolved := strings.EqualFold(v, "true")
			filter.IsResolved = &resolved
		}

		page, limit := pagination(c)
		mismatches, total, err := models.PaginateMismatchRecords(c.Request.Context(), id, filter, page, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mismatches": mismatches, "total": total, "page": page, "limit": limit})
	}
}

func resolveMismatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.ResolveMismatchInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		mismatch, err := models.ResolveMismatch(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, mismatch)
	}
}

/* raw sales */

func importRawSalesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewRawSaleImport
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		result, err := models.ImportRawSaleBatch(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func getRawSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		record, err := models.GetRawSaleRecord(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

/* machines */

func createMachineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewVendingMachine
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		machine, err := models.CreateVendingMachine(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, machine)
	}
}

func listMachinesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		machines, err := models.FetchVendingMachines(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"machines": machines})
	}
}

func getMachineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		machine, err := models.GetVendingMachine(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, machine)
	}
}

func updateMachineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewVendingMachine
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		machine, err := models.UpdateVendingMachine(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, machine)
	}
}

func deleteMachineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		machine, err := models.DeleteVendingMachine(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted_machine_id": machine.ID})
	}
}
