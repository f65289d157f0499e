package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmvendtrack/vending_backend/config"
	"github.com/mmvendtrack/vending_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultTimeToleranceSeconds = 300

var DefaultAmountTolerance = decimal.NewFromFloat(0.01)

// ReconciliationRun is one bounded reconciliation attempt over a date window
// and a declared source set. Configuration fields are fixed at creation;
// execution fields are mutated only by the run workflow.
type ReconciliationRun struct {
	ID             int    `gorm:"primary_key" json:"id"`
	OrganizationId string `gorm:"index;not null" json:"organization_id"`

	DateFrom time.Time `gorm:"not null" json:"date_from"`
	DateTo   time.Time `gorm:"not null" json:"date_to"`

	SourcesJSON          []byte          `gorm:"type:json" json:"sources"`
	MachineIdsJSON       []byte          `gorm:"type:json" json:"machine_ids"`
	TimeToleranceSeconds int             `gorm:"not null;default:300" json:"time_tolerance_seconds"`
	AmountTolerance      decimal.Decimal `gorm:"type:decimal(20,4);default:0.01" json:"amount_tolerance"`

	Status           RunStatus  `gorm:"size:20;index;not null" json:"status"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message"`

	// Null until the run reaches COMPLETED.
	SummaryJSON []byte `gorm:"type:json" json:"summary"`

	CorrelationId string `gorm:"size:64;index" json:"correlation_id"`
	CreatedBy     int    `json:"created_by"`

	Mismatches []*MismatchRecord `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE" json:"mismatches,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// RunSummary is the matching pass result persisted on a COMPLETED run.
// MatchRate is a percentage rounded to 2 decimal places, 0 when the window
// held no records.
type RunSummary struct {
	TotalRecords int             `json:"total_records"`
	Matched      int             `json:"matched"`
	Mismatched   int             `json:"mismatched"`
	Missing      int             `json:"missing"`
	MatchRate    decimal.Decimal `json:"match_rate"`
}

type NewReconciliationRun struct {
	DateFrom             time.Time              `json:"date_from" binding:"required"`
	DateTo               time.Time              `json:"date_to" binding:"required"`
	Sources              []ReconciliationSource `json:"sources" binding:"required,min=1"`
	MachineIds           []int                  `json:"machine_ids"`
	TimeToleranceSeconds *int                   `json:"time_tolerance_seconds"`
	AmountTolerance      *decimal.Decimal       `json:"amount_tolerance"`
}

func (input *NewReconciliationRun) validate(ctx context.Context, organizationId string) error {
	if input.DateFrom.IsZero() || input.DateTo.IsZero() {
		return utils.ValidationErrorf("date_from and date_to are required")
	}
	if input.DateTo.Before(input.DateFrom) {
		return utils.ValidationErrorf("date_to must not be before date_from")
	}
	if len(input.Sources) == 0 {
		return utils.ValidationErrorf("at least one source is required")
	}
	for _, src := range input.Sources {
		if _, err := ParseReconciliationSource(string(src)); err != nil {
			return utils.ValidationErrorf("unknown source %q", src)
		}
	}
	if len(input.MachineIds) > 0 {
		if err := utils.ValidateResourcesId[VendingMachine](ctx, organizationId, input.MachineIds); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return utils.ValidationErrorf("machine not found")
			}
			return err
		}
	}
	return nil
}

func CreateReconciliationRun(ctx context.Context, input *NewReconciliationRun) (*ReconciliationRun, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}

	if err := input.validate(ctx, organizationId); err != nil {
		return nil, err
	}

	timeTolerance := DefaultTimeToleranceSeconds
	if input.TimeToleranceSeconds != nil && *input.TimeToleranceSeconds > 0 {
		timeTolerance = *input.TimeToleranceSeconds
	}
	amountTolerance := DefaultAmountTolerance
	if input.AmountTolerance != nil && input.AmountTolerance.IsPositive() {
		amountTolerance = *input.AmountTolerance
	}

	userId, _ := utils.GetUserIdFromContext(ctx)

	sourcesJSON, err := json.Marshal(input.Sources)
	if err != nil {
		return nil, err
	}
	var machineIdsJSON []byte
	if len(input.MachineIds) > 0 {
		machineIdsJSON, err = json.Marshal(input.MachineIds)
		if err != nil {
			return nil, err
		}
	}

	db := config.GetDB()
	run := ReconciliationRun{
		OrganizationId:       organizationId,
		DateFrom:             input.DateFrom,
		DateTo:               input.DateTo,
		SourcesJSON:          sourcesJSON,
		MachineIdsJSON:       machineIdsJSON,
		TimeToleranceSeconds: timeTolerance,
		AmountTolerance:      amountTolerance,
		Status:               RunStatusPending,
		CorrelationId:        correlationIdFromContextOrNew(ctx),
		CreatedBy:            userId,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}

	return &run, nil
}

func GetReconciliationRun(ctx context.Context, id int) (*ReconciliationRun, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}

	return utils.FetchModel[ReconciliationRun](ctx, organizationId, id, "Mismatches")
}

// DeleteReconciliationRun soft-deletes a run. Mismatch records go with it
// (cascade). In-flight runs are protected.
func DeleteReconciliationRun(ctx context.Context, id int) (*ReconciliationRun, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}

	run, err := utils.FetchModel[ReconciliationRun](ctx, organizationId, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.CanDelete() {
		return nil, utils.InvalidStateErrorf("run %d is %s; only finished runs can be deleted", id, run.Status)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Select("Mismatches").Delete(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// CancelReconciliationRun is the administrative PENDING -> CANCELLED
// transition. The run workflow never takes it.
func CancelReconciliationRun(ctx context.Context, id int) (*ReconciliationRun, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}

	run, err := utils.FetchModel[ReconciliationRun](ctx, organizationId, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.CanCancel() {
		return nil, utils.InvalidStateErrorf("run %d is %s; only pending runs can be cancelled", id, run.Status)
	}

	db := config.GetDB()
	result := db.WithContext(ctx).Model(&ReconciliationRun{}).
		Where("id = ? AND status = ?", run.ID, RunStatusPending).
		Update("status", RunStatusCancelled)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.InvalidStateErrorf("run %d left PENDING before it could be cancelled", id)
	}
	run.Status = RunStatusCancelled
	return run, nil
}

type ReconciliationRunFilter struct {
	Status   *RunStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// PaginateReconciliationRuns lists runs newest-first with offset pagination.
func PaginateReconciliationRuns(ctx context.Context, filter ReconciliationRunFilter, page int, limit int) ([]*ReconciliationRun, int64, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, 0, errors.New("organization id is required")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = config.SearchLimit
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&ReconciliationRun{}).
		Where("organization_id = ?", organizationId)
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.DateFrom != nil {
		dbCtx = dbCtx.Where("date_from >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		dbCtx = dbCtx.Where("date_to <= ?", *filter.DateTo)
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []*ReconciliationRun
	if err := dbCtx.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

func (r *ReconciliationRun) Sources() []ReconciliationSource {
	if len(r.SourcesJSON) == 0 {
		return nil
	}
	var sources []ReconciliationSource
	if err := json.Unmarshal(r.SourcesJSON, &sources); err != nil {
		return nil
	}
	return sources
}

func (r *ReconciliationRun) MachineIds() []int {
	if len(r.MachineIdsJSON) == 0 {
		return nil
	}
	var ids []int
	if err := json.Unmarshal(r.MachineIdsJSON, &ids); err != nil {
		return nil
	}
	return ids
}

func (r *ReconciliationRun) Summary() *RunSummary {
	if len(r.SummaryJSON) == 0 {
		return nil
	}
	var summary RunSummary
	if err := json.Unmarshal(r.SummaryJSON, &summary); err != nil {
		return nil
	}
	return &summary
}

func EncodeRunSummary(summary *RunSummary) []byte {
	b, _ := json.Marshal(summary)
	return b
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
