package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmvendtrack/vending_backend/config"
	"github.com/mmvendtrack/vending_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const mismatchInsertBatchSize = 200

// MismatchRecord is one classified discrepancy produced by the matching
// pass. It is owned by its run and deleted with it.
type MismatchRecord struct {
	ID             int    `gorm:"primary_key" json:"id"`
	RunId          int    `gorm:"index;not null" json:"run_id"`
	OrganizationId string `gorm:"index;not null" json:"organization_id"`

	OrderNumber   string          `gorm:"size:100;index" json:"order_number"`
	MachineCode   string          `gorm:"size:50" json:"machine_code"`
	OrderTime     *time.Time      `json:"order_time"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaymentMethod string          `gorm:"size:50" json:"payment_method"`

	MismatchType MismatchType `gorm:"size:30;index;not null" json:"mismatch_type"`
	// 0-100 confidence that the classified condition is real, not that the
	// underlying data is correct.
	MatchScore        int                 `gorm:"not null;default:0" json:"match_score"`
	DiscrepancyAmount decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"discrepancy_amount"`
	SourcePayload     []byte              `gorm:"type:json" json:"source_payload"`
	Description       string              `gorm:"type:text" json:"description"`

	IsResolved      *bool      `gorm:"not null;default:false" json:"is_resolved"`
	ResolutionNotes string     `gorm:"type:text" json:"resolution_notes"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	ResolvedBy      *int       `json:"resolved_by"`

	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateMismatchRecords batch-inserts the matching pass output inside the
// caller's transaction.
func CreateMismatchRecords(tx *gorm.DB, records []*MismatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	return tx.CreateInBatches(records, mismatchInsertBatchSize).Error
}

// EnsureResolvable reports why a mismatch cannot be resolved, nil when it
// can. Resolution is one-way; there is no un-resolve.
func (m *MismatchRecord) EnsureResolvable() error {
	if m.IsResolved != nil && *m.IsResolved {
		return utils.InvalidStateErrorf("mismatch %d is already resolved", m.ID)
	}
	return nil
}

type ResolveMismatchInput struct {
	Notes string `json:"notes" binding:"required"`
}

// ResolveMismatch marks a mismatch resolved with the reviewer's notes.
// Never triggered automatically.
func ResolveMismatch(ctx context.Context, id int, input *ResolveMismatchInput) (*MismatchRecord, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}
	if input == nil || input.Notes == "" {
		return nil, utils.ValidationErrorf("resolution notes are required")
	}

	mismatch, err := utils.FetchModel[MismatchRecord](ctx, organizationId, id)
	if err != nil {
		return nil, err
	}
	if err := mismatch.EnsureResolvable(); err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now()

	db := config.GetDB()
	result := db.WithContext(ctx).Model(&MismatchRecord{}).
		Where("id = ? AND is_resolved = ?", mismatch.ID, false).
		Updates(map[string]interface{}{
			"is_resolved":      true,
			"resolution_notes": input.Notes,
			"resolved_at":      now,
			"resolved_by":      userId,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.InvalidStateErrorf("mismatch %d is already resolved", id)
	}

	mismatch.IsResolved = utils.NewTrue()
	mismatch.ResolutionNotes = input.Notes
	mismatch.ResolvedAt = &now
	mismatch.ResolvedBy = &userId
	return mismatch, nil
}

type MismatchFilter struct {
	MismatchType *MismatchType
	IsResolved   *bool
}

// PaginateMismatchRecords lists a run's mismatches newest-first.
func PaginateMismatchRecords(ctx context.Context, runId int, filter MismatchFilter, page int, limit int) ([]*MismatchRecord, int64, error) {
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

	// The run must exist and be visible in the caller's organization.
	if err := utils.ValidateResourceId[ReconciliationRun](ctx, organizationId, runId); err != nil {
		return nil, 0, err
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&MismatchRecord{}).
		Where("organization_id = ? AND run_id = ?", organizationId, runId)
	if filter.MismatchType != nil {
		dbCtx = dbCtx.Where("mismatch_type = ?", *filter.MismatchType)
	}
	if filter.IsResolved != nil {
		dbCtx = dbCtx.Where("is_resolved = ?", *filter.IsResolved)
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var mismatches []*MismatchRecord
	if err := dbCtx.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&mismatches).Error; err != nil {
		return nil, 0, err
	}
	return mismatches, total, nil
}
