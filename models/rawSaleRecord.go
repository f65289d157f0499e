package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmvendtrack/vending_backend/config"
	"github.com/mmvendtrack/vending_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const importInsertBatchSize = 200

// RawSaleRecord is one hardware/POS-reported sale line, ingested before
// reconciliation. The original payload is preserved verbatim for audit.
// Reconciliation linkage is written exactly once, by the matching pass,
// when the record is claimed by a run.
type RawSaleRecord struct {
	ID             int    `gorm:"primary_key" json:"id"`
	OrganizationId string `gorm:"index;not null" json:"organization_id"`

	ImportBatchId string `gorm:"size:64;index;not null" json:"import_batch_id"`
	RowNumber     int    `gorm:"not null" json:"row_number"`

	SoldAt        time.Time       `gorm:"index;not null" json:"sold_at"`
	MachineCode   string          `gorm:"size:50;index;not null" json:"machine_code"`
	MachineId     *int            `gorm:"index" json:"machine_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	PaymentMethod string          `gorm:"size:50" json:"payment_method"`
	OrderNumber   string          `gorm:"size:100;index" json:"order_number"`
	TransactionId *int            `json:"transaction_id"`
	ProductName   string          `gorm:"size:255" json:"product_name"`
	ProductCode   string          `gorm:"size:100" json:"product_code"`
	Quantity      decimal.Decimal `gorm:"type:decimal(15,4);default:1" json:"quantity"`

	SourceKind ImportSourceKind `gorm:"size:10;not null" json:"source_kind"`
	FileName   string           `gorm:"size:255" json:"file_name"`
	RawPayload []byte           `gorm:"type:json" json:"raw_payload"`

	IsReconciled        *bool `gorm:"not null;default:false" json:"is_reconciled"`
	ReconciliationRunId *int  `gorm:"index" json:"reconciliation_run_id"`

	ImportedBy int            `json:"imported_by"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

type NewRawSaleRecord struct {
	SoldAt        time.Time       `json:"sold_at" binding:"required"`
	MachineCode   string          `json:"machine_code" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Currency      string          `json:"currency" binding:"required"`
	PaymentMethod string          `json:"payment_method"`
	OrderNumber   string          `json:"order_number"`
	TransactionId *int            `json:"transaction_id"`
	ProductName   string          `json:"product_name"`
	ProductCode   string          `json:"product_code"`
	Quantity      decimal.Decimal `json:"quantity"`
	RawPayload    []byte          `json:"raw_payload"`
}

type NewRawSaleImport struct {
	SourceKind ImportSourceKind    `json:"source_kind" binding:"required"`
	FileName   string              `json:"file_name"`
	Records    []*NewRawSaleRecord `json:"records" binding:"required"`
}

type RawSaleImportResult struct {
	BatchId       string `json:"batch_id"`
	ImportedCount int    `json:"imported_count"`
}

// ImportRawSaleBatch persists one ingestion batch. Records are stamped with
// a fresh batch id and their 1-based row index. No dedup happens here;
// duplicate detection is the matching pass's job.
func ImportRawSaleBatch(ctx context.Context, input *NewRawSaleImport) (*RawSaleImportResult, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}
	if len(input.Records) == 0 {
		return nil, utils.ValidationErrorf("records must not be empty")
	}
	if _, err := ParseImportSourceKind(string(input.SourceKind)); err != nil {
		return nil, utils.ValidationErrorf("unknown source kind %q", input.SourceKind)
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	batchId := uuid.NewString()

	machineIds, err := MachineIdsByCode(ctx, organizationId)
	if err != nil {
		return nil, err
	}

	records := make([]*RawSaleRecord, 0, len(input.Records))
	for i, in := range input.Records {
		quantity := in.Quantity
		if quantity.IsZero() {
			quantity = decimal.NewFromInt(1)
		}
		record := &RawSaleRecord{
			OrganizationId: organizationId,
			ImportBatchId:  batchId,
			RowNumber:      i + 1,
			SoldAt:         in.SoldAt,
			MachineCode:    in.MachineCode,
			Amount:         in.Amount,
			Currency:       in.Currency,
			PaymentMethod:  in.PaymentMethod,
			OrderNumber:    in.OrderNumber,
			TransactionId:  in.TransactionId,
			ProductName:    in.ProductName,
			ProductCode:    in.ProductCode,
			Quantity:       quantity,
			SourceKind:     input.SourceKind,
			FileName:       input.FileName,
			RawPayload:     in.RawPayload,
			IsReconciled:   utils.NewFalse(),
			ImportedBy:     userId,
		}
		if machineId, found := machineIds[in.MachineCode]; found {
			record.MachineId = &machineId
		}
		records = append(records, record)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).CreateInBatches(records, importInsertBatchSize).Error; err != nil {
		return nil, err
	}

	return &RawSaleImportResult{BatchId: batchId, ImportedCount: len(records)}, nil
}

// FetchRawSaleWindow loads the candidate records for one run: the
// organization's hardware-reported sales inside the inclusive date window,
// optionally narrowed to a machine set.
func FetchRawSaleWindow(ctx context.Context, organizationId string, dateFrom, dateTo time.Time, machineIds []int) ([]*RawSaleRecord, error) {
	// End of the inclusive calendar range.
	windowEnd := time.Date(dateTo.Year(), dateTo.Month(), dateTo.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), dateTo.Location())

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("organization_id = ?", organizationId).
		Where("sold_at BETWEEN ? AND ?", dateFrom, windowEnd)
	if len(machineIds) > 0 {
		dbCtx = dbCtx.Where("machine_id IN ?", machineIds)
	}

	var records []*RawSaleRecord
	if err := dbCtx.Order("sold_at, id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ClaimRawSaleRecords stamps the matched records with the owning run.
// The linkage is only written where it is still null, so a record claimed
// by an earlier run is never silently overwritten; the caller compares the
// affected count against the matched count.
func ClaimRawSaleRecords(tx *gorm.DB, organizationId string, runId int, recordIds []int) (int64, error) {
	if len(recordIds) == 0 {
		return 0, nil
	}
	result := tx.Model(&RawSaleRecord{}).
		Where("organization_id = ? AND id IN ? AND reconciliation_run_id IS NULL", organizationId, recordIds).
		Updates(map[string]interface{}{
			"is_reconciled":         true,
			"reconciliation_run_id": runId,
		})
	return result.RowsAffected, result.Error
}

func GetRawSaleRecord(ctx context.Context, id int) (*RawSaleRecord, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, errors.New("organization id is required")
	}
	return utils.FetchModel[RawSaleRecord](ctx, organizationId, id)
}
