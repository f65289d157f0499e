package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmvendtrack/vending_backend/utils"
	"github.com/xuri/excelize/v2"
)

// Expected sheet layout, header row first:
// sold_at | machine_code | amount | currency | payment_method | order_number | product_name | product_code | quantity
const rawSaleSheetName = "Sheet1"

var soldAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseRawSaleRows converts sheet rows (header included) into import
// records. Row numbers in errors are 1-based sheet rows, so the first data
// row is row 2. The original cells are preserved verbatim as the payload.
func ParseRawSaleRows(rows [][]string) ([]*NewRawSaleRecord, error) {
	if len(rows) < 2 {
		return nil, utils.ValidationErrorf("sheet has no data rows")
	}

	records := make([]*NewRawSaleRecord, 0, len(rows)-1)
	for idx, row := range rows[1:] {
		rowNumber := idx + 2
		if len(row) < 4 {
			return nil, utils.ValidationErrorf("row %d has %d columns; at least 4 required", rowNumber, len(row))
		}

		soldAt, err := parseSoldAt(row[0])
		if err != nil {
			return nil, utils.ValidationErrorf("could not parse sold_at in row %d: %v", rowNumber, err)
		}
		machineCode := strings.TrimSpace(row[1])
		if machineCode == "" {
			return nil, utils.ValidationErrorf("machine_code is empty in row %d", rowNumber)
		}
		amount, err := utils.ParseDecimal(row[2])
		if err != nil {
			return nil, utils.ValidationErrorf("could not parse amount in row %d: %v", rowNumber, err)
		}
		currency := strings.ToUpper(strings.TrimSpace(row[3]))
		if currency == "" {
			return nil, utils.ValidationErrorf("currency is empty in row %d", rowNumber)
		}

		record := &NewRawSaleRecord{
			SoldAt:      soldAt,
			MachineCode: machineCode,
			Amount:      amount,
			Currency:    currency,
		}
		if len(row) > 4 {
			record.PaymentMethod = strings.TrimSpace(row[4])
		}
		if len(row) > 5 {
			record.OrderNumber = strings.TrimSpace(row[5])
		}
		if len(row) > 6 {
			record.ProductName = strings.TrimSpace(row[6])
		}
		if len(row) > 7 {
			record.ProductCode = strings.TrimSpace(row[7])
		}
		if len(row) > 8 && strings.TrimSpace(row[8]) != "" {
			quantity, err := utils.ParseDecimal(row[8])
			if err != nil {
				return nil, utils.ValidationErrorf("could not parse quantity in row %d: %v", rowNumber, err)
			}
			record.Quantity = quantity
		}

		record.RawPayload, _ = json.Marshal(row)
		records = append(records, record)
	}
	return records, nil
}

func parseSoldAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty sold_at")
	}
	for _, layout := range soldAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}

// ImportRawSalesFromXlsx reads an uploaded workbook and ingests it as one
// FILE-sourced batch.
func ImportRawSalesFromXlsx(ctx context.Context, fileName string, reader io.Reader) (*RawSaleImportResult, error) {
	if !strings.HasSuffix(strings.ToLower(fileName), ".xlsx") {
		return nil, utils.ValidationErrorf("invalid file type: only .xlsx files are allowed")
	}

	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, utils.ValidationErrorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(rawSaleSheetName)
	if err != nil {
		return nil, utils.ValidationErrorf("unable to read sheet %s: %v", rawSaleSheetName, err)
	}

	records, err := ParseRawSaleRows(rows)
	if err != nil {
		return nil, err
	}

	return ImportRawSaleBatch(ctx, &NewRawSaleImport{
		SourceKind: ImportSourceKindFile,
		FileName:   fileName,
		Records:    records,
	})
}
