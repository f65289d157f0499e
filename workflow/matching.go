package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mmvendtrack/vending_backend/models"
	"github.com/shopspring/decimal"
)

type MatchOptions struct {
	// Widen the duplicate grouping key from order number alone to
	// (order number, machine code, amount).
	StrictDuplicateFields bool
}

// MatchOutcome is the full result of one matching pass: the records a run
// may claim, the mismatch rows to persist, and the summary counters.
type MatchOutcome struct {
	Matched    []*models.RawSaleRecord
	Mismatches []*models.MismatchRecord
	Summary    models.RunSummary
}

var oneHundred = decimal.NewFromInt(100)

// ClassifyRawSales partitions a record window into matched sales, duplicate
// groups, and order-less records. It is pure and deterministic: the same
// record set yields the same outcome regardless of input order.
//
// Records without an order number cannot be matched at all and are reported
// as ORDER_NOT_FOUND (score 0, counted as missing). The rest group by order
// number: singleton groups are matched, larger groups produce one DUPLICATE
// mismatch each (score 100) carrying the whole group as payload.
func ClassifyRawSales(records []*models.RawSaleRecord, opts MatchOptions) MatchOutcome {
	outcome := MatchOutcome{}
	outcome.Summary.TotalRecords = len(records)

	groups := map[string][]*models.RawSaleRecord{}
	var orderless []*models.RawSaleRecord
	for _, record := range records {
		if strings.TrimSpace(record.OrderNumber) == "" {
			orderless = append(orderless, record)
			continue
		}
		key := duplicateKey(record, opts)
		groups[key] = append(groups[key], record)
	}

	sortRecords(orderless)
	for _, record := range orderless {
		outcome.Mismatches = append(outcome.Mismatches, orderNotFoundMismatch(record))
	}
	outcome.Summary.Missing = len(orderless)

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := groups[key]
		sortRecords(group)
		if len(group) == 1 {
			outcome.Matched = append(outcome.Matched, group[0])
			outcome.Summary.Matched++
			continue
		}
		outcome.Mismatches = append(outcome.Mismatches, duplicateMismatch(group))
		outcome.Summary.Mismatched++
	}

	outcome.Summary.MatchRate = matchRate(outcome.Summary.Matched, outcome.Summary.TotalRecords)
	return outcome
}

func duplicateKey(record *models.RawSaleRecord, opts MatchOptions) string {
	if opts.StrictDuplicateFields {
		return fmt.Sprintf("%s|%s|%s", record.OrderNumber, record.MachineCode, record.Amount.String())
	}
	return record.OrderNumber
}

func sortRecords(records []*models.RawSaleRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].SoldAt.Equal(records[j].SoldAt) {
			return records[i].SoldAt.Before(records[j].SoldAt)
		}
		return records[i].ID < records[j].ID
	})
}

func orderNotFoundMismatch(record *models.RawSaleRecord) *models.MismatchRecord {
	soldAt := record.SoldAt
	payload, _ := json.Marshal(record)
	return &models.MismatchRecord{
		OrderNumber:   record.OrderNumber,
		MachineCode:   record.MachineCode,
		OrderTime:     &soldAt,
		Amount:        record.Amount,
		PaymentMethod: record.PaymentMethod,
		MismatchType:  models.MismatchTypeOrderNotFound,
		MatchScore:    0,
		SourcePayload: payload,
		Description:   fmt.Sprintf("sale on machine %s has no order number", record.MachineCode),
		IsResolved:    newFalse(),
	}
}

func duplicateMismatch(group []*models.RawSaleRecord) *models.MismatchRecord {
	first := group[0]
	soldAt := first.SoldAt
	payload, _ := json.Marshal(group)
	return &models.MismatchRecord{
		OrderNumber:   first.OrderNumber,
		MachineCode:   first.MachineCode,
		OrderTime:     &soldAt,
		Amount:        first.Amount,
		PaymentMethod: first.PaymentMethod,
		MismatchType:  models.MismatchTypeDuplicate,
		MatchScore:    100,
		SourcePayload: payload,
		Description:   fmt.Sprintf("order number %s appears %d times", first.OrderNumber, len(group)),
		IsResolved:    newFalse(),
	}
}

// matchRate is matched/total as a percentage rounded to 2 decimal places,
// 0 for an empty window.
func matchRate(matched int, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(matched)).
		Mul(oneHundred).
		DivRound(decimal.NewFromInt(int64(total)), 2)
}

func newFalse() *bool {
	b := false
	return &b
}
