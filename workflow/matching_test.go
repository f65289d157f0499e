package workflow_test

import (
	"testing"
	"time"

	"github.com/mmvendtrack/vending_backend/models"
	"github.com/mmvendtrack/vending_backend/workflow"
	"github.com/shopspring/decimal"
)

func saleRecord(id int, orderNumber string, machineCode string, amount string, soldAt time.Time) *models.RawSaleRecord {
	return &models.RawSaleRecord{
		ID:          id,
		OrderNumber: orderNumber,
		MachineCode: machineCode,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "KZT",
		SoldAt:      soldAt,
	}
}

func TestClassifyRawSalesDuplicateAndMatched(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []*models.RawSaleRecord{
		saleRecord(1, "ORD-100", "VM-01", "500", base),
		saleRecord(2, "ORD-100", "VM-01", "500", base.Add(time.Minute)),
		saleRecord(3, "ORD-101", "VM-02", "750", base.Add(2*time.Minute)),
	}

	outcome := workflow.ClassifyRawSales(records, workflow.MatchOptions{})

	if outcome.Summary.TotalRecords != 3 {
		t.Fatalf("TotalRecords = %d, want 3", outcome.Summary.TotalRecords)
	}
	if outcome.Summary.Matched != 1 {
		t.Fatalf("Matched = %d, want 1", outcome.Summary.Matched)
	}
	if outcome.Summary.Mismatched != 1 {
		t.Fatalf("Mismatched = %d, want 1", outcome.Summary.Mismatched)
	}
	if outcome.Summary.Missing != 0 {
		t.Fatalf("Missing = %d, want 0", outcome.Summary.Missing)
	}
	if want := decimal.RequireFromString("33.33"); !outcome.Summary.MatchRate.Equal(want) {
		t.Fatalf("MatchRate = %s, want %s", outcome.Summary.MatchRate, want)
	}

	if len(outcome.Matched) != 1 || outcome.Matched[0].ID != 3 {
		t.Fatalf("Matched records = %+v, want only record 3", outcome.Matched)
	}
	if len(outcome.Mismatches) != 1 {
		t.Fatalf("Mismatches = %d, want 1", len(outcome.Mismatches))
	}
	mismatch := outcome.Mismatches[0]
	if mismatch.MismatchType != models.MismatchTypeDuplicate {
		t.Fatalf("MismatchType = %s, want DUPLICATE", mismatch.MismatchType)
	}
	if mismatch.MatchScore != 100 {
		t.Fatalf("MatchScore = %d, want 100", mismatch.MatchScore)
	}
	if mismatch.OrderNumber != "ORD-100" {
		t.Fatalf("OrderNumber = %s, want ORD-100", mismatch.OrderNumber)
	}
	if len(mismatch.SourcePayload) == 0 {
		t.Fatal("duplicate mismatch has empty source payload")
	}
}

func TestClassifyRawSalesOrderNotFound(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []*models.RawSaleRecord{
		saleRecord(1, "", "VM-01", "500", base),
		saleRecord(2, "   ", "VM-02", "250", base.Add(time.Minute)),
	}

	outcome := workflow.ClassifyRawSales(records, workflow.MatchOptions{})

	if outcome.Summary.Missing != 2 {
		t.Fatalf("Missing = %d, want 2", outcome.Summary.Missing)
	}
	if outcome.Summary.Matched != 0 || outcome.Summary.Mismatched != 0 {
		t.Fatalf("Matched/Mismatched = %d/%d, want 0/0", outcome.Summary.Matched, outcome.Summary.Mismatched)
	}
	if len(outcome.Mismatches) != 2 {
		t.Fatalf("Mismatches = %d, want 2", len(outcome.Mismatches))
	}
	for _, mismatch := range outcome.Mismatches {
		if mismatch.MismatchType != models.MismatchTypeOrderNotFound {
			t.Fatalf("MismatchType = %s, want ORDER_NOT_FOUND", mismatch.MismatchType)
		}
		if mismatch.MatchScore != 0 {
			t.Fatalf("MatchScore = %d, want 0", mismatch.MatchScore)
		}
	}
	if !outcome.Summary.MatchRate.IsZero() {
		t.Fatalf("MatchRate = %s, want 0", outcome.Summary.MatchRate)
	}
}

func TestClassifyRawSalesEmptyWindow(t *testing.T) {
	outcome := workflow.ClassifyRawSales(nil, workflow.MatchOptions{})

	if outcome.Summary.TotalRecords != 0 {
		t.Fatalf("TotalRecords = %d, want 0", outcome.Summary.TotalRecords)
	}
	if !outcome.Summary.MatchRate.IsZero() {
		t.Fatalf("MatchRate = %s, want 0 for empty window", outcome.Summary.MatchRate)
	}
	if len(outcome.Matched) != 0 || len(outcome.Mismatches) != 0 {
		t.Fatalf("non-empty outcome for empty window: %+v", outcome)
	}
}

func TestClassifyRawSalesOrderIndependent(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	forward := []*models.RawSaleRecord{
		saleRecord(1, "ORD-1", "VM-01", "100", base),
		saleRecord(2, "ORD-2", "VM-01", "200", base.Add(time.Minute)),
		saleRecord(3, "ORD-2", "VM-01", "200", base.Add(2*time.Minute)),
		saleRecord(4, "", "VM-02", "300", base.Add(3*time.Minute)),
	}
	reversed := []*models.RawSaleRecord{forward[3], forward[2], forward[1], forward[0]}

	a := workflow.ClassifyRawSales(forward, workflow.MatchOptions{})
	b := workflow.ClassifyRawSales(reversed, workflow.MatchOptions{})

	if a.Summary.TotalRecords != b.Summary.TotalRecords ||
		a.Summary.Matched != b.Summary.Matched ||
		a.Summary.Mismatched != b.Summary.Mismatched ||
		a.Summary.Missing != b.Summary.Missing ||
		!a.Summary.MatchRate.Equal(b.Summary.MatchRate) {
		t.Fatalf("summaries differ: %+v vs %+v", a.Summary, b.Summary)
	}
	if len(a.Matched) != len(b.Matched) {
		t.Fatalf("matched lengths differ: %d vs %d", len(a.Matched), len(b.Matched))
	}
	for i := range a.Matched {
		if a.Matched[i].ID != b.Matched[i].ID {
			t.Fatalf("matched order differs at %d: %d vs %d", i, a.Matched[i].ID, b.Matched[i].ID)
		}
	}
	if len(a.Mismatches) != len(b.Mismatches) {
		t.Fatalf("mismatch lengths differ: %d vs %d", len(a.Mismatches), len(b.Mismatches))
	}
	for i := range a.Mismatches {
		if a.Mismatches[i].MismatchType != b.Mismatches[i].MismatchType ||
			a.Mismatches[i].OrderNumber != b.Mismatches[i].OrderNumber {
			t.Fatalf("mismatch order differs at %d", i)
		}
	}
}

func TestClassifyRawSalesStrictDuplicateFields(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	// Same order number, different amounts: a retried card authorization.
	records := []*models.RawSaleRecord{
		saleRecord(1, "ORD-9", "VM-01", "500", base),
		saleRecord(2, "ORD-9", "VM-01", "700", base.Add(time.Minute)),
	}

	loose := workflow.ClassifyRawSales(records, workflow.MatchOptions{})
	if loose.Summary.Mismatched != 1 || loose.Summary.Matched != 0 {
		t.Fatalf("loose: Mismatched/Matched = %d/%d, want 1/0", loose.Summary.Mismatched, loose.Summary.Matched)
	}

	strict := workflow.ClassifyRawSales(records, workflow.MatchOptions{StrictDuplicateFields: true})
	if strict.Summary.Matched != 2 || strict.Summary.Mismatched != 0 {
		t.Fatalf("strict: Matched/Mismatched = %d/%d, want 2/0", strict.Summary.Matched, strict.Summary.Mismatched)
	}
}

func TestClassifyRawSalesMatchRateRounding(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	// 2 matched of 3 total: 66.67 after rounding.
	records := []*models.RawSaleRecord{
		saleRecord(1, "ORD-1", "VM-01", "100", base),
		saleRecord(2, "ORD-2", "VM-01", "200", base.Add(time.Minute)),
		saleRecord(3, "", "VM-01", "300", base.Add(2*time.Minute)),
	}

	outcome := workflow.ClassifyRawSales(records, workflow.MatchOptions{})
	if want := decimal.RequireFromString("66.67"); !outcome.Summary.MatchRate.Equal(want) {
		t.Fatalf("MatchRate = %s, want %s", outcome.Summary.MatchRate, want)
	}
}
