package models_test

import (
	"testing"

	"github.com/mmvendtrack/vending_backend/models"
)

func TestParseRunStatus(t *testing.T) {
	for _, valid := range []string{"PENDING", "PROCESSING", "COMPLETED", "FAILED", "CANCELLED"} {
		if _, err := models.ParseRunStatus(valid); err != nil {
			t.Fatalf("ParseRunStatus(%q): %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "pending", "DONE", "RUNNING"} {
		if _, err := models.ParseRunStatus(invalid); err == nil {
			t.Fatalf("ParseRunStatus(%q) accepted invalid status", invalid)
		}
	}
}

func TestRunStatusGuards(t *testing.T) {
	cases := []struct {
		status     models.RunStatus
		canProcess bool
		canDelete  bool
		canCancel  bool
		terminal   bool
	}{
		{models.RunStatusPending, true, false, true, false},
		{models.RunStatusProcessing, false, false, false, false},
		{models.RunStatusCompleted, false, true, false, true},
		{models.RunStatusFailed, false, true, false, true},
		{models.RunStatusCancelled, false, true, false, true},
	}
	for _, tc := range cases {
		if got := tc.status.CanProcess(); got != tc.canProcess {
			t.Errorf("%s.CanProcess() = %v, want %v", tc.status, got, tc.canProcess)
		}
		if got := tc.status.CanDelete(); got != tc.canDelete {
			t.Errorf("%s.CanDelete() = %v, want %v", tc.status, got, tc.canDelete)
		}
		if got := tc.status.CanCancel(); got != tc.canCancel {
			t.Errorf("%s.CanCancel() = %v, want %v", tc.status, got, tc.canCancel)
		}
		if got := tc.status.IsTerminal(); got != tc.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestParseReconciliationSource(t *testing.T) {
	if _, err := models.ParseReconciliationSource("HARDWARE_EXPORT"); err != nil {
		t.Fatalf("HARDWARE_EXPORT rejected: %v", err)
	}
	if _, err := models.ParseReconciliationSource("PAYPAL"); err == nil {
		t.Fatal("unknown source accepted")
	}
}

func TestParseMismatchType(t *testing.T) {
	for _, valid := range []string{"ORDER_NOT_FOUND", "DUPLICATE", "AMOUNT_MISMATCH", "TIME_MISMATCH", "PAYMENT_NOT_FOUND", "PARTIAL_MATCH"} {
		if _, err := models.ParseMismatchType(valid); err != nil {
			t.Fatalf("ParseMismatchType(%q): %v", valid, err)
		}
	}
	if _, err := models.ParseMismatchType("SOMETHING_ELSE"); err == nil {
		t.Fatal("unknown mismatch type accepted")
	}
}
