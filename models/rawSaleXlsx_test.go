package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/mmvendtrack/vending_backend/models"
	"github.com/mmvendtrack/vending_backend/utils"
	"github.com/shopspring/decimal"
)

var sheetHeader = []string{"sold_at", "machine_code", "amount", "currency", "payment_method", "order_number", "product_name", "product_code", "quantity"}

func TestParseRawSaleRows(t *testing.T) {
	rows := [][]string{
		sheetHeader,
		{"2026-03-10T09:15:00Z", "VM-01", "500", "kzt", "CARD", "ORD-100", "Cola 0.5", "SKU-1", "2"},
		{"2026-03-10 10:00:00", "VM-02", "750.50", "KZT"},
	}

	records, err := models.ParseRawSaleRows(rows)
	if err != nil {
		t.Fatalf("ParseRawSaleRows: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	first := records[0]
	if !first.SoldAt.Equal(time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)) {
		t.Fatalf("SoldAt = %s", first.SoldAt)
	}
	if first.MachineCode != "VM-01" || first.Currency != "KZT" {
		t.Fatalf("MachineCode/Currency = %s/%s", first.MachineCode, first.Currency)
	}
	if !first.Amount.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("Amount = %s", first.Amount)
	}
	if first.OrderNumber != "ORD-100" || first.PaymentMethod != "CARD" {
		t.Fatalf("OrderNumber/PaymentMethod = %s/%s", first.OrderNumber, first.PaymentMethod)
	}
	if !first.Quantity.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("Quantity = %s", first.Quantity)
	}
	if len(first.RawPayload) == 0 {
		t.Fatal("RawPayload not preserved")
	}

	second := records[1]
	if second.OrderNumber != "" {
		t.Fatalf("short row OrderNumber = %q, want empty", second.OrderNumber)
	}
	if !second.Amount.Equal(decimal.RequireFromString("750.50")) {
		t.Fatalf("Amount = %s", second.Amount)
	}
}

func TestParseRawSaleRowsErrors(t *testing.T) {
	cases := []struct {
		name string
		rows [][]string
	}{
		{"header only", [][]string{sheetHeader}},
		{"bad time", [][]string{sheetHeader, {"yesterday", "VM-01", "500", "KZT"}}},
		{"missing machine code", [][]string{sheetHeader, {"2026-03-10T09:15:00Z", " ", "500", "KZT"}}},
		{"bad amount", [][]string{sheetHeader, {"2026-03-10T09:15:00Z", "VM-01", "five", "KZT"}}},
		{"too few columns", [][]string{sheetHeader, {"2026-03-10T09:15:00Z", "VM-01"}}},
		{"bad quantity", [][]string{sheetHeader, {"2026-03-10T09:15:00Z", "VM-01", "500", "KZT", "", "", "", "", "many"}}},
	}
	for _, tc := range cases {
		_, err := models.ParseRawSaleRows(tc.rows)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !errors.Is(err, utils.ErrValidation) {
			t.Fatalf("%s: error %v is not a validation error", tc.name, err)
		}
	}
}
