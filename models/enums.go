package models

import "fmt"

type RunStatus string

const (
	RunStatusPending    RunStatus = "PENDING"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusFailed     RunStatus = "FAILED"
	RunStatusCancelled  RunStatus = "CANCELLED"
)

func ParseRunStatus(s string) (RunStatus, error) {
	switch RunStatus(s) {
	case RunStatusPending, RunStatusProcessing, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return RunStatus(s), nil
	default:
		return "", fmt.Errorf("invalid run status %q", s)
	}
}

// CanProcess reports whether a run may enter processing. Every status other
// than PENDING is terminal with respect to processing.
func (s RunStatus) CanProcess() bool {
	return s == RunStatusPending
}

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// CanDelete guards soft deletion: in-flight runs (PENDING, PROCESSING) must
// not be deleted.
func (s RunStatus) CanDelete() bool {
	return s.IsTerminal()
}

func (s RunStatus) CanCancel() bool {
	return s == RunStatusPending
}

type MismatchType string

const (
	MismatchTypeOrderNotFound MismatchType = "ORDER_NOT_FOUND"
	MismatchTypeDuplicate     MismatchType = "DUPLICATE"

	// Declared for cross-source reconciliation. The current matching pass
	// compares the hardware-imported set against itself only, so these are
	// never produced by it.
	MismatchTypeAmountMismatch  MismatchType = "AMOUNT_MISMATCH"
	MismatchTypeTimeMismatch    MismatchType = "TIME_MISMATCH"
	MismatchTypePaymentNotFound MismatchType = "PAYMENT_NOT_FOUND"
	MismatchTypePartialMatch    MismatchType = "PARTIAL_MATCH"
)

func ParseMismatchType(s string) (MismatchType, error) {
	switch MismatchType(s) {
	case MismatchTypeOrderNotFound, MismatchTypeDuplicate, MismatchTypeAmountMismatch,
		MismatchTypeTimeMismatch, MismatchTypePaymentNotFound, MismatchTypePartialMatch:
		return MismatchType(s), nil
	default:
		return "", fmt.Errorf("invalid mismatch type %q", s)
	}
}

type ImportSourceKind string

const (
	ImportSourceKindFile ImportSourceKind = "FILE"
	ImportSourceKindAPI  ImportSourceKind = "API"
)

func ParseImportSourceKind(s string) (ImportSourceKind, error) {
	switch ImportSourceKind(s) {
	case ImportSourceKindFile, ImportSourceKindAPI:
		return ImportSourceKind(s), nil
	default:
		return "", fmt.Errorf("invalid import source kind %q", s)
	}
}

// ReconciliationSource names a declared data source for a run. Hardware
// export is the only source the matching pass reads today; fiscal and
// payment-provider sources are declared configuration.
type ReconciliationSource string

const (
	SourceHardwareExport ReconciliationSource = "HARDWARE_EXPORT"
	SourceFiscal         ReconciliationSource = "FISCAL"
	SourceKaspiPay       ReconciliationSource = "KASPI_PAY"
	SourceHalykPay       ReconciliationSource = "HALYK_PAY"
	SourceBankCard       ReconciliationSource = "BANK_CARD"
)

func ParseReconciliationSource(s string) (ReconciliationSource, error) {
	switch ReconciliationSource(s) {
	case SourceHardwareExport, SourceFiscal, SourceKaspiPay, SourceHalykPay, SourceBankCard:
		return ReconciliationSource(s), nil
	default:
		return "", fmt.Errorf("invalid reconciliation source %q", s)
	}
}
