package config

import (
	"os"
	"strings"
)

// StrictDuplicateFields widens the duplicate grouping key from order number
// alone to (order number, machine code, amount). Default off: any repeated
// order number counts as a duplicate regardless of other fields.
//
// Set via env:
// - STRICT_DUPLICATE_FIELDS=true
func StrictDuplicateFields() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_DUPLICATE_FIELDS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DisableRunRedisLock turns off the best-effort per-organization redis lock
// around run processing. The conditional claim update on raw sale records
// stays in force either way; the lock only narrows the window for two runs
// over overlapping date ranges to race on the same records.
//
// Set via env:
// - DISABLE_RUN_REDIS_LOCK=true
func DisableRunRedisLock() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DISABLE_RUN_REDIS_LOCK")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
