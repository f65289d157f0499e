package models

import "gorm.io/gorm"

// MigrateModels keeps the schema current. Order matters: parents before
// the tables that reference them.
func MigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&VendingMachine{},
		&ReconciliationRun{},
		&MismatchRecord{},
		&RawSaleRecord{},
	)
}
