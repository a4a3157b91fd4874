package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Pipeline state
		&domain.ProcessRecord{},
		&domain.JobRun{},

		// Usage accounting
		&domain.StorageUsage{},
		&domain.StorageUsageMonth{},
		&domain.StorageUsageEvent{},
	)
}

func (s *PostgresService) AutoMigrateAll() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres service not initialized")
	}
	return AutoMigrateAll(s.db)
}
