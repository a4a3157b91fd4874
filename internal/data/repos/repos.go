package repos

import (
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos/jobs"
	"github.com/OperativeX/processmind-sub001/internal/data/repos/pipeline"
	"github.com/OperativeX/processmind-sub001/internal/data/repos/usage"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

type ProcessRecordRepo = pipeline.ProcessRecordRepo
type JobRunRepo = jobs.JobRunRepo
type StorageUsageRepo = usage.StorageUsageRepo

func NewProcessRecordRepo(db *gorm.DB, baseLog *logger.Logger) ProcessRecordRepo {
	return pipeline.NewProcessRecordRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

func NewStorageUsageRepo(db *gorm.DB, baseLog *logger.Logger) StorageUsageRepo {
	return usage.NewStorageUsageRepo(db, baseLog)
}
