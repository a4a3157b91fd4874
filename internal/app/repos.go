package app

import (
	"gorm.io/gorm"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

type Repos struct {
	ProcessRecord repos.ProcessRecordRepo
	JobRun        repos.JobRunRepo
	StorageUsage  repos.StorageUsageRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		ProcessRecord: repos.NewProcessRecordRepo(db, log),
		JobRun:        repos.NewJobRunRepo(db, log),
		StorageUsage:  repos.NewStorageUsageRepo(db, log),
	}
}
