package di

import (
	"fmt"

	"github.com/aristath/qpubinder/internal/config"
	"github.com/aristath/qpubinder/internal/scheduler"
	"github.com/rs/zerolog"
)

// databaseMaintenanceSchedule runs integrity and WAL checks hourly
const databaseMaintenanceSchedule = "@every 1h"

// RegisterJobs registers background jobs with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Catalog.RefreshSchedule != "" {
		if err := container.Scheduler.AddJob(cfg.Catalog.RefreshSchedule, container.Refresher); err != nil {
			return fmt.Errorf("failed to register catalog refresh job: %w", err)
		}
	}

	if dbs := container.Databases(); len(dbs) > 0 {
		job := scheduler.NewDatabaseMaintenanceJob(log, dbs...)
		if err := container.Scheduler.AddJob(databaseMaintenanceSchedule, job); err != nil {
			return fmt.Errorf("failed to register database maintenance job: %w", err)
		}
	}

	if container.Backup != nil {
		if err := container.Scheduler.AddJob(cfg.Backup.Schedule, container.Backup); err != nil {
			return fmt.Errorf("failed to register catalog backup job: %w", err)
		}
	}

	log.Info().Int("jobs", container.Scheduler.Len()).Msg("Jobs registered")
	return nil
}
