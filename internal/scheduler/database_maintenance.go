package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/qpubinder/internal/database"
	"github.com/rs/zerolog"
)

// walWarnFrames is the WAL size above which a checkpoint is reported as lagging
const walWarnFrames = 1000

// DatabaseMaintenanceJob checks integrity and checkpoints the WAL of SQLite databases
type DatabaseMaintenanceJob struct {
	log       zerolog.Logger
	databases []*database.DB
	timeout   time.Duration
}

// NewDatabaseMaintenanceJob creates a maintenance job; nil databases are skipped
func NewDatabaseMaintenanceJob(log zerolog.Logger, databases ...*database.DB) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		log:       log.With().Str("job", "database_maintenance").Logger(),
		databases: databases,
		timeout:   30 * time.Second,
	}
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance job
func (j *DatabaseMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	checked := 0
	for _, db := range j.databases {
		if db == nil {
			continue
		}

		if err := db.IntegrityCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database integrity check failed")
			return fmt.Errorf("database %s failed integrity check: %w", db.Name(), err)
		}

		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy, frames, checkpointed int
		err := db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
		if err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to checkpoint WAL")
			continue
		}

		if frames > walWarnFrames {
			j.log.Warn().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Int("checkpointed", checkpointed).
				Msg("WAL file is large, checkpoint is lagging")
		} else {
			j.log.Debug().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Msg("WAL checkpoint status OK")
		}
		checked++
	}

	j.log.Info().Int("checked", checked).Msg("Database maintenance completed")
	return nil
}
