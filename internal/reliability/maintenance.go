package reliability

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/folio/internal/domain"
)

const (
	// diskHaltBytes halts maintenance outright; a backup onto a full disk
	// can corrupt the copy it is supposed to protect.
	diskHaltBytes = 500 << 20
	diskWarnBytes = 10 << 30
)

// MaintenanceJob is the nightly housekeeping pass: WAL checkpoint, disk
// space check, and verification of the latest daily backup.
type MaintenanceJob struct {
	db      *sql.DB
	backups *BackupService
	dataDir string
	clock   domain.Clock
	log     zerolog.Logger
}

// NewMaintenanceJob creates the nightly maintenance job.
func NewMaintenanceJob(db *sql.DB, backups *BackupService, dataDir string, clock domain.Clock, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		backups: backups,
		dataDir: dataDir,
		clock:   clock,
		log:     log.With().Str("job", "maintenance").Logger(),
	}
}

// Name identifies the job to the scheduler.
func (j *MaintenanceJob) Name() string { return "maintenance" }

// Run executes the pass. Only the disk check can fail it; the other steps
// degrade to warnings.
func (j *MaintenanceJob) Run() error {
	started := j.clock.Now()

	if _, err := j.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		j.log.Warn().Err(err).Msg("wal checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if err := j.backups.VerifyLatestDaily(); err != nil {
		j.log.Warn().Err(err).Msg("daily backup verification failed")
	}

	j.log.Info().
		Dur("duration", j.clock.Now().Sub(started)).
		Msg("maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	free := usage.Free
	switch {
	case free < diskHaltBytes:
		return fmt.Errorf("only %d MB free on %s, refusing to continue", free>>20, j.dataDir)
	case free < diskWarnBytes:
		j.log.Warn().Uint64("free_mb", free>>20).Msg("disk space running low")
	default:
		j.log.Debug().Uint64("free_gb", free>>30).Msg("disk space ok")
	}
	return nil
}
