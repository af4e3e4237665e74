package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/modules/fx"
	"github.com/aristath/folio/internal/modules/gurus"
	"github.com/aristath/folio/internal/modules/scan"
	"github.com/aristath/folio/internal/modules/snapshots"
	"github.com/aristath/folio/internal/prewarm"
	"github.com/aristath/folio/internal/reliability"
)

// Job adapters. Each wraps one service call with a timeout; conflict
// rejections from the busy mutexes surface as job errors and are only
// logged.

// ScanJob runs the nightly market scan.
type ScanJob struct{ Scans *scan.Service }

func (j *ScanJob) Name() string { return "scan" }

func (j *ScanJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	_, err := j.Scans.RunNow(ctx)
	return err
}

// DigestJob sends the weekly portfolio digest.
type DigestJob struct{ Digest *scan.Digest }

func (j *DigestJob) Name() string { return "digest" }

func (j *DigestJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	_, err := j.Digest.RunNow(ctx)
	return err
}

// SnapshotJob takes the daily portfolio snapshot.
type SnapshotJob struct{ Snapshots *snapshots.Service }

func (j *SnapshotJob) Name() string { return "daily_snapshot" }

func (j *SnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	_, err := j.Snapshots.TakeDailySnapshot(ctx)
	return err
}

// FXMonitorJob checks every FX watch and sends due alerts.
type FXMonitorJob struct{ Monitor *fx.Monitor }

func (j *FXMonitorJob) Name() string { return "fx_monitor" }

func (j *FXMonitorJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	_, err := j.Monitor.AlertAll(ctx)
	return err
}

// GuruSyncJob pulls new 13F filings for every tracked guru.
type GuruSyncJob struct {
	Gurus *gurus.Service
	Log   zerolog.Logger
}

func (j *GuruSyncJob) Name() string { return "guru_sync" }

func (j *GuruSyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancel()
	results, err := j.Gurus.SyncAll(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Error != "" {
			j.Log.Warn().Str("cik", res.CIK).Str("error", res.Error).Msg("guru sync incomplete")
		}
	}
	return nil
}

// PrewarmJob refreshes the cache fabric for the whole universe.
type PrewarmJob struct{ Warmer *prewarm.Warmer }

func (j *PrewarmJob) Name() string { return "prewarm" }

func (j *PrewarmJob) Run() error {
	_, err := j.Warmer.Run(context.Background())
	return err
}

// CacheCleanupJob sweeps expired L1 entries and runs the disk value-log GC.
type CacheCleanupJob struct {
	Fabric *cache.Fabric
	Log    zerolog.Logger
}

func (j *CacheCleanupJob) Name() string { return "cache_cleanup" }

func (j *CacheCleanupJob) Run() error {
	removed := j.Fabric.Sweep()
	if removed > 0 {
		j.Log.Debug().Int("removed", removed).Msg("cache sweep reclaimed entries")
	}
	return nil
}

// DailyBackupJob writes the daily local backup tier.
type DailyBackupJob struct{ Backups *reliability.BackupService }

func (j *DailyBackupJob) Name() string { return "daily_backup" }

func (j *DailyBackupJob) Run() error { return j.Backups.DailyBackup() }

// WeeklyBackupJob writes the weekly local backup tier.
type WeeklyBackupJob struct{ Backups *reliability.BackupService }

func (j *WeeklyBackupJob) Name() string { return "weekly_backup" }

func (j *WeeklyBackupJob) Run() error { return j.Backups.WeeklyBackup() }

// OffsiteBackupJob ships an archive to R2 and rotates old ones. Registered
// only when R2 is configured.
type OffsiteBackupJob struct {
	Offsite       *reliability.OffsiteBackup
	RetentionDays int
}

func (j *OffsiteBackupJob) Name() string { return "offsite_backup" }

func (j *OffsiteBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	if _, err := j.Offsite.CreateAndUpload(ctx); err != nil {
		return err
	}
	return j.Offsite.Rotate(ctx, j.RetentionDays)
}
