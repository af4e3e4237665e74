package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/scheduler"
)

// offsiteRetentionDays bounds how long R2 archives live beyond the newest
// three, which are always kept.
const offsiteRetentionDays = 90

// Cron specs use six fields, seconds first. Times are server-local.
const (
	specPrewarm       = "0 0 6 * * 1-5"   // weekdays 06:00, before markets open
	specScan          = "0 30 22 * * 1-5" // weekdays 22:30, after the US close
	specSnapshot      = "0 0 22 * * *"    // daily 22:00
	specDigest        = "0 0 9 * * 0"     // Sunday 09:00
	specFXMonitor     = "0 0 */6 * * *"   // every six hours
	specGuruSync      = "0 0 7 * * 1"     // Monday 07:00
	specCacheCleanup  = "0 15 * * * *"    // hourly at :15
	specDailyBackup   = "0 0 3 * * *"     // daily 03:00
	specWeeklyBackup  = "0 30 3 * * 0"    // Sunday 03:30
	specOffsiteBackup = "0 0 4 * * 0"     // Sunday 04:00, after the weekly tier
	specMaintenance   = "0 30 2 * * *"    // daily 02:30, before the backups
)

// RegisterJobs binds every background job to its schedule. The off-site
// job is registered only when R2 is configured.
func RegisterJobs(sched *scheduler.Scheduler, c *Container, log zerolog.Logger) error {
	jobs := []struct {
		spec string
		job  scheduler.Job
	}{
		{specPrewarm, &scheduler.PrewarmJob{Warmer: c.Warmer}},
		{specScan, &scheduler.ScanJob{Scans: c.Scans}},
		{specSnapshot, &scheduler.SnapshotJob{Snapshots: c.Snapshots}},
		{specDigest, &scheduler.DigestJob{Digest: c.Digest}},
		{specFXMonitor, &scheduler.FXMonitorJob{Monitor: c.FXMonitor}},
		{specGuruSync, &scheduler.GuruSyncJob{Gurus: c.Gurus, Log: log}},
		{specCacheCleanup, &scheduler.CacheCleanupJob{Fabric: c.Fabric, Log: log}},
		{specDailyBackup, &scheduler.DailyBackupJob{Backups: c.Backups}},
		{specWeeklyBackup, &scheduler.WeeklyBackupJob{Backups: c.Backups}},
		{specMaintenance, c.Maintenance},
	}
	if c.Offsite != nil {
		jobs = append(jobs, struct {
			spec string
			job  scheduler.Job
		}{specOffsiteBackup, &scheduler.OffsiteBackupJob{Offsite: c.Offsite, RetentionDays: offsiteRetentionDays}})
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.spec, j.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.job.Name(), err)
		}
	}

	return nil
}
