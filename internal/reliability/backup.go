// Package reliability keeps folio.db recoverable: tiered local backups,
// an optional off-site copy in R2, and the nightly maintenance pass.
package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const (
	dailyRetentionDays = 30
	weeklyRetention    = 12 * 7 * 24 * time.Hour
)

// BackupService writes tiered copies of the database. VACUUM INTO produces
// an atomic copy with no WAL sidecar, already compacted.
type BackupService struct {
	db        *sql.DB
	backupDir string
	clock     domain.Clock
	log       zerolog.Logger
}

// NewBackupService creates the local backup service.
func NewBackupService(db *sql.DB, backupDir string, clock domain.Clock, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:        db,
		backupDir: backupDir,
		clock:     clock,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// DailyBackup writes today's copy under daily/<date>/ and prunes copies
// older than thirty days.
func (s *BackupService) DailyBackup() error {
	started := s.clock.Now()
	date := started.Format("2006-01-02")
	dailyDir := filepath.Join(s.backupDir, "daily", date)
	if err := os.MkdirAll(dailyDir, 0o755); err != nil {
		return fmt.Errorf("failed to create daily backup directory: %w", err)
	}

	target := filepath.Join(dailyDir, "folio.db")
	if err := s.BackupTo(target); err != nil {
		return err
	}

	if err := s.rotateDaily(); err != nil {
		s.log.Warn().Err(err).Msg("daily backup rotation failed")
	}

	s.log.Info().
		Str("backup", target).
		Dur("duration", s.clock.Now().Sub(started)).
		Msg("daily backup completed")
	return nil
}

// WeeklyBackup writes this ISO week's copy under weekly/<year>-W<week>/ and
// prunes copies older than twelve weeks.
func (s *BackupService) WeeklyBackup() error {
	started := s.clock.Now()
	year, week := started.ISOWeek()
	weekDir := filepath.Join(s.backupDir, "weekly", fmt.Sprintf("%04d-W%02d", year, week))
	if err := os.MkdirAll(weekDir, 0o755); err != nil {
		return fmt.Errorf("failed to create weekly backup directory: %w", err)
	}

	target := filepath.Join(weekDir, "folio.db")
	if err := s.BackupTo(target); err != nil {
		return err
	}

	if err := s.rotateWeekly(); err != nil {
		s.log.Warn().Err(err).Msg("weekly backup rotation failed")
	}

	s.log.Info().
		Str("backup", target).
		Dur("duration", s.clock.Now().Sub(started)).
		Msg("weekly backup completed")
	return nil
}

// BackupTo copies the live database to path and verifies the copy. A copy
// that fails its integrity check is removed, never left behind.
func (s *BackupService) BackupTo(path string) error {
	if _, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", path)); err != nil {
		return fmt.Errorf("failed to vacuum into %s: %w", path, err)
	}
	if err := verifyBackup(path); err != nil {
		os.Remove(path)
		return fmt.Errorf("backup verification failed: %w", err)
	}
	return nil
}

// VerifyLatestDaily checks the most recent daily copy. The maintenance job
// runs it the morning after each backup.
func (s *BackupService) VerifyLatestDaily() error {
	dailyDir := filepath.Join(s.backupDir, "daily")
	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return fmt.Errorf("failed to read daily backup directory: %w", err)
	}

	latest := ""
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].IsDir() {
			latest = entries[i].Name()
			break
		}
	}
	if latest == "" {
		return fmt.Errorf("no daily backups found")
	}
	return verifyBackup(filepath.Join(dailyDir, latest, "folio.db"))
}

func verifyBackup(path string) error {
	backup, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backup.Close()

	var result string
	if err := backup.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// rotateDaily drops daily directories older than the retention window. The
// directory name is the date; unparseable names are left alone.
func (s *BackupService) rotateDaily() error {
	dailyDir := filepath.Join(s.backupDir, "daily")
	cutoff := s.clock.Now().AddDate(0, 0, -dailyRetentionDays)

	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return fmt.Errorf("failed to read daily backup directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirDate, err := time.Parse("2006-01-02", entry.Name())
		if err != nil {
			s.log.Warn().Str("dir", entry.Name()).Msg("unrecognized daily backup directory")
			continue
		}
		if dirDate.Before(cutoff) {
			path := filepath.Join(dailyDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("failed to delete old daily backup")
				continue
			}
			s.log.Debug().Str("path", path).Msg("deleted old daily backup")
		}
	}
	return nil
}

func (s *BackupService) rotateWeekly() error {
	weeklyDir := filepath.Join(s.backupDir, "weekly")
	cutoff := s.clock.Now().Add(-weeklyRetention)

	entries, err := os.ReadDir(weeklyDir)
	if err != nil {
		return fmt.Errorf("failed to read weekly backup directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(weeklyDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("failed to delete old weekly backup")
				continue
			}
			s.log.Debug().Str("path", path).Msg("deleted old weekly backup")
		}
	}
	return nil
}
