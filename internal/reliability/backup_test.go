package reliability

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/folio/internal/domain"
)

var backupClock = domain.ClockFunc(func() time.Time {
	return time.Date(2025, 6, 2, 5, 0, 0, 0, time.UTC)
})

// newBackupFixture opens a file-backed database with a few rows and wires a
// backup service around it.
func newBackupFixture(t *testing.T) (*BackupService, string) {
	t.Helper()
	tempDir := t.TempDir()
	dataDir := filepath.Join(tempDir, "data")
	backupDir := filepath.Join(tempDir, "backups")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "folio.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("CREATE TABLE stocks (ticker TEXT PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO stocks (ticker, name) VALUES ('AAPL', 'Apple'), ('NVDA', 'NVIDIA')")
	require.NoError(t, err)

	return NewBackupService(db, backupDir, backupClock, zerolog.Nop()), backupDir
}

func openBackup(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDailyBackupCreatesVerifiedCopy(t *testing.T) {
	svc, backupDir := newBackupFixture(t)

	require.NoError(t, svc.DailyBackup())

	copyPath := filepath.Join(backupDir, "daily", "2025-06-02", "folio.db")
	backup := openBackup(t, copyPath)

	var result string
	require.NoError(t, backup.QueryRow("PRAGMA integrity_check").Scan(&result))
	assert.Equal(t, "ok", result)

	var count int
	require.NoError(t, backup.QueryRow("SELECT COUNT(*) FROM stocks").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestDailyBackupRotatesOldCopies(t *testing.T) {
	svc, backupDir := newBackupFixture(t)

	old := filepath.Join(backupDir, "daily", "2025-04-01")
	recent := filepath.Join(backupDir, "daily", "2025-05-20")
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, os.MkdirAll(recent, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(old, "folio.db"), []byte("stale"), 0o644))

	require.NoError(t, svc.DailyBackup())

	assert.NoDirExists(t, old, "copies past thirty days are pruned")
	assert.DirExists(t, recent)
	assert.FileExists(t, filepath.Join(backupDir, "daily", "2025-06-02", "folio.db"))
}

func TestWeeklyBackupUsesISOWeekDirectory(t *testing.T) {
	svc, backupDir := newBackupFixture(t)

	require.NoError(t, svc.WeeklyBackup())

	assert.FileExists(t, filepath.Join(backupDir, "weekly", "2025-W23", "folio.db"))
}

func TestVerifyLatestDaily(t *testing.T) {
	svc, backupDir := newBackupFixture(t)

	err := svc.VerifyLatestDaily()
	require.Error(t, err, "nothing to verify before the first backup")

	require.NoError(t, svc.DailyBackup())
	require.NoError(t, svc.VerifyLatestDaily())

	// A truncated copy must fail verification.
	copyPath := filepath.Join(backupDir, "daily", "2025-06-02", "folio.db")
	require.NoError(t, os.WriteFile(copyPath, []byte("not a database"), 0o644))
	assert.Error(t, svc.VerifyLatestDaily())
}

func TestBackupToWritesVerifiedCopy(t *testing.T) {
	svc, _ := newBackupFixture(t)
	target := filepath.Join(t.TempDir(), "copy.db")

	require.NoError(t, svc.BackupTo(target))
	assert.FileExists(t, target)
}

func TestMaintenanceRunSurvivesMissingBackups(t *testing.T) {
	svc, backupDir := newBackupFixture(t)

	// No backup exists yet; verification degrades to a warning.
	job := NewMaintenanceJob(svc.db, svc, filepath.Dir(backupDir), backupClock, zerolog.Nop())
	assert.Equal(t, "maintenance", job.Name())
	require.NoError(t, job.Run())
}
