package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const (
	archivePrefix     = "folio-backup-"
	archiveTimeLayout = "2006-01-02-150405"
	minArchivesKept   = 3
)

// Uploader is the remote side of the off-site backup; R2Client implements
// it.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// ArchiveMetadata rides inside each archive so a restore can check what it
// has before touching the live database.
type ArchiveMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// ArchiveInfo describes one remote archive.
type ArchiveInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// OffsiteBackup stages a verified database copy, wraps it with checksum
// metadata into a tar.gz, and ships it to the remote bucket.
type OffsiteBackup struct {
	remote  Uploader
	backups *BackupService
	dataDir string
	clock   domain.Clock
	log     zerolog.Logger
}

// NewOffsiteBackup creates the off-site backup service.
func NewOffsiteBackup(remote Uploader, backups *BackupService, dataDir string, clock domain.Clock, log zerolog.Logger) *OffsiteBackup {
	return &OffsiteBackup{
		remote:  remote,
		backups: backups,
		dataDir: dataDir,
		clock:   clock,
		log:     log.With().Str("service", "offsite_backup").Logger(),
	}
}

// CreateAndUpload builds a fresh archive and uploads it, returning the
// archive name.
func (s *OffsiteBackup) CreateAndUpload(ctx context.Context) (string, error) {
	started := s.clock.Now()

	staging := filepath.Join(s.dataDir, "r2-staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	dbPath := filepath.Join(staging, "folio.db")
	if err := s.backups.BackupTo(dbPath); err != nil {
		return "", fmt.Errorf("failed to stage database copy: %w", err)
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat staged copy: %w", err)
	}
	checksum, err := fileChecksum(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to checksum staged copy: %w", err)
	}

	meta := ArchiveMetadata{
		Timestamp: started.UTC(),
		Database:  "folio.db",
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}
	metaPath := filepath.Join(staging, "backup-metadata.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := archivePrefix + started.Format(archiveTimeLayout) + ".tar.gz"
	archivePath := filepath.Join(staging, archiveName)
	if err := createArchive(archivePath, dbPath, metaPath); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if err := s.remote.Upload(ctx, archiveName, archive); err != nil {
		return "", err
	}

	archiveInfo, _ := os.Stat(archivePath)
	var sizeBytes int64
	if archiveInfo != nil {
		sizeBytes = archiveInfo.Size()
	}
	s.log.Info().
		Str("archive", archiveName).
		Int64("size_bytes", sizeBytes).
		Dur("duration", s.clock.Now().Sub(started)).
		Msg("off-site backup uploaded")
	return archiveName, nil
}

// ListArchives returns the remote archives, newest first. Objects whose
// names don't parse are skipped.
func (s *OffsiteBackup) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	objects, err := s.remote.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote archives: %w", err)
	}

	now := s.clock.Now()
	archives := make([]ArchiveInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, archivePrefix) || !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, archivePrefix), ".tar.gz")
		ts, err := time.Parse(archiveTimeLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("unrecognized archive name")
			continue
		}
		archives = append(archives, ArchiveInfo{
			Filename:  obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(archives, func(i, j int) bool { return archives[i].Timestamp.After(archives[j].Timestamp) })
	return archives, nil
}

// Rotate deletes archives older than retentionDays, always keeping the
// newest three. retentionDays zero keeps everything.
func (s *OffsiteBackup) Rotate(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	archives, err := s.ListArchives(ctx)
	if err != nil {
		return err
	}
	if len(archives) <= minArchivesKept {
		return nil
	}

	cutoff := s.clock.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, archive := range archives {
		if i < minArchivesKept || !archive.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.remote.Delete(ctx, archive.Filename); err != nil {
			s.log.Warn().Err(err).Str("archive", archive.Filename).Msg("failed to delete old archive")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(archives)-deleted).
		Msg("off-site rotation completed")
	return nil
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, meta ArchiveMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// createArchive packs the staged copy and its metadata into a tar.gz.
func createArchive(archivePath string, files ...string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, path := range files {
		if err := addFileToArchive(tw, path); err != nil {
			return fmt.Errorf("failed to add %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    filepath.Base(path),
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}
