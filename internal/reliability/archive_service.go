package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	archiveTimeLayout = "2006-01-02-150405"
	archiveSuffix     = ".db.gz"

	// minArchivesToKeep survive rotation regardless of age
	minArchivesToKeep = 3
)

// Snapshotter produces a consistent copy of a database file
type Snapshotter interface {
	VacuumInto(ctx context.Context, dest string) error
	Name() string
}

// ArchiveMetadata describes one uploaded archive
type ArchiveMetadata struct {
	Key               string    `json:"key"`
	Database          string    `json:"database"`
	ModelVersion      string    `json:"model_version"`
	CreatedAt         time.Time `json:"created_at"`
	SizeBytes         int64     `json:"size_bytes"`
	UncompressedBytes int64     `json:"uncompressed_bytes"`
	Checksum          string    `json:"checksum"`
}

// ArchiveInfo is an archive found in object storage
type ArchiveInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// ArchiveService snapshots the audit database and uploads it
type ArchiveService struct {
	source       Snapshotter
	store        ObjectStore
	stagingDir   string
	prefix       string
	modelVersion string
	now          func() time.Time
	log          zerolog.Logger
}

// NewArchiveService creates a new archive service
func NewArchiveService(
	source Snapshotter,
	store ObjectStore,
	stagingDir string,
	prefix string,
	modelVersion string,
	log zerolog.Logger,
) *ArchiveService {
	if prefix == "" {
		prefix = "audit"
	}
	return &ArchiveService{
		source:       source,
		store:        store,
		stagingDir:   stagingDir,
		prefix:       strings.TrimSuffix(prefix, "/"),
		modelVersion: modelVersion,
		now:          time.Now,
		log:          log.With().Str("service", "audit_archive").Logger(),
	}
}

func (s *ArchiveService) keyPrefix() string {
	return s.prefix + "/" + s.source.Name() + "-"
}

// CreateAndUpload snapshots the database, compresses it and uploads the archive
func (s *ArchiveService) CreateAndUpload(ctx context.Context) (*ArchiveMetadata, error) {
	s.log.Info().Msg("Starting audit archive")
	start := s.now()

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	staging, err := os.MkdirTemp(s.stagingDir, "archive-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	snapshotPath := filepath.Join(staging, s.source.Name()+".db")
	if err := s.source.VacuumInto(ctx, snapshotPath); err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", s.source.Name(), err)
	}

	archivePath := snapshotPath + ".gz"
	uncompressed, checksum, err := compress(snapshotPath, archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	meta := &ArchiveMetadata{
		Key:               s.keyPrefix() + start.UTC().Format(archiveTimeLayout) + archiveSuffix,
		Database:          s.source.Name(),
		ModelVersion:      s.modelVersion,
		CreatedAt:         start.UTC(),
		SizeBytes:         info.Size(),
		UncompressedBytes: uncompressed,
		Checksum:          checksum,
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	err = s.store.Upload(ctx, meta.Key, file, map[string]string{
		"checksum":           meta.Checksum,
		"model-version":      meta.ModelVersion,
		"uncompressed-bytes": strconv.FormatInt(meta.UncompressedBytes, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}

	s.log.Info().
		Str("key", meta.Key).
		Int64("size_bytes", meta.SizeBytes).
		Dur("duration_ms", s.now().Sub(start)).
		Msg("Audit archive uploaded")

	return meta, nil
}

// List returns archives in object storage, newest first
func (s *ArchiveService) List(ctx context.Context) ([]ArchiveInfo, error) {
	prefix := s.keyPrefix()
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	now := s.now()
	archives := make([]ArchiveInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, prefix) || !strings.HasSuffix(obj.Key, archiveSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), archiveSuffix)
		ts, err := time.Parse(archiveTimeLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from archive key")
			continue
		}
		archives = append(archives, ArchiveInfo{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Timestamp.After(archives[j].Timestamp)
	})
	return archives, nil
}

// Rotate deletes archives older than retentionDays, always keeping the newest few.
// A retention of 0 keeps everything.
func (s *ArchiveService) Rotate(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	archives, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(archives) <= minArchivesToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, a := range archives[minArchivesToKeep:] {
		if !a.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, a.Key); err != nil {
			s.log.Error().Err(err).Str("key", a.Key).Msg("Failed to delete old archive")
			continue
		}
		deleted++
	}

	s.log.Info().Int("deleted", deleted).Int("remaining", len(archives)-deleted).Msg("Archive rotation completed")
	return deleted, nil
}

// compress gzips src into dst and returns the uncompressed size and the sha256 of dst
func compress(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, "", err
	}
	defer out.Close()

	hash := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, hash))

	n, err := io.Copy(gz, in)
	if err != nil {
		return 0, "", err
	}
	if err := gz.Close(); err != nil {
		return 0, "", err
	}
	return n, "sha256:" + hex.EncodeToString(hash.Sum(nil)), nil
}
