package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/opportunity-forecast/internal/reliability"
	"github.com/rs/zerolog"
)

// Archiver uploads a snapshot of the audit log to object storage
type Archiver interface {
	CreateAndUpload(ctx context.Context) (*reliability.ArchiveMetadata, error)
	Rotate(ctx context.Context, retentionDays int) (int, error)
}

// ArchiveJob ships the feature store to object storage
type ArchiveJob struct {
	archiver      Archiver
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewArchiveJob creates a new ArchiveJob
func NewArchiveJob(archiver Archiver, retentionDays int, timeout time.Duration, log zerolog.Logger) *ArchiveJob {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &ArchiveJob{
		archiver:      archiver,
		retentionDays: retentionDays,
		timeout:       timeout,
		log:           log.With().Str("job", "audit_archive").Logger(),
	}
}

// Name returns the job name
func (j *ArchiveJob) Name() string {
	return "audit_archive"
}

// Run uploads a fresh archive, then rotates old ones. Rotation failures are logged only.
func (j *ArchiveJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	meta, err := j.archiver.CreateAndUpload(ctx)
	if err != nil {
		return fmt.Errorf("audit archive failed: %w", err)
	}

	j.log.Info().
		Str("key", meta.Key).
		Int64("size_bytes", meta.SizeBytes).
		Str("sha256", meta.Checksum).
		Msg("Audit archive uploaded")

	if _, err := j.archiver.Rotate(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Archive rotation failed")
	}
	return nil
}
