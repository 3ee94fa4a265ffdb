// Package snapshot loads opportunity snapshots exported by the upstream CRM.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/rs/zerolog"
)

// FileSource reads a JSON array of opportunities from disk on every Load,
// so a re-exported file is picked up without a restart.
type FileSource struct {
	path string
	log  zerolog.Logger
}

// NewFileSource creates a new FileSource
func NewFileSource(path string, log zerolog.Logger) *FileSource {
	return &FileSource{
		path: path,
		log:  log.With().Str("component", "snapshot").Str("path", path).Logger(),
	}
}

// Path returns the snapshot file path
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and decodes the snapshot. Elements that fail to decode are
// returned as records carrying a ValidationError; only an unreadable file fails.
func (s *FileSource) Load(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", s.path, err)
	}

	rejected := 0
	for _, rec := range records {
		if rec.Err != nil {
			rejected++
		}
	}
	s.log.Debug().Int("records", len(records)).Int("rejected", rejected).Msg("Loaded snapshot")
	return records, nil
}

// Decode reads a JSON array of opportunities, decoding each element on its own.
// A single object is accepted too.
func Decode(r io.Reader) ([]domain.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return domain.DecodeRecords(data)
}
