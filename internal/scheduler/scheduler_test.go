package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/opportunity-forecast/internal/database"
	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast/workers"
	"github.com/aristath/opportunity-forecast/internal/reference"
	"github.com/aristath/opportunity-forecast/internal/reliability"
	"github.com/aristath/opportunity-forecast/internal/snapshot"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

type staticSource struct {
	records []domain.Record
	err     error
}

func (s *staticSource) Load(context.Context) ([]domain.Record, error) {
	return s.records, s.err
}

type recordingForecaster struct {
	calls int
	seen  []domain.Record
}

func (f *recordingForecaster) ForecastRecords(_ context.Context, records []domain.Record, progress workers.ProgressFunc) *forecast.BatchResult {
	f.calls++
	f.seen = records
	for i := range records {
		progress(i+1, len(records), "")
	}
	return &forecast.BatchResult{RunID: "run-1", Results: make([]*domain.ForecastResult, len(records))}
}

type fakeArchiver struct {
	uploadErr error
	rotateErr error
	rotated   []int
}

func (a *fakeArchiver) CreateAndUpload(context.Context) (*reliability.ArchiveMetadata, error) {
	if a.uploadErr != nil {
		return nil, a.uploadErr
	}
	return &reliability.ArchiveMetadata{Key: "audit/audit-x.db.gz", SizeBytes: 10, Checksum: "sha256:00"}, nil
}

func (a *fakeArchiver) Rotate(_ context.Context, days int) (int, error) {
	a.rotated = append(a.rotated, days)
	return 0, a.rotateErr
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.AddJob("0 */15 * * * *", job))
	require.NoError(t, s.AddJob("@every 1h", job))
	assert.Equal(t, 2, s.Entries())

	err := s.AddJob("not a schedule", job)
	assert.Error(t, err)
	assert.Equal(t, 2, s.Entries())
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}

	err := s.RunNow(job)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	require.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestReforecastJob_Run(t *testing.T) {
	source := &staticSource{records: domain.RecordsOf([]domain.Opportunity{{ID: "a"}, {ID: "b"}})}
	forecaster := &recordingForecaster{}
	job := NewReforecastJob(source, forecaster, 0, zerolog.Nop())

	assert.Equal(t, "reforecast", job.Name())
	assert.Nil(t, job.LastRun())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, forecaster.calls)
	assert.Len(t, forecaster.seen, 2)
	require.NotNil(t, job.LastRun())
	assert.Equal(t, "run-1", job.LastRun().RunID)
}

func TestReforecastJob_MalformedRecordDoesNotAbortRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opps.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`[{"id":"good-1","amount":250000,"stage":"Proposal"},{"id":"bad","amount":"lots"},{"id":"good-2","amount":5000}]`), 0644))

	engine, err := forecast.NewEngine(reference.MustDefault())
	require.NoError(t, err)
	svc := forecast.NewService(engine, workers.NewWorkerPool(2), nil, nil, zerolog.Nop())
	job := NewReforecastJob(snapshot.NewFileSource(path, zerolog.Nop()), svc, time.Minute, zerolog.Nop())

	require.NoError(t, job.Run())

	run := job.LastRun()
	require.NotNil(t, run)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "good-1", run.Results[0].OpportunityID)
	assert.Equal(t, "good-2", run.Results[1].OpportunityID)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, 1, run.Failures[0].Index)
	assert.Equal(t, "bad", run.Failures[0].OpportunityID)
	assert.Equal(t, "amount", run.Failures[0].Field)
}

func TestReforecastJob_LastRunIsSafeForConcurrentReaders(t *testing.T) {
	source := &staticSource{records: domain.RecordsOf([]domain.Opportunity{{ID: "a"}})}
	job := NewReforecastJob(source, &recordingForecaster{}, time.Minute, zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = job.Run()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = job.LastRun()
		}
	}()
	wg.Wait()

	require.NotNil(t, job.LastRun())
}

func TestReforecastJob_EmptySource(t *testing.T) {
	forecaster := &recordingForecaster{}
	job := NewReforecastJob(&staticSource{}, forecaster, time.Minute, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Zero(t, forecaster.calls)
}

func TestReforecastJob_SourceError(t *testing.T) {
	job := NewReforecastJob(&staticSource{err: errors.New("missing file")}, &recordingForecaster{}, time.Minute, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing file")
}

func TestArchiveJob_Run(t *testing.T) {
	archiver := &fakeArchiver{rotateErr: errors.New("list failed")}
	job := NewArchiveJob(archiver, 30, 0, zerolog.Nop())

	assert.Equal(t, "audit_archive", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, []int{30}, archiver.rotated)
}

func TestArchiveJob_UploadError(t *testing.T) {
	archiver := &fakeArchiver{uploadErr: errors.New("denied")}
	job := NewArchiveJob(archiver, 30, time.Minute, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Empty(t, archiver.rotated)
}

func TestWALCheckpointJob_Run(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "forecasts.db"),
		Profile: database.ProfileStandard,
		Name:    database.NameForecasts,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	job := NewWALCheckpointJob(zerolog.Nop(), db, nil)
	assert.Equal(t, "wal_checkpoint", job.Name())
	assert.NoError(t, job.Run())
}
