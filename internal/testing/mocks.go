package testing

import (
	"context"
	"sync"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/featurestore"
)

// MockAuditRecorder is a mock implementation of the feature store append path
type MockAuditRecorder struct {
	mu      sync.Mutex
	entries []featurestore.Entry
	err     error
}

// NewMockAuditRecorder creates a new mock audit recorder
func NewMockAuditRecorder() *MockAuditRecorder {
	return &MockAuditRecorder{}
}

// SetError makes every Append fail with err
func (m *MockAuditRecorder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Append records e
func (m *MockAuditRecorder) Append(_ context.Context, e featurestore.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of the recorded entries
func (m *MockAuditRecorder) Entries() []featurestore.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]featurestore.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// MockResultStore is a mock implementation of the forecast store
type MockResultStore struct {
	mu    sync.Mutex
	saved map[string]*domain.ForecastResult
	err   error
}

// NewMockResultStore creates a new mock result store
func NewMockResultStore() *MockResultStore {
	return &MockResultStore{saved: make(map[string]*domain.ForecastResult)}
}

// SetError makes every Save fail with err
func (m *MockResultStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Save keeps the latest result per opportunity
func (m *MockResultStore) Save(_ context.Context, r *domain.ForecastResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved[r.OpportunityID] = r
	return nil
}

// Get returns the saved result or nil
func (m *MockResultStore) Get(opportunityID string) *domain.ForecastResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[opportunityID]
}

// Count returns the number of saved results
func (m *MockResultStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}
