package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

// MemoryStore is an in-process Store used by tests and ephemeral runs.
type MemoryStore struct {
	mu        sync.RWMutex
	processed []models.ProcessedRecord
	accepted  []models.AcceptedRecord
	index     map[string]struct{}

	// FailAppend, when set, is returned by AppendDecision without writing.
	FailAppend error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]struct{})}
}

func (m *MemoryStore) Contains(ctx context.Context, c models.Combination) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[c.Fingerprint()]
	return ok, nil
}

func (m *MemoryStore) AppendDecision(ctx context.Context, processed *models.ProcessedRecord, accepted *models.AcceptedRecord) error {
	if processed == nil {
		return fmt.Errorf("nil processed record")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend != nil {
		return m.FailAppend
	}
	fp := processed.Combination.Fingerprint()
	if _, ok := m.index[fp]; ok {
		return ErrAlreadyProcessed
	}
	m.index[fp] = struct{}{}
	m.processed = append(m.processed, *processed)
	if accepted != nil {
		m.accepted = append(m.accepted, *accepted)
	}
	return nil
}

func (m *MemoryStore) ListProcessed(ctx context.Context) ([]models.ProcessedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ProcessedRecord(nil), m.processed...), nil
}

func (m *MemoryStore) ListAccepted(ctx context.Context) ([]models.AcceptedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AcceptedRecord(nil), m.accepted...), nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
