package ledger

import (
	"context"
	"sync"

	"github.com/vaultgate/vaultgate/pkg/models"
)

// Store persists usage records. Get returns nil (and no error) for a
// principal with no record yet; the service creates records lazily.
//
// Implementations do not need to synchronize per-principal access: the
// service serializes Admit/SetAbsolute for one principal above the store.
type Store interface {
	Get(ctx context.Context, principal string) (*models.UsageRecord, error)
	Put(ctx context.Context, rec *models.UsageRecord) error
}

// MemoryStore is an in-process Store used in tests and single-node setups
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.UsageRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.UsageRecord)}
}

// Get returns a copy of the record for a principal, or nil if absent
func (s *MemoryStore) Get(ctx context.Context, principal string) (*models.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[principal]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Put stores a record, replacing any existing one
func (s *MemoryStore) Put(ctx context.Context, rec *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Principal] = *rec
	return nil
}
