// Package memory provides an in-process Persister for dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/ingest"
)

// Store keeps records in a map keyed by id. Data is lost on restart.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.TransactionRecord

	// FailFunc, when set, is consulted before each write; a non-nil
	// result is returned instead of storing the record.
	FailFunc func(rec domain.TransactionRecord) error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]domain.TransactionRecord)}
}

// Put upserts rec.
func (s *Store) Put(ctx context.Context, rec domain.TransactionRecord) error {
	if err := ctx.Err(); err != nil {
		return ingest.Transient(rec.ID, err)
	}
	if s.FailFunc != nil {
		if err := s.FailFunc(rec); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec
	return nil
}

// Get returns the record stored under id.
func (s *Store) Get(id string) (domain.TransactionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ ingest.Persister = (*Store)(nil)
