package ingest_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

// MockPersister records every Put and stores successful writes keyed by id.
type MockPersister struct {
	// PutFunc, when set, decides the result of a Put before it is stored.
	PutFunc func(ctx context.Context, rec domain.TransactionRecord) error
	// Delay is slept inside every Put to widen concurrency windows.
	Delay time.Duration

	mu       sync.Mutex
	calls    []domain.TransactionRecord
	stored   map[string]domain.TransactionRecord
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func NewMockPersister() *MockPersister {
	return &MockPersister{stored: make(map[string]domain.TransactionRecord)}
}

func (m *MockPersister) Put(ctx context.Context, rec domain.TransactionRecord) error {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	m.calls = append(m.calls, rec)
	m.mu.Unlock()

	if m.PutFunc != nil {
		if err := m.PutFunc(ctx, rec); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.stored[rec.ID] = rec
	m.mu.Unlock()
	return nil
}

func (m *MockPersister) Calls() []domain.TransactionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TransactionRecord, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockPersister) CallsFor(id string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.ID == id {
			n++
		}
	}
	return n
}

func (m *MockPersister) Stored(id string) (domain.TransactionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.stored[id]
	return rec, ok
}

func (m *MockPersister) StoredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func (m *MockPersister) MaxInFlight() int64 {
	return m.maxSeen.Load()
}

// MockRecordSource is a mock implementation of RecordSource for testing.
type MockRecordSource struct {
	RecordsFunc func(ctx context.Context, loc domain.BatchLocation) ([]domain.TransactionRecord, error)
}

func (m *MockRecordSource) Records(ctx context.Context, loc domain.BatchLocation) ([]domain.TransactionRecord, error) {
	if m.RecordsFunc != nil {
		return m.RecordsFunc(ctx, loc)
	}
	return nil, nil
}

func rec(id, amount string) domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:        id,
		Date:      "2024-01-01",
		AccountID: "a1",
		Amount:    decimal.RequireFromString(amount),
	}
}
