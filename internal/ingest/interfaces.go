package ingest

import (
	"context"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

// Persister durably stores transaction records.
// Put is an idempotent upsert keyed by record id and must be safe for
// concurrent use. Failures should be reported as *PersistError so the
// caller can tell transient from permanent problems.
type Persister interface {
	Put(ctx context.Context, rec domain.TransactionRecord) error
}

// RecordSource delivers the ordered, already-parsed records of one batch.
type RecordSource interface {
	Records(ctx context.Context, loc domain.BatchLocation) ([]domain.TransactionRecord, error)
}

// PersisterFunc adapts a function to the Persister interface.
type PersisterFunc func(ctx context.Context, rec domain.TransactionRecord) error

// Put calls f.
func (f PersisterFunc) Put(ctx context.Context, rec domain.TransactionRecord) error {
	return f(ctx, rec)
}
