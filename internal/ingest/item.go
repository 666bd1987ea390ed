package ingest

import (
	"context"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/provision"
)

// ItemOutcome is the result of processing one original record.
type ItemOutcome string

const (
	// OutcomeSucceeded means every required write landed.
	OutcomeSucceeded ItemOutcome = "SUCCEEDED"
	// OutcomePartiallyFailed means the original is stored but its provision is not.
	OutcomePartiallyFailed ItemOutcome = "PARTIALLY_FAILED"
	// OutcomeFailed means the original was not stored.
	OutcomeFailed ItemOutcome = "FAILED"
)

// ItemResult describes what happened to one item.
type ItemResult struct {
	RecordID    string
	Outcome     ItemOutcome
	ProvisionID string // set when a provision record was derived
	Err         error
}

// Kind returns the failure kind, or "" for succeeded items.
func (r ItemResult) Kind() ErrorKind {
	return KindOf(r.Err)
}

// ItemProcessor processes one original record to completion.
type ItemProcessor interface {
	Process(ctx context.Context, rec domain.TransactionRecord) ItemResult
}

// PersistOnly stores the original record and nothing else. It is used when
// the provision ratio is zero.
type PersistOnly struct {
	Persister Persister
}

// Process implements ItemProcessor.
func (p PersistOnly) Process(ctx context.Context, rec domain.TransactionRecord) ItemResult {
	if err := p.Persister.Put(ctx, rec); err != nil {
		return ItemResult{RecordID: rec.ID, Outcome: OutcomeFailed, Err: err}
	}
	return ItemResult{RecordID: rec.ID, Outcome: OutcomeSucceeded}
}

// DeriveAndPersist stores the original, then derives and stores its
// provision record. The provision write is only attempted after the
// original write succeeded.
type DeriveAndPersist struct {
	Persister Persister
	Deriver   provision.Deriver
}

// Process implements ItemProcessor.
func (p DeriveAndPersist) Process(ctx context.Context, rec domain.TransactionRecord) ItemResult {
	if err := p.Persister.Put(ctx, rec); err != nil {
		return ItemResult{RecordID: rec.ID, Outcome: OutcomeFailed, Err: err}
	}

	derived, ok := p.Deriver.Derive(rec)
	if !ok {
		return ItemResult{RecordID: rec.ID, Outcome: OutcomeSucceeded}
	}

	if err := p.Persister.Put(ctx, derived); err != nil {
		return ItemResult{RecordID: rec.ID, Outcome: OutcomePartiallyFailed, ProvisionID: derived.ID, Err: err}
	}

	return ItemResult{RecordID: rec.ID, Outcome: OutcomeSucceeded, ProvisionID: derived.ID}
}

// SelectItemProcessor picks the per-item strategy for a whole batch from the
// configured ratio.
func SelectItemProcessor(persister Persister, deriver provision.Deriver) ItemProcessor {
	if !deriver.Ratio.Enabled() {
		return PersistOnly{Persister: persister}
	}
	return DeriveAndPersist{Persister: persister, Deriver: deriver}
}
