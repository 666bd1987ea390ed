// Package ingest runs one batch of transaction records through persistence,
// deriving provision records along the way when a ratio is configured.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/provision"
)

// DefaultWorkerLimit bounds concurrent items per batch when no limit is set.
const DefaultWorkerLimit = 10

// BatchState is the lifecycle position of one batch run.
type BatchState string

const (
	StateReceived    BatchState = "RECEIVED"
	StateFannedOut   BatchState = "FANNED_OUT"
	StateAggregating BatchState = "AGGREGATING"
	StateSucceeded   BatchState = "SUCCEEDED"
	StateFailed      BatchState = "FAILED"
)

// Config configures an Orchestrator.
type Config struct {
	Ratio       provision.Ratio
	WorkerLimit int
	// NewID overrides provision id generation; nil means random UUIDs.
	NewID provision.IDFunc
	// OnState, when set, observes every state transition of every batch.
	OnState func(loc domain.BatchLocation, state BatchState)
}

// BatchResult is the aggregated outcome of one batch.
type BatchResult struct {
	Location         domain.BatchLocation
	State            BatchState
	ProvisionEnabled bool
	Items            []ItemResult
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Succeeded reports whether every item succeeded. An empty batch succeeds.
func (r *BatchResult) Succeeded() bool {
	return r.State == StateSucceeded
}

// Outcomes returns the per-item outcome map keyed by record id.
func (r *BatchResult) Outcomes() map[string]ItemOutcome {
	out := make(map[string]ItemOutcome, len(r.Items))
	for _, item := range r.Items {
		out[item.RecordID] = item.Outcome
	}
	return out
}

// Failures returns the non-succeeded items in batch order.
func (r *BatchResult) Failures() []ItemResult {
	var failed []ItemResult
	for _, item := range r.Items {
		if item.Outcome != OutcomeSucceeded {
			failed = append(failed, item)
		}
	}
	return failed
}

// RetryableIDs returns the ids of non-succeeded items whose failure is transient.
func (r *BatchResult) RetryableIDs() []string {
	var ids []string
	for _, item := range r.Failures() {
		if item.Kind() == KindTransient {
			ids = append(ids, item.RecordID)
		}
	}
	return ids
}

// Count returns how many items ended with the given outcome.
func (r *BatchResult) Count(outcome ItemOutcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

// Orchestrator fans a batch out over a bounded number of workers.
// It holds no per-batch state, so one Orchestrator may run many batches
// concurrently.
type Orchestrator struct {
	persister Persister
	deriver   provision.Deriver
	limit     int
	onState   func(domain.BatchLocation, BatchState)
	log       zerolog.Logger
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator writing through persister.
func NewOrchestrator(persister Persister, cfg Config, log zerolog.Logger) *Orchestrator {
	limit := cfg.WorkerLimit
	if limit <= 0 {
		limit = DefaultWorkerLimit
	}

	return &Orchestrator{
		persister: persister,
		deriver:   provision.Deriver{Ratio: cfg.Ratio, NewID: cfg.NewID},
		limit:     limit,
		onState:   cfg.OnState,
		log:       log,
		now:       time.Now,
	}
}

// Ingest reads the batch at loc from src and runs it. A read failure is
// returned as *SourceReadError and no item is attempted.
func (o *Orchestrator) Ingest(ctx context.Context, src RecordSource, loc domain.BatchLocation, onlyIDs ...string) (*BatchResult, error) {
	records, err := src.Records(ctx, loc)
	if err != nil {
		o.log.Error().Err(err).Str("batch", loc.String()).Msg("Failed to read batch")
		return nil, NewSourceReadError(loc, err)
	}

	batch := domain.Batch{Location: loc, Records: records}.Filter(onlyIDs)
	return o.Run(ctx, batch), nil
}

// Run processes every record of batch and aggregates the outcomes. Item
// failures never stop sibling items. If ctx is cancelled, records not yet
// started are reported as failed with the context error.
func (o *Orchestrator) Run(ctx context.Context, batch domain.Batch) *BatchResult {
	result := &BatchResult{
		Location:         batch.Location,
		ProvisionEnabled: o.deriver.Ratio.Enabled(),
		StartedAt:        o.now(),
	}
	o.transition(result, StateReceived)

	log := o.log.With().Str("batch", batch.Location.String()).Logger()
	log.Info().
		Int("records", len(batch.Records)).
		Bool("provision_enabled", result.ProvisionEnabled).
		Msg("Processing batch")

	// Chosen once for the whole batch.
	processor := SelectItemProcessor(o.persister, o.deriver)

	items := make([]ItemResult, len(batch.Records))

	var g errgroup.Group
	g.SetLimit(o.limit)
	o.transition(result, StateFannedOut)

	for i, rec := range batch.Records {
		if err := ctx.Err(); err != nil {
			items[i] = ItemResult{RecordID: rec.ID, Outcome: OutcomeFailed, Err: fmt.Errorf("not started: %w", err)}
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i] = ItemResult{RecordID: rec.ID, Outcome: OutcomeFailed, Err: fmt.Errorf("not started: %w", err)}
				return nil
			}
			items[i] = processor.Process(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	o.transition(result, StateAggregating)
	result.Items = items
	result.FinishedAt = o.now()

	for _, item := range items {
		switch item.Outcome {
		case OutcomeSucceeded:
			log.Debug().Str("record_id", item.RecordID).Str("provision_id", item.ProvisionID).Msg("Item processed")
		default:
			log.Warn().
				Err(item.Err).
				Str("record_id", item.RecordID).
				Str("outcome", string(item.Outcome)).
				Str("error_kind", string(item.Kind())).
				Msg("Item not fully persisted")
		}
	}

	final := StateSucceeded
	if len(result.Failures()) > 0 {
		final = StateFailed
	}
	o.transition(result, final)

	log.Info().
		Str("status", string(final)).
		Int("succeeded", result.Count(OutcomeSucceeded)).
		Int("partially_failed", result.Count(OutcomePartiallyFailed)).
		Int("failed", result.Count(OutcomeFailed)).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Batch finished")

	return result
}

func (o *Orchestrator) transition(result *BatchResult, state BatchState) {
	result.State = state
	if o.onState != nil {
		o.onState(result.Location, state)
	}
}
