// Package trigger turns storage notifications into ingest batch jobs.
package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/jobs"
)

// ErrFiltered is returned when a notification does not match the filter.
var ErrFiltered = errors.New("notification filtered out")

// Trigger publishes one ingest job per accepted notification.
type Trigger struct {
	filter    Filter
	publisher jobs.Publisher
	log       zerolog.Logger
}

// New creates a Trigger.
func New(filter Filter, publisher jobs.Publisher, log zerolog.Logger) *Trigger {
	return &Trigger{filter: filter, publisher: publisher, log: log}
}

// Notify publishes a job for n when it passes the filter and returns it.
// Notifications that do not pass return ErrFiltered.
func (t *Trigger) Notify(ctx context.Context, n Notification) (*jobs.IngestBatchJob, error) {
	if !t.filter.Accept(n) {
		t.log.Debug().
			Str("bucket", n.Bucket).
			Str("key", n.Key).
			Str("event_type", n.EventType).
			Msg("Ignoring storage notification")
		return nil, ErrFiltered
	}

	return t.Submit(ctx, n.Location())
}

// Submit publishes a job for loc without filtering. onlyIDs restricts the
// run to those record ids, for operator re-drives.
func (t *Trigger) Submit(ctx context.Context, loc domain.BatchLocation, onlyIDs ...string) (*jobs.IngestBatchJob, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return nil, fmt.Errorf("Submit: bucket and key are required")
	}

	job := &jobs.IngestBatchJob{
		Bucket:        loc.Bucket,
		Object:        loc.Key,
		OnlyRecordIDs: onlyIDs,
	}
	if err := t.publisher.PublishIngestBatch(ctx, job); err != nil {
		return nil, fmt.Errorf("Submit: publishing job: %w", err)
	}

	t.log.Info().
		Str("job_id", job.JobID).
		Str("batch", loc.String()).
		Int("only_record_ids", len(onlyIDs)).
		Msg("Ingest job published")

	return job, nil
}
