package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/ingest"
)

// BatchRunner runs one batch. *ingest.Orchestrator satisfies it.
type BatchRunner interface {
	Ingest(ctx context.Context, src ingest.RecordSource, loc domain.BatchLocation, onlyIDs ...string) (*ingest.BatchResult, error)
}

// BatchHandler turns ingest batch jobs into orchestrator runs and decides
// whether a failed run is worth another attempt.
type BatchHandler struct {
	runner BatchRunner
	source ingest.RecordSource
	log    zerolog.Logger
}

// NewBatchHandler creates a BatchHandler reading batches from source.
func NewBatchHandler(runner BatchRunner, source ingest.RecordSource, log zerolog.Logger) *BatchHandler {
	return &BatchHandler{runner: runner, source: source, log: log}
}

// Handle implements JobHandler.
//
// A run whose failed items include transient failures is re-driven with
// OnlyRecordIDs narrowed to those items. Permanent item failures and
// unreadable batches are not retried.
func (h *BatchHandler) Handle(ctx context.Context, job Job) error {
	batchJob, ok := job.(*IngestBatchJob)
	if !ok {
		return NonRetryable(fmt.Errorf("unexpected job type: %T", job))
	}

	loc := batchJob.Location()
	log := h.log.With().
		Str("job_id", batchJob.JobID).
		Str("batch", loc.String()).
		Int("attempt", batchJob.RetryCount+1).
		Logger()

	log.Info().Strs("only_record_ids", batchJob.OnlyRecordIDs).Msg("Processing ingest job")

	result, err := h.runner.Ingest(ctx, h.source, loc, batchJob.OnlyRecordIDs...)
	if err != nil {
		if sourceRetryable(err) {
			log.Warn().Err(err).Msg("Batch read failed, will retry")
			return err
		}
		log.Error().Err(err).Msg("Batch read failed permanently")
		return NonRetryable(err)
	}

	batchJob.Report = ingest.Merge(batchJob.Report, result.Report())

	if batchJob.Report.Status == ingest.StateSucceeded {
		log.Info().Int("records", batchJob.Report.Total).Msg("Batch ingested")
		return nil
	}

	retryable := result.RetryableIDs()
	if len(retryable) > 0 {
		batchJob.OnlyRecordIDs = retryable
		log.Warn().Strs("record_ids", retryable).Msg("Re-driving transiently failed records")
		return fmt.Errorf("batch %s: %d record(s) failed transiently", loc, len(retryable))
	}

	failed := batchJob.Report.Total - batchJob.Report.Succeeded
	log.Error().Int("failed", failed).Msg("Batch failed permanently")
	return NonRetryable(fmt.Errorf("batch %s: %d of %d record(s) failed", loc, failed, batchJob.Report.Total))
}

// sourceRetryable reports whether a batch read failure may clear up on its own.
func sourceRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}
