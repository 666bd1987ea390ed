package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/ingest"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeIngestBatch represents a batch ingestion job.
	JobTypeIngestBatch JobType = "ingest_batch"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Done reports whether no further processing will happen for the job.
func (s JobStatus) Done() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// DefaultMaxRetries is used when a published job carries no retry budget.
const DefaultMaxRetries = 3

// ErrNonRetryable marks handler errors that must not be retried.
var ErrNonRetryable = errors.New("non-retryable")

// NonRetryable wraps err so the queue gives up on the job immediately.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNonRetryable, err)
}

// IsRetryable reports whether a handler error may be retried.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrNonRetryable)
}

// IngestBatchJob represents a job to ingest one batch file from GCS.
type IngestBatchJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Bucket and Object locate the batch file.
	Bucket string `json:"bucket"`
	Object string `json:"object"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// OnlyRecordIDs restricts a re-drive to these records. Empty means all.
	OnlyRecordIDs []string `json:"only_record_ids,omitempty"`

	// Report is the cumulative batch report across attempts.
	Report *ingest.Report `json:"report,omitempty"`
}

// Location returns the batch location of the job.
func (j *IngestBatchJob) Location() domain.BatchLocation {
	return domain.BatchLocation{Bucket: j.Bucket, Key: j.Object}
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *IngestBatchJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *IngestBatchJob) GetType() JobType {
	return JobTypeIngestBatch
}

// GetStatus implements the Job interface.
func (j *IngestBatchJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishIngestBatch publishes a batch ingestion job.
	PublishIngestBatch(ctx context.Context, job *IngestBatchJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// Errors wrapped with NonRetryable fail the job immediately; any other
// error is retried until the job's retry budget is spent.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *IngestBatchJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*IngestBatchJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestBatchJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Bucket filters jobs by source bucket.
	Bucket string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Match reports whether job passes the bucket and status filters.
func (f JobFilter) Match(job *IngestBatchJob) bool {
	if f.Bucket != "" && job.Bucket != f.Bucket {
		return false
	}
	return f.Status == "" || job.Status == f.Status
}

// ErrJobNotFound is returned by JobStore lookups for unknown ids.
var ErrJobNotFound = errors.New("job not found")
