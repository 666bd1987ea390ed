package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-processor/internal/jobs"
)

// Config sizes a Queue. Zero sizes and delays fall back to the defaults
// below. MaxRetries is taken as given, so 0 disables retries; only a
// negative value selects jobs.DefaultMaxRetries.
type Config struct {
	BufferSize     int
	Workers        int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

const (
	defaultBufferSize     = 100
	defaultWorkers        = 5
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 5 * time.Minute

	// maxShift keeps 1<<attempt inside int64.
	maxShift = 62
)

// ErrQueueClosed is returned by PublishIngestBatch and Start after Stop.
var ErrQueueClosed = errors.New("queue is closed")

// Queue is a channel-backed Publisher and Consumer for a single process.
// Retries wait on timers; Stop cancels timers that have not fired and marks
// their jobs failed.
type Queue struct {
	jobChan   chan *jobs.IngestBatchJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	cfg       Config
	log       zerolog.Logger
	closed    bool

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewQueue creates a new in-memory job queue.
// cfg.BufferSize determines how many jobs can be queued before
// PublishIngestBatch blocks.
func NewQueue(cfg Config, store jobs.JobStore, log zerolog.Logger) *Queue {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = jobs.DefaultMaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxDelay
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}

	return &Queue{
		jobChan:   make(chan *jobs.IngestBatchJob, cfg.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		cfg:       cfg,
		log:       log,
		timers:    make(map[string]*time.Timer),
	}
}

// PublishIngestBatch fills in id, status, timestamps and retry budget, saves
// the job and enqueues it. It blocks while the buffer is full. A new job
// takes the queue's retry budget unless it carries a positive one. A job
// that cannot be enqueued is saved as failed.
func (q *Queue) PublishIngestBatch(ctx context.Context, job *jobs.IngestBatchJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
		if job.MaxRetries <= 0 {
			job.MaxRetries = q.cfg.MaxRetries
		}
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	q.save(ctx, job)

	var err error
	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-q.closeChan:
		err = ErrQueueClosed
	}

	job.Status = jobs.JobStatusFailed
	job.Error = fmt.Sprintf("enqueue: %v", err)
	q.save(context.Background(), job)
	return err
}

func (q *Queue) save(ctx context.Context, job *jobs.IngestBatchJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job")
	}
}

// Start launches cfg.Workers goroutines that hand each job to handler.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs handler once and records the outcome. Retryable errors
// within the job's budget schedule a retry after the outcome is saved.
func (q *Queue) processJob(ctx context.Context, job *jobs.IngestBatchJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	err := safeHandle(ctx, job, handler)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	retry := false
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	case jobs.IsRetryable(err) && job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		retry = true
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		q.log.Error().Err(err).Str("job_id", job.JobID).Int("retries", job.RetryCount).Msg("Job failed")
	}

	if retry {
		q.scheduleRetry(ctx, job, err)
		return
	}
	q.save(ctx, job)
}

// safeHandle converts a handler panic into a non-retryable error.
func safeHandle(ctx context.Context, job *jobs.IngestBatchJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jobs.NonRetryable(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, job)
}

// scheduleRetry saves job and re-enqueues it after an exponential backoff.
// The save and the timer registration happen under timersMu, so neither the
// timer callback nor cancelRetries can observe one without the other.
func (q *Queue) scheduleRetry(ctx context.Context, job *jobs.IngestBatchJob, cause error) {
	backoff := q.backoff(job.RetryCount)
	q.log.Warn().
		Err(cause).
		Str("job_id", job.JobID).
		Int("retry", job.RetryCount).
		Dur("backoff", backoff).
		Msg("Job failed, scheduling retry")

	q.timersMu.Lock()
	defer q.timersMu.Unlock()
	q.save(ctx, job)
	q.timers[job.JobID] = time.AfterFunc(backoff, func() {
		q.timersMu.Lock()
		delete(q.timers, job.JobID)
		q.timersMu.Unlock()

		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := q.PublishIngestBatch(ctx, job); err != nil {
			q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to re-enqueue job")
			if job.Status != jobs.JobStatusFailed {
				job.Status = jobs.JobStatusFailed
				job.Error = err.Error()
				q.save(context.Background(), job)
			}
		}
	})
}

// cancelRetries stops timers that have not fired yet and fails their jobs.
func (q *Queue) cancelRetries() {
	q.timersMu.Lock()
	defer q.timersMu.Unlock()

	for id, timer := range q.timers {
		if !timer.Stop() {
			continue
		}
		delete(q.timers, id)
		if q.store == nil {
			continue
		}
		job, err := q.store.GetJob(context.Background(), id)
		if err != nil {
			continue
		}
		job.Status = jobs.JobStatusFailed
		job.Error = fmt.Sprintf("%s (retry cancelled: %s)", job.Error, ErrQueueClosed)
		q.save(context.Background(), job)
	}
}

// backoff doubles the base delay for every retry already spent, capped at
// RetryMaxDelay. The shift is clamped and the cap is checked before
// shifting, so large retry counts never overflow.
func (q *Queue) backoff(retry int) time.Duration {
	attempt := retry - 1
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	base, limit := q.cfg.RetryBaseDelay, q.cfg.RetryMaxDelay
	if base > limit>>attempt {
		return limit
	}
	return base << attempt
}

// Stop refuses new jobs, cancels pending retries and waits for in-flight
// jobs until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	q.cancelRetries()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
