package inmemory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dvloznov/transaction-processor/internal/jobs"
)

// DefaultRetention is the number of finished jobs a Store keeps.
const DefaultRetention = 1000

// Store is the process-local JobStore backing the job API. Finished jobs
// beyond the retention limit are evicted oldest first; pending, running and
// retrying jobs are never evicted. Data is lost on restart.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*jobs.IngestBatchJob
	retention int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRetention caps the number of finished jobs kept. Values below one are
// ignored.
func WithRetention(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		jobs:      make(map[string]*jobs.IngestBatchJob),
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SaveJob(ctx context.Context, job *jobs.IngestBatchJob) error {
	if job.JobID == "" {
		return errors.New("SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.JobID] = clone(job)
	if job.Status.Done() {
		s.evictLocked()
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.IngestBatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	return clone(job), nil
}

// ListJobs returns matching jobs newest first, ties broken by job id.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.IngestBatchJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.IngestBatchJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Match(job) {
			matched = append(matched, clone(job))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *jobs.IngestBatchJob) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.JobID, b.JobID)
	})

	if filter.Offset >= len(matched) {
		return []*jobs.IngestBatchJob{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("UpdateJobStatus: %w: %s", jobs.ErrJobNotFound, jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	if status.Done() {
		s.evictLocked()
	}
	return nil
}

// evictLocked drops the oldest finished jobs until at most retention remain.
func (s *Store) evictLocked() {
	var done []*jobs.IngestBatchJob
	for _, job := range s.jobs {
		if job.Status.Done() {
			done = append(done, job)
		}
	}
	if len(done) <= s.retention {
		return
	}

	slices.SortFunc(done, func(a, b *jobs.IngestBatchJob) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.JobID, b.JobID)
	})
	for _, job := range done[:len(done)-s.retention] {
		delete(s.jobs, job.JobID)
	}
}

// clone copies a job so callers never share mutable state with the store.
// Reports are replaced, never mutated, so they are shared.
func clone(job *jobs.IngestBatchJob) *jobs.IngestBatchJob {
	c := *job
	c.OnlyRecordIDs = slices.Clone(job.OnlyRecordIDs)
	return &c
}

var _ jobs.JobStore = (*Store)(nil)
