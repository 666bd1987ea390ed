package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/transaction-processor/internal/jobs"
)

func TestStore_SaveAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	job := &jobs.IngestBatchJob{JobID: "j1", Bucket: "b", Object: "k", OnlyRecordIDs: []string{"t1"}}
	require.NoError(t, s.SaveJob(ctx, job))

	job.OnlyRecordIDs[0] = "mutated"

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, got.OnlyRecordIDs)

	_, err = s.GetJob(ctx, "missing")
	assert.True(t, errors.Is(err, jobs.ErrJobNotFound))

	assert.Error(t, s.SaveJob(ctx, &jobs.IngestBatchJob{}))
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []*jobs.IngestBatchJob{
		{JobID: "a", Bucket: "b1", Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "b", Bucket: "b1", Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Minute)},
		{JobID: "c", Bucket: "b2", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(2 * time.Minute)},
	} {
		require.NoError(t, s.SaveJob(ctx, j), "job %d", i)
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", filter: jobs.JobFilter{}, want: []string{"c", "b", "a"}},
		{name: "by bucket", filter: jobs.JobFilter{Bucket: "b1"}, want: []string{"b", "a"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusCompleted}, want: []string{"c", "a"}},
		{name: "limit", filter: jobs.JobFilter{Limit: 1}, want: []string{"c"}},
		{name: "offset", filter: jobs.JobFilter{Offset: 2}, want: []string{"a"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 5}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)

			ids := []string{}
			for _, j := range list {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.SaveJob(ctx, &jobs.IngestBatchJob{JobID: "j1"}))

	require.NoError(t, s.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "boom"))
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	assert.True(t, errors.Is(s.UpdateJobStatus(ctx, "nope", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound))
}

func TestStore_RetentionEvictsOldestFinished(t *testing.T) {
	s := NewStore(WithRetention(2))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveJob(ctx, &jobs.IngestBatchJob{JobID: "running", Status: jobs.JobStatusRunning, CreatedAt: base}))
	for i, id := range []string{"old", "mid", "new"} {
		job := &jobs.IngestBatchJob{JobID: id, Status: jobs.JobStatusCompleted, CreatedAt: base.Add(time.Duration(i+1) * time.Minute)}
		require.NoError(t, s.SaveJob(ctx, job))
	}

	_, err := s.GetJob(ctx, "old")
	assert.True(t, errors.Is(err, jobs.ErrJobNotFound))

	for _, id := range []string{"running", "mid", "new"} {
		_, err := s.GetJob(ctx, id)
		assert.NoError(t, err, id)
	}
}
