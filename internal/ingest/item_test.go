package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/ingest"
	"github.com/dvloznov/transaction-processor/internal/provision"
)

func TestSelectItemProcessor(t *testing.T) {
	p := NewMockPersister()

	_, isPersistOnly := ingest.SelectItemProcessor(p, provision.Deriver{Ratio: ratio("0")}).(ingest.PersistOnly)
	assert.True(t, isPersistOnly)

	_, isDerive := ingest.SelectItemProcessor(p, provision.Deriver{Ratio: ratio("0.2")}).(ingest.DeriveAndPersist)
	assert.True(t, isDerive)
}

func TestPersistOnly_Process(t *testing.T) {
	tests := []struct {
		name    string
		putErr  error
		want    ingest.ItemOutcome
		wantErr bool
	}{
		{name: "stored", want: ingest.OutcomeSucceeded},
		{name: "rejected", putErr: ingest.Permanent("t1", errors.New("bad")), want: ingest.OutcomeFailed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMockPersister()
			p.PutFunc = func(ctx context.Context, r domain.TransactionRecord) error { return tt.putErr }

			got := ingest.PersistOnly{Persister: p}.Process(context.Background(), rec("t1", "100.00"))

			assert.Equal(t, tt.want, got.Outcome)
			assert.Equal(t, "t1", got.RecordID)
			assert.Equal(t, tt.wantErr, got.Err != nil)
			assert.Len(t, p.Calls(), 1)
		})
	}
}

func TestDeriveAndPersist_Process(t *testing.T) {
	deriver := provision.Deriver{Ratio: ratio("0.2"), NewID: func() string { return "p1" }}

	tests := []struct {
		name      string
		failID    string
		failKind  ingest.ErrorKind
		want      ingest.ItemOutcome
		wantCalls int
		wantKind  ingest.ErrorKind
	}{
		{name: "both stored", want: ingest.OutcomeSucceeded, wantCalls: 2},
		{name: "original fails", failID: "t1", failKind: ingest.KindPermanent, want: ingest.OutcomeFailed, wantCalls: 1, wantKind: ingest.KindPermanent},
		{name: "original throttled", failID: "t1", failKind: ingest.KindTransient, want: ingest.OutcomeFailed, wantCalls: 1, wantKind: ingest.KindTransient},
		{name: "provision fails", failID: "p1", failKind: ingest.KindTransient, want: ingest.OutcomePartiallyFailed, wantCalls: 2, wantKind: ingest.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMockPersister()
			p.PutFunc = func(ctx context.Context, r domain.TransactionRecord) error {
				if r.ID == tt.failID {
					return &ingest.PersistError{Kind: tt.failKind, RecordID: r.ID, Err: fmt.Errorf("write %s", r.ID)}
				}
				return nil
			}

			got := ingest.DeriveAndPersist{Persister: p, Deriver: deriver}.Process(context.Background(), rec("t1", "100.00"))

			assert.Equal(t, tt.want, got.Outcome)
			assert.Len(t, p.Calls(), tt.wantCalls)
			assert.Equal(t, tt.wantKind, got.Kind())
			if tt.wantCalls == 2 {
				calls := p.Calls()
				assert.Equal(t, "t1", calls[0].ID)
				assert.Equal(t, "p1", calls[1].ID)
				assert.Equal(t, "20.00", calls[1].AmountString())
				assert.Equal(t, "p1", got.ProvisionID)
			}
		})
	}
}

func TestPersistIdempotence(t *testing.T) {
	p := NewMockPersister()
	r := rec("t1", "100.00")

	require.NoError(t, p.Put(context.Background(), r))
	first, _ := p.Stored("t1")
	require.NoError(t, p.Put(context.Background(), r))
	second, _ := p.Stored("t1")

	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.StoredCount())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ingest.ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "transient", err: ingest.Transient("x", errors.New("429")), want: ingest.KindTransient},
		{name: "wrapped permanent", err: fmt.Errorf("put: %w", ingest.Permanent("x", errors.New("400"))), want: ingest.KindPermanent},
		{name: "deadline", err: fmt.Errorf("put: %w", context.DeadlineExceeded), want: ingest.KindTransient},
		{name: "untyped", err: errors.New("weird"), want: ingest.KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ingest.KindOf(tt.err))
		})
	}
}

func TestNewSourceReadError(t *testing.T) {
	loc := domain.BatchLocation{Bucket: "b", Key: "k.csv"}
	cause := errors.New("denied")

	err := ingest.NewSourceReadError(loc, cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "gs://b/k.csv")

	// Already-wrapped errors are passed through untouched.
	assert.Same(t, err, ingest.NewSourceReadError(domain.BatchLocation{Bucket: "other"}, err))
}
