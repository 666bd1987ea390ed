package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/ingest"
)

func TestStore_Upsert(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := domain.TransactionRecord{ID: "t1", Amount: decimal.RequireFromString("100.00")}

	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.Put(ctx, rec))
	assert.Equal(t, 1, s.Len())

	got, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "100.00", got.AmountString())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_FailFunc(t *testing.T) {
	s := NewStore()
	s.FailFunc = func(rec domain.TransactionRecord) error {
		if rec.ID == "bad" {
			return ingest.Permanent(rec.ID, errors.New("rejected"))
		}
		return nil
	}

	err := s.Put(context.Background(), domain.TransactionRecord{ID: "bad"})
	assert.Equal(t, ingest.KindPermanent, ingest.KindOf(err))
	assert.NoError(t, s.Put(context.Background(), domain.TransactionRecord{ID: "good"}))
	assert.Equal(t, 1, s.Len())
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Put(ctx, domain.TransactionRecord{ID: fmt.Sprintf("t%d", i%10)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Put(ctx, domain.TransactionRecord{ID: "t1"})
	assert.Equal(t, ingest.KindTransient, ingest.KindOf(err))
	assert.Equal(t, 0, s.Len())
}
