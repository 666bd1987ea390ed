package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchLocation(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    BatchLocation
		wantErr bool
	}{
		{
			name: "bucket and nested key",
			uri:  "gs://tx-bucket/2024/01/batch.csv",
			want: BatchLocation{Bucket: "tx-bucket", Key: "2024/01/batch.csv"},
		},
		{name: "missing scheme", uri: "tx-bucket/batch.csv", wantErr: true},
		{name: "missing key", uri: "gs://tx-bucket", wantErr: true},
		{name: "empty key", uri: "gs://tx-bucket/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBatchLocation(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.uri, got.String())
		})
	}
}

func TestBatchFilter(t *testing.T) {
	b := Batch{
		Location: BatchLocation{Bucket: "b", Key: "k.csv"},
		Records: []TransactionRecord{
			{ID: "t1", Amount: decimal.RequireFromString("1")},
			{ID: "t2", Amount: decimal.RequireFromString("2")},
			{ID: "t3", Amount: decimal.RequireFromString("3")},
		},
	}

	t.Run("no ids keeps everything", func(t *testing.T) {
		assert.Len(t, b.Filter(nil).Records, 3)
	})

	t.Run("subset keeps order", func(t *testing.T) {
		got := b.Filter([]string{"t3", "t1"})
		require.Len(t, got.Records, 2)
		assert.Equal(t, "t1", got.Records[0].ID)
		assert.Equal(t, "t3", got.Records[1].ID)
		assert.Equal(t, b.Location, got.Location)
	})

	t.Run("unknown ids yield empty batch", func(t *testing.T) {
		assert.Empty(t, b.Filter([]string{"nope"}).Records)
	})
}
