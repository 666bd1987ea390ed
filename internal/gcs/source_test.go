package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/ingest"
)

// MockObjectStore is a mock implementation of ObjectStore for testing.
type MockObjectStore struct {
	DownloadFunc   func(ctx context.Context, bucket, object string) ([]byte, error)
	UploadFileFunc func(ctx context.Context, bucket, object, filePath string) error
}

func (m *MockObjectStore) Download(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, bucket, object)
	}
	return nil, nil
}

func (m *MockObjectStore) UploadFile(ctx context.Context, bucket, object, filePath string) error {
	if m.UploadFileFunc != nil {
		return m.UploadFileFunc(ctx, bucket, object, filePath)
	}
	return nil
}

var loc = domain.BatchLocation{Bucket: "tx-bucket", Key: "in/batch.csv"}

func TestSource_Records(t *testing.T) {
	store := &MockObjectStore{
		DownloadFunc: func(ctx context.Context, bucket, object string) ([]byte, error) {
			assert.Equal(t, "tx-bucket", bucket)
			assert.Equal(t, "in/batch.csv", object)
			return []byte("ID,Date,AccountID,Amount\nt1,2024-01-01,a1,100.00\n"), nil
		},
	}

	records, err := NewSource(store, zerolog.New(io.Discard)).Records(context.Background(), loc)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0].ID)
	assert.Equal(t, "100.00", records[0].AmountString())
}

func TestSource_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		err      error
		notFound bool
	}{
		{name: "missing object", err: fmt.Errorf("Download: %w", storage.ErrObjectNotExist), notFound: true},
		{name: "malformed file", data: []byte("ID,Date,AccountID,Amount\nt1,d,a,abc\n")},
		{name: "empty file", data: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockObjectStore{
				DownloadFunc: func(ctx context.Context, bucket, object string) ([]byte, error) {
					return tt.data, tt.err
				},
			}

			_, err := NewSource(store, zerolog.New(io.Discard)).Records(context.Background(), loc)
			require.Error(t, err)

			var sre *ingest.SourceReadError
			require.True(t, errors.As(err, &sre))
			assert.Equal(t, loc, sre.Location)
			assert.Equal(t, tt.notFound, IsNotFound(err))
		})
	}
}

func TestExtractFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gs://bucket/folder/file.csv", "file.csv"},
		{"gs://bucket/file.csv", "file.csv"},
		{"gs://bucket", "bucket"},
		{"folder/sub/file.csv", "file.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFilename(tt.in))
		})
	}
}
