package csvsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID,Date,AccountID,Amount\nt1,2024-01-01,a1,100.00\n"), 0o600))

	records, err := FileSource{}.Records(context.Background(), domain.BatchLocation{Bucket: LocalBucket, Key: path})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "100.00", records[0].AmountString())

	_, err = FileSource{}.Records(context.Background(), domain.BatchLocation{Bucket: LocalBucket, Key: filepath.Join(t.TempDir(), "missing.csv")})
	assert.Error(t, err)
}
