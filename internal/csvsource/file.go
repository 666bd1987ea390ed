package csvsource

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

// LocalBucket is the bucket name used for batches read from local disk.
const LocalBucket = "local"

// FileSource reads batch files from the local filesystem. The location
// key is the file path; the bucket is ignored.
type FileSource struct{}

// Records decodes the file named by loc.Key.
func (FileSource) Records(ctx context.Context, loc domain.BatchLocation) ([]domain.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(loc.Key)
	if err != nil {
		return nil, fmt.Errorf("csvsource: open %s: %w", loc.Key, err)
	}
	defer f.Close()

	return Decode(f)
}
