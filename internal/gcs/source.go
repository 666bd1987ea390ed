// Package gcs reads and writes batch files in Cloud Storage and exposes
// landed objects as record sources.
package gcs

import (
	"bytes"
	"context"
	"errors"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-processor/internal/csvsource"
	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/ingest"
)

// Source reads batch files from an ObjectStore and decodes them as CSV.
type Source struct {
	store ObjectStore
	log   zerolog.Logger
}

// NewSource creates a Source backed by store.
func NewSource(store ObjectStore, log zerolog.Logger) *Source {
	return &Source{store: store, log: log}
}

// Records implements ingest.RecordSource. Every failure, including a
// malformed file, is reported as *ingest.SourceReadError.
func (s *Source) Records(ctx context.Context, loc domain.BatchLocation) ([]domain.TransactionRecord, error) {
	data, err := s.store.Download(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, ingest.NewSourceReadError(loc, err)
	}

	records, err := csvsource.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ingest.NewSourceReadError(loc, err)
	}

	s.log.Info().
		Int("records", len(records)).
		Str("bucket", loc.Bucket).
		Str("key", loc.Key).
		Msg("Read batch file")

	return records, nil
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist)
}

var _ ingest.RecordSource = (*Source)(nil)
