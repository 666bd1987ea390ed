// Package infra selects the persistence backend named by configuration.
package infra

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-processor/internal/config"
	"github.com/dvloznov/transaction-processor/internal/infra/bigquery"
	"github.com/dvloznov/transaction-processor/internal/infra/bolt"
	"github.com/dvloznov/transaction-processor/internal/infra/memory"
	"github.com/dvloznov/transaction-processor/internal/ingest"
)

// Backend is a Persister that owns resources.
type Backend interface {
	ingest.Persister
	Close() error
}

type memoryBackend struct {
	*memory.Store
}

func (memoryBackend) Close() error { return nil }

// Open builds the backend selected by cfg.Backend. The BigQuery backend
// creates its table when missing.
func Open(ctx context.Context, cfg config.PersistConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendBigQuery:
		repo, err := bigquery.NewRepository(ctx, cfg.ProjectID, cfg.DatasetID, cfg.TableID)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureTable(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		log.Info().
			Str("project", cfg.ProjectID).
			Str("dataset", cfg.DatasetID).
			Str("table", cfg.TableID).
			Msg("Using BigQuery persistence")
		return repo, nil

	case config.BackendBolt:
		store, err := bolt.New(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.BoltPath).Msg("Using bbolt persistence")
		return store, nil

	case config.BackendMemory:
		log.Warn().Msg("Using in-memory persistence; records are lost on exit")
		return memoryBackend{memory.NewStore()}, nil
	}

	return nil, &config.ConfigurationError{Key: "PERSIST_BACKEND", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
}
