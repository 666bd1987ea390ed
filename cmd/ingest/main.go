package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/transaction-processor/internal/config"
	"github.com/dvloznov/transaction-processor/internal/csvsource"
	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/gcs"
	"github.com/dvloznov/transaction-processor/internal/infra"
	"github.com/dvloznov/transaction-processor/internal/ingest"
	"github.com/dvloznov/transaction-processor/internal/logger"
	"github.com/dvloznov/transaction-processor/internal/provision"
)

func main() {
	// Initialize structured logger
	log := logger.NewWithWriter(os.Stderr)

	var (
		envFile = flag.String("env", "", "Path to a .env file (defaults to ./.env when present)")
		uri     = flag.String("gcs-uri", "", "Batch file URI (e.g. gs://bucket/batch.csv)")
		bucket  = flag.String("bucket", "", "GCS bucket of the batch file")
		key     = flag.String("key", "", "Object key of the batch file")
		file    = flag.String("file", "", "Local batch file (offline run)")
		only    = flag.String("only", "", "Comma-separated record ids to re-drive")
		timeout = flag.Duration("timeout", 10*time.Minute, "Overall time limit")
	)
	flag.Parse()

	loc, err := resolveLocation(*uri, *bucket, *key, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("Usage: ingest (-gcs-uri gs://B/K | -bucket B -key K | -file PATH) [-only id,id]")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	persister, err := infra.Open(ctx, cfg.Persist, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open persistence backend")
	}
	defer persister.Close()

	var source ingest.RecordSource = csvsource.FileSource{}
	if *file == "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer client.Close()
		source = gcs.NewSource(client, log)
	}

	orchestrator := ingest.NewOrchestrator(persister, ingest.Config{
		Ratio:       provision.NewRatio(cfg.ProvisionRatio),
		WorkerLimit: cfg.Workers.ItemLimit,
	}, log)

	log.Info().Str("batch", loc.String()).Msg("Starting ingestion")

	result, err := orchestrator.Ingest(ctx, source, loc, splitIDs(*only)...)
	if err != nil {
		log.Error().Err(err).Msg("Ingestion failed")
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Report()); err != nil {
		log.Error().Err(err).Msg("Failed to write report")
		os.Exit(1)
	}

	if !result.Succeeded() {
		if ids := result.RetryableIDs(); len(ids) > 0 {
			log.Warn().Msgf("Re-drive with: -only %s", strings.Join(ids, ","))
		}
		os.Exit(1)
	}
}

func resolveLocation(uri, bucket, key, file string) (domain.BatchLocation, error) {
	switch {
	case file != "":
		return domain.BatchLocation{Bucket: csvsource.LocalBucket, Key: file}, nil
	case uri != "":
		return domain.ParseBatchLocation(uri)
	case bucket != "" && key != "":
		return domain.BatchLocation{Bucket: bucket, Key: key}, nil
	}
	return domain.BatchLocation{}, fmt.Errorf("no batch location given")
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
