package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/transaction-processor/internal/api"
	"github.com/dvloznov/transaction-processor/internal/config"
	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/gcs"
	"github.com/dvloznov/transaction-processor/internal/infra"
	"github.com/dvloznov/transaction-processor/internal/ingest"
	"github.com/dvloznov/transaction-processor/internal/jobs"
	"github.com/dvloznov/transaction-processor/internal/jobs/inmemory"
	"github.com/dvloznov/transaction-processor/internal/logger"
	"github.com/dvloznov/transaction-processor/internal/provision"
	"github.com/dvloznov/transaction-processor/internal/trigger"
)

func main() {
	envFile := flag.String("env", "", "Path to a .env file (defaults to ./.env when present)")
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	leveled, err := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log = leveled

	ctx := context.Background()

	persister, err := infra.Open(ctx, cfg.Persist, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open persistence backend")
	}
	defer persister.Close()

	objectStore, err := gcs.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer objectStore.Close()

	orchestrator := ingest.NewOrchestrator(persister, ingest.Config{
		Ratio:       provision.NewRatio(cfg.ProvisionRatio),
		WorkerLimit: cfg.Workers.ItemLimit,
		OnState: func(loc domain.BatchLocation, state ingest.BatchState) {
			log.Debug().Str("batch", loc.String()).Str("state", string(state)).Msg("Batch state")
		},
	}, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore(inmemory.WithRetention(cfg.Workers.JobRetention))
	jobQueue := inmemory.NewQueue(inmemory.Config{
		BufferSize:     cfg.Workers.QueueSize,
		Workers:        cfg.Workers.JobWorkers,
		MaxRetries:     cfg.Workers.MaxRetries,
		RetryBaseDelay: cfg.Workers.RetryBaseDelay,
		RetryMaxDelay:  cfg.Workers.RetryMaxDelay,
	}, jobStore, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	batchHandler := jobs.NewBatchHandler(orchestrator, gcs.NewSource(objectStore, log), log)
	if err := jobQueue.Start(workerCtx, batchHandler.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	tr := trigger.New(trigger.Filter{
		Bucket: cfg.Storage.Bucket,
		Suffix: cfg.Storage.FileSuffix,
	}, jobQueue, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(tr, jobStore, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("ratio", cfg.ProvisionRatio.String()).
			Str("backend", cfg.Persist.Backend).
			Msg("Starting ingestion service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop intake first so no new jobs arrive while workers drain
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
