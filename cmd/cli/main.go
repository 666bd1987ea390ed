package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-processor/internal/config"
	"github.com/dvloznov/transaction-processor/internal/domain"
	infraBQ "github.com/dvloznov/transaction-processor/internal/infra/bigquery"
	"github.com/dvloznov/transaction-processor/internal/infra/bolt"
	"github.com/dvloznov/transaction-processor/internal/jobs"
	"github.com/dvloznov/transaction-processor/internal/logger"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "submit":
		runSubmit(log)
	case "status":
		runStatus(log)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Transaction Processor CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  submit    Submit a batch file to the ingestion service")
	fmt.Println("  status    Show an ingestion job and its report")
	fmt.Println("  inspect   Look up a persisted transaction by id")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func runSubmit(log zerolog.Logger) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Ingestion service address")
	gcsURI := fs.String("gcs-uri", "", "Batch file URI (gs://bucket/key)")
	only := fs.String("only", "", "Comma-separated record ids to re-drive")
	fs.Parse(os.Args[2:])

	loc, err := domain.ParseBatchLocation(*gcsURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: --gcs-uri is required")
	}

	body, _ := json.Marshal(map[string]interface{}{
		"bucket":          loc.Bucket,
		"key":             loc.Key,
		"only_record_ids": splitIDs(*only),
	})

	resp, err := httpClient.Post(strings.TrimRight(*addr, "/")+"/api/batches", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal().Err(err).Msg("Submit failed")
	}
	defer resp.Body.Close()

	var accepted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := decodeResponse(resp, http.StatusAccepted, &accepted); err != nil {
		log.Fatal().Err(err).Msg("Submit failed")
	}

	fmt.Printf("Submitted %s as job %s (%s)\n", loc, accepted.JobID, accepted.Status)
}

func runStatus(log zerolog.Logger) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Ingestion service address")
	jobID := fs.String("job-id", "", "Job ID to show")
	fs.Parse(os.Args[2:])

	if *jobID == "" {
		log.Fatal().Msg("Error: --job-id is required")
	}

	resp, err := httpClient.Get(strings.TrimRight(*addr, "/") + "/api/jobs/" + url.PathEscape(*jobID))
	if err != nil {
		log.Fatal().Err(err).Msg("Status request failed")
	}
	defer resp.Body.Close()

	var job jobs.IngestBatchJob
	if err := decodeResponse(resp, http.StatusOK, &job); err != nil {
		log.Fatal().Err(err).Msg("Status request failed")
	}

	fmt.Println("\n=== Job ===")
	fmt.Printf("ID:       %s\n", job.JobID)
	fmt.Printf("Batch:    %s\n", job.Location())
	fmt.Printf("Status:   %s\n", job.Status)
	fmt.Printf("Retries:  %d/%d\n", job.RetryCount, job.MaxRetries)
	if job.Error != "" {
		fmt.Printf("Error:    %s\n", job.Error)
	}

	if r := job.Report; r != nil {
		fmt.Printf("\n=== Report (%s) ===\n", r.Status)
		fmt.Printf("Total: %d  Succeeded: %d  Partially failed: %d  Failed: %d\n",
			r.Total, r.Succeeded, r.PartiallyFailed, r.Failed)
		for _, item := range r.Items {
			line := fmt.Sprintf("  %-24s %s", item.RecordID, item.Outcome)
			if item.Error != "" {
				line += fmt.Sprintf(" [%s] %s", item.ErrorKind, item.Error)
			}
			fmt.Println(line)
		}
	}
	fmt.Println()
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	envFile := fs.String("env", "", "Path to a .env file")
	id := fs.String("id", "", "Transaction ID to inspect")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Error: --id is required")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	rec, err := lookup(ctx, cfg.Persist, *id)
	if errors.Is(err, infraBQ.ErrNotFound) || errors.Is(err, bolt.ErrNotFound) {
		log.Fatal().Str("id", *id).Msg("Transaction not found")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Lookup failed")
	}

	fmt.Println("\n=== Transaction ===")
	fmt.Printf("ID:         %s\n", rec.ID)
	fmt.Printf("Date:       %s\n", rec.Date)
	fmt.Printf("Account ID: %s\n", rec.AccountID)
	fmt.Printf("Amount:     %s\n", rec.AmountString())
	fmt.Println()
}

func lookup(ctx context.Context, cfg config.PersistConfig, id string) (domain.TransactionRecord, error) {
	switch cfg.Backend {
	case config.BackendBigQuery:
		repo, err := infraBQ.NewRepository(ctx, cfg.ProjectID, cfg.DatasetID, cfg.TableID)
		if err != nil {
			return domain.TransactionRecord{}, err
		}
		defer repo.Close()

		row, err := repo.Get(ctx, id)
		if err != nil {
			return domain.TransactionRecord{}, err
		}
		return row.Record()

	case config.BackendBolt:
		store, err := bolt.New(cfg.BoltPath)
		if err != nil {
			return domain.TransactionRecord{}, err
		}
		defer store.Close()
		return store.Get(id)
	}

	return domain.TransactionRecord{}, fmt.Errorf("backend %q cannot be inspected from the CLI", cfg.Backend)
}

func decodeResponse(resp *http.Response, want int, v interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, v)
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
