// Package bigquery persists transaction records in a BigQuery table.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/ingest"
)

// ErrNotFound is returned by Get when no row has the requested id.
var ErrNotFound = errors.New("transaction not found")

// Repository is the BigQuery implementation of ingest.Persister.
// It holds a shared BigQuery client to avoid creating a new connection
// for each operation.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
}

// NewRepository creates a Repository with its own BigQuery client.
func NewRepository(ctx context.Context, projectID, datasetID, tableID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, projectID, datasetID, tableID), nil
}

// NewRepositoryWithClient creates a Repository around an existing client.
func NewRepositoryWithClient(client *bigquery.Client, projectID, datasetID, tableID string) *Repository {
	return &Repository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
	}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Put upserts rec keyed by its id. Writing the same record twice leaves
// one row with the same content.
func (r *Repository) Put(ctx context.Context, rec domain.TransactionRecord) error {
	if rec.ID == "" {
		return ingest.Permanent(rec.ID, errors.New("record id is empty"))
	}

	q := r.client.Query(mergeSQL(r.tableRef()))
	q.Parameters = mergeParams(rec)

	job, err := q.Run(ctx)
	if err != nil {
		return classify(rec.ID, fmt.Errorf("Put: running merge: %w", err))
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return classify(rec.ID, fmt.Errorf("Put: waiting for job: %w", err))
	}
	if err := status.Err(); err != nil {
		return classify(rec.ID, fmt.Errorf("Put: job error: %w", err))
	}

	return nil
}

// Get reads one record by id.
func (r *Repository) Get(ctx context.Context, id string) (*TransactionRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			id,
			date,
			account_id,
			CAST(amount AS STRING) AS amount,
			created_ts,
			updated_ts
		FROM %s
		WHERE id = @id
		LIMIT 1
	`, r.tableRef()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Get: reading query: %w", err)
	}

	var row TransactionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: iterating: %w", err)
	}

	return &row, nil
}

// EnsureTable creates the transactions table when it does not exist yet.
func (r *Repository) EnsureTable(ctx context.Context) error {
	table := r.client.DatasetInProject(r.projectID, r.datasetID).Table(r.tableID)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("EnsureTable: reading metadata: %w", err)
	}

	if err := table.Create(ctx, &bigquery.TableMetadata{Schema: TransactionsSchema}); err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("EnsureTable: creating table: %w", err)
	}

	return nil
}

func (r *Repository) tableRef() string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, r.tableID)
}

// mergeSQL builds the upsert statement. The amount travels as a decimal
// string and is cast server-side so no float is ever involved.
func mergeSQL(tableRef string) string {
	return fmt.Sprintf(`
		MERGE %s T
		USING (
			SELECT
				@id AS id,
				@date AS date,
				@account_id AS account_id,
				CAST(@amount AS BIGNUMERIC) AS amount
		) S
		ON T.id = S.id
		WHEN MATCHED THEN
			UPDATE SET
				date = S.date,
				account_id = S.account_id,
				amount = S.amount,
				updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN
			INSERT (id, date, account_id, amount, created_ts)
			VALUES (S.id, S.date, S.account_id, S.amount, CURRENT_TIMESTAMP())
	`, tableRef)
}

func mergeParams(rec domain.TransactionRecord) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "id", Value: rec.ID},
		{Name: "date", Value: rec.Date},
		{Name: "account_id", Value: rec.AccountID},
		{Name: "amount", Value: rec.AmountString()},
	}
}

// transientReasons are BigQuery job error reasons worth retrying.
var transientReasons = map[string]bool{
	"backendError":         true,
	"internalError":        true,
	"rateLimitExceeded":    true,
	"jobRateLimitExceeded": true,
}

// classify maps a BigQuery failure onto the persist error taxonomy.
func classify(recordID string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return ingest.Transient(recordID, err)
		}
		return ingest.Permanent(recordID, err)
	}

	var bqErr *bigquery.Error
	if errors.As(err, &bqErr) {
		if transientReasons[bqErr.Reason] {
			return ingest.Transient(recordID, err)
		}
		return ingest.Permanent(recordID, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ingest.Transient(recordID, err)
	}

	return ingest.Permanent(recordID, err)
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func isAlreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}

var _ ingest.Persister = (*Repository)(nil)
