package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

// TransactionRow mirrors one row of the transactions table.
// Amount is read back as a decimal string so no precision is lost.
type TransactionRow struct {
	ID        string                 `bigquery:"id"`         // REQUIRED
	Date      bigquery.NullString    `bigquery:"date"`       // NULLABLE
	AccountID bigquery.NullString    `bigquery:"account_id"` // NULLABLE
	Amount    string                 `bigquery:"amount"`     // REQUIRED BIGNUMERIC, selected as STRING
	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

// Record converts the row back into a domain record.
func (r *TransactionRow) Record() (domain.TransactionRecord, error) {
	amount, err := domain.ParseAmount(r.Amount)
	if err != nil {
		return domain.TransactionRecord{}, err
	}
	return domain.TransactionRecord{
		ID:        r.ID,
		Date:      r.Date.StringVal,
		AccountID: r.AccountID.StringVal,
		Amount:    amount,
	}, nil
}

// TransactionsSchema is the schema EnsureTable creates.
var TransactionsSchema = bigquery.Schema{
	{Name: "id", Type: bigquery.StringFieldType, Required: true},
	{Name: "date", Type: bigquery.StringFieldType},
	{Name: "account_id", Type: bigquery.StringFieldType},
	{Name: "amount", Type: bigquery.BigNumericFieldType, Required: true},
	{Name: "created_ts", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "updated_ts", Type: bigquery.TimestampFieldType},
}
