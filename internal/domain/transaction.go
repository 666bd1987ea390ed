package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TransactionRecord is one financial transaction as it flows through ingestion.
// Originals come from the batch file; provision records are derived from them.
// Date and AccountID are opaque and never validated here.
type TransactionRecord struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
}

// AmountString returns the canonical decimal representation of the amount.
// The scale carried by the value is kept, so "100.00" stays "100.00".
func (r TransactionRecord) AmountString() string {
	return FormatAmount(r.Amount)
}

// FormatAmount renders d with exactly as many fractional digits as its scale.
func FormatAmount(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.StringFixed(0)
}

// ParseAmount parses an exact decimal amount, keeping the input scale.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}

// BatchLocation identifies the object a batch was read from.
type BatchLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String renders the location as a storage URI, e.g. "gs://bucket/path/file.csv".
func (l BatchLocation) String() string {
	return fmt.Sprintf("gs://%s/%s", l.Bucket, l.Key)
}

// ParseBatchLocation parses a "gs://bucket/key" URI.
func ParseBatchLocation(uri string) (BatchLocation, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return BatchLocation{}, fmt.Errorf("invalid storage URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return BatchLocation{}, fmt.Errorf("invalid storage URI (no object path): %s", uri)
	}

	return BatchLocation{Bucket: parts[0], Key: parts[1]}, nil
}

// Batch is the transient unit of work for one landed file.
// It has no persisted identity of its own.
type Batch struct {
	Location BatchLocation
	Records  []TransactionRecord
}

// Filter returns a copy of the batch restricted to the given record ids,
// preserving the original order. An empty id list returns the batch unchanged.
func (b Batch) Filter(ids []string) Batch {
	if len(ids) == 0 {
		return b
	}

	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	out := Batch{Location: b.Location, Records: make([]TransactionRecord, 0, len(ids))}
	for _, rec := range b.Records {
		if _, ok := keep[rec.ID]; ok {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}
