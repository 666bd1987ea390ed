// Package bolt persists transaction records in a local bbolt file.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"

	"github.com/dvloznov/transaction-processor/internal/domain"
	"github.com/dvloznov/transaction-processor/internal/ingest"
)

// BucketTransactions holds one JSON value per record id.
const BucketTransactions = "transactions"

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// row is the stored form. Amount is kept as its canonical string so the
// source scale survives a round trip.
type row struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	AccountID string    `json:"accountId"`
	Amount    string    `json:"amount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the bbolt implementation of ingest.Persister.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database at path and initializes the bucket.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketTransactions)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", BucketTransactions, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put overwrites the value stored under rec.ID.
func (s *Store) Put(ctx context.Context, rec domain.TransactionRecord) error {
	if err := ctx.Err(); err != nil {
		return ingest.Transient(rec.ID, err)
	}
	if rec.ID == "" {
		return ingest.Permanent(rec.ID, errors.New("record id is empty"))
	}

	data, err := json.Marshal(row{
		ID:        rec.ID,
		Date:      rec.Date,
		AccountID: rec.AccountID,
		Amount:    rec.AmountString(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return ingest.Permanent(rec.ID, fmt.Errorf("failed to marshal record: %w", err))
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketTransactions))
		if b == nil {
			return fmt.Errorf("bucket %s not found", BucketTransactions)
		}
		return b.Put([]byte(rec.ID), data)
	})
	if err != nil {
		return classify(rec.ID, err)
	}

	return nil
}

// Get retrieves a record by id.
func (s *Store) Get(id string) (domain.TransactionRecord, error) {
	var r row
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketTransactions))
		if b == nil {
			return fmt.Errorf("bucket %s not found", BucketTransactions)
		}

		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return domain.TransactionRecord{}, err
	}

	amount, err := domain.ParseAmount(r.Amount)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("stored record %s: %w", id, err)
	}

	return domain.TransactionRecord{ID: r.ID, Date: r.Date, AccountID: r.AccountID, Amount: amount}, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketTransactions))
		if b == nil {
			return fmt.Errorf("bucket %s not found", BucketTransactions)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func classify(recordID string, err error) error {
	if errors.Is(err, bolterrors.ErrTimeout) || errors.Is(err, bolterrors.ErrDatabaseNotOpen) {
		return ingest.Transient(recordID, err)
	}
	return ingest.Permanent(recordID, err)
}

var _ ingest.Persister = (*Store)(nil)
