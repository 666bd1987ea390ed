package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

// ErrorKind tells the invoking layer whether retrying can help.
type ErrorKind string

const (
	// KindTransient marks capacity or throttling failures; the same item may be retried.
	KindTransient ErrorKind = "TRANSIENT"
	// KindPermanent marks malformed data or keys; retrying will not help.
	KindPermanent ErrorKind = "PERMANENT"
)

// PersistError is returned by Persister implementations.
type PersistError struct {
	Kind     ErrorKind
	RecordID string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.RecordID, e.Kind, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable persistence failure.
func Transient(recordID string, err error) error {
	return &PersistError{Kind: KindTransient, RecordID: recordID, Err: err}
}

// Permanent wraps err as a non-retryable persistence failure.
func Permanent(recordID string, err error) error {
	return &PersistError{Kind: KindPermanent, RecordID: recordID, Err: err}
}

// KindOf classifies err. Untyped errors are permanent unless they come from
// context cancellation or deadline expiry.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var pe *PersistError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	return KindPermanent
}

// SourceReadError reports that a batch could not be read. No item of the
// batch is attempted when it occurs.
type SourceReadError struct {
	Location domain.BatchLocation
	Err      error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("read batch %s: %v", e.Location, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}

// NewSourceReadError wraps err unless it already is a SourceReadError.
func NewSourceReadError(loc domain.BatchLocation, err error) error {
	var sre *SourceReadError
	if errors.As(err, &sre) {
		return err
	}
	return &SourceReadError{Location: loc, Err: err}
}
