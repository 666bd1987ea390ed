// Package csvsource decodes transaction batch files.
//
// A batch file is UTF-8 CSV with a header row naming at least the columns
// ID, Date, AccountID and Amount, in any order.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

// Column names expected in the header row.
const (
	ColumnID        = "ID"
	ColumnDate      = "Date"
	ColumnAccountID = "AccountID"
	ColumnAmount    = "Amount"
)

var requiredColumns = []string{ColumnID, ColumnDate, ColumnAccountID, ColumnAmount}

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("csvsource: empty file")

// Decode reads every record of a batch file. Any malformed row fails the
// whole file; records are never silently skipped or coerced.
func Decode(r io.Reader) ([]domain.TransactionRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("csvsource: reading header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	records := []domain.TransactionRecord{}
	seen := make(map[string]int)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvsource: reading row: %w", err)
		}

		line, _ := reader.FieldPos(0)

		rec, err := toRecord(row, index)
		if err != nil {
			return nil, fmt.Errorf("csvsource: line %d: %w", line, err)
		}
		if prev, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("csvsource: line %d: duplicate ID %q (first seen on line %d)", line, rec.ID, prev)
		}
		seen[rec.ID] = line

		records = append(records, rec)
	}

	return records, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[name] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csvsource: missing required columns: %v", missing)
	}

	return index, nil
}

func toRecord(row []string, index map[string]int) (domain.TransactionRecord, error) {
	field := func(col string) string {
		return strings.TrimSpace(row[index[col]])
	}

	id := field(ColumnID)
	if id == "" {
		return domain.TransactionRecord{}, errors.New("empty ID")
	}

	amount, err := domain.ParseAmount(field(ColumnAmount))
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("record %s: %w", id, err)
	}

	return domain.TransactionRecord{
		ID:        id,
		Date:      field(ColumnDate),
		AccountID: field(ColumnAccountID),
		Amount:    amount,
	}, nil
}
