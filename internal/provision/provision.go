// Package provision derives provision records from original transactions.
package provision

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

// Ratio is the process-wide scaling factor applied to original amounts.
// The zero Ratio disables derivation.
type Ratio struct {
	value decimal.Decimal
}

// NewRatio wraps an already-validated non-negative decimal.
func NewRatio(d decimal.Decimal) Ratio {
	return Ratio{value: d}
}

// Enabled reports whether provision records should be derived at all.
func (r Ratio) Enabled() bool {
	return !r.value.IsZero()
}

// Decimal returns the underlying value.
func (r Ratio) Decimal() decimal.Decimal {
	return r.value
}

func (r Ratio) String() string {
	return r.value.String()
}

// IDFunc generates identifiers for derived records.
type IDFunc func() string

// Deriver produces provision records. The zero value uses random UUIDs.
type Deriver struct {
	Ratio Ratio
	NewID IDFunc
}

// Derive returns the provision counterpart of rec, or false when the ratio is
// zero. The amount is multiplied exactly; date and account are copied verbatim
// and the id is fresh, unrelated to the source id.
func (d Deriver) Derive(rec domain.TransactionRecord) (domain.TransactionRecord, bool) {
	if !d.Ratio.Enabled() {
		return domain.TransactionRecord{}, false
	}

	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return domain.TransactionRecord{
		ID:        newID(),
		Date:      rec.Date,
		AccountID: rec.AccountID,
		Amount:    scale(rec.Amount.Mul(d.Ratio.value), rec.Amount),
	}, true
}

// scale gives product exactly as many fractional digits as the source
// amount, or more when the value needs them: 100.00 * 0.2 renders as 20.00,
// 100.05 * 0.25 as 25.0125 and 100.00 * 1e2 as 10000.00. Only zeros are
// added or removed, so the value is unchanged.
func scale(product, source decimal.Decimal) decimal.Decimal {
	places := fractionalDigits(source)
	if minimal := fractionalDigits(decimal.RequireFromString(product.String())); minimal > places {
		places = minimal
	}
	if product.Exponent() == -places {
		return product
	}
	return product.Round(places)
}

func fractionalDigits(d decimal.Decimal) int32 {
	if exp := d.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// Derive is a convenience wrapper around Deriver with random ids.
func Derive(rec domain.TransactionRecord, ratio Ratio) (domain.TransactionRecord, bool) {
	return Deriver{Ratio: ratio}.Derive(rec)
}
