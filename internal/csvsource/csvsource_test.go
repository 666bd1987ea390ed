package csvsource

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	input := "ID,Date,AccountID,Amount\n" +
		"t1,2024-01-01,a1,100.00\n" +
		"t2, 2024-01-02 ,a2,-5.5\n"

	records, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "t1", records[0].ID)
	assert.Equal(t, "2024-01-01", records[0].Date)
	assert.Equal(t, "a1", records[0].AccountID)
	assert.Equal(t, "100.00", records[0].AmountString())

	assert.Equal(t, "t2", records[1].ID)
	assert.Equal(t, "2024-01-02", records[1].Date)
	assert.Equal(t, "-5.5", records[1].AmountString())
}

func TestDecode_ColumnOrderAndExtras(t *testing.T) {
	input := "\ufeffAmount,Note,AccountID,ID,Date\n" +
		"12.30,lunch,acc-9,x1,2024-03-04\n"

	records, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "x1", records[0].ID)
	assert.Equal(t, "acc-9", records[0].AccountID)
	assert.Equal(t, "2024-03-04", records[0].Date)
	assert.Equal(t, "12.30", records[0].AmountString())
}

func TestDecode_HeaderOnly(t *testing.T) {
	records, err := Decode(strings.NewReader("ID,Date,AccountID,Amount\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{name: "missing column", input: "ID,Date,Amount\nt1,2024-01-01,1\n", wantMsg: "AccountID"},
		{name: "bad amount", input: "ID,Date,AccountID,Amount\nt1,2024-01-01,a1,ten\n", wantMsg: "invalid amount"},
		{name: "float syntax rejected", input: "ID,Date,AccountID,Amount\nt1,2024-01-01,a1,NaN\n", wantMsg: "invalid amount"},
		{name: "empty id", input: "ID,Date,AccountID,Amount\n,2024-01-01,a1,1\n", wantMsg: "empty ID"},
		{name: "duplicate id", input: "ID,Date,AccountID,Amount\nt1,d,a,1\nt1,d,a,2\n", wantMsg: "duplicate ID"},
		{name: "ragged row", input: "ID,Date,AccountID,Amount\nt1,d,a\n", wantMsg: "reading row"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrEmptyFile))
}
