package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/capofinance/capo/internal/model"
)

func TestWriteXLSX(t *testing.T) {
	t.Parallel()
	inst := "2/10"
	m := Monthly{
		Year:  2024,
		Month: time.March,
		Spending: []model.CategorySpend{
			{Category: "Leisure", Subcategory: "Subscriptions", Total: decimal.RequireFromString("61.80"), Count: 2},
			{Category: "Uncategorized", Total: decimal.RequireFromString("100.00"), Count: 1},
		},
		Transactions: []model.Transaction{
			{
				Timestamp:   time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC),
				Description: "NETFLIX",
				Amount:      decimal.RequireFromString("39.90"),
				Direction:   model.DirectionExpense,
				SourceKind:  model.SourceBill,
			},
			{
				Timestamp:       time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC),
				Description:     "MAGAZINELUIZA",
				Amount:          decimal.RequireFromString("1200.00"),
				Direction:       model.DirectionExpense,
				SourceKind:      model.SourceBill,
				InstallmentInfo: &inst,
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, m))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	spending := f.Sheets[0]
	assert.Equal(t, "Spending 2024-03", spending.Name)
	// header + two categories + total footer
	require.Len(t, spending.Rows, 4)
	assert.Equal(t, "Leisure", spending.Rows[1].Cells[0].String())
	assert.Equal(t, "Subscriptions", spending.Rows[1].Cells[1].String())
	got, err := spending.Rows[1].Cells[2].Float()
	require.NoError(t, err)
	assert.InDelta(t, 61.80, got, 0.001)
	footer, err := spending.Rows[3].Cells[2].Float()
	require.NoError(t, err)
	assert.InDelta(t, 161.80, footer, 0.001)

	txns := f.Sheets[1]
	assert.Equal(t, "Transactions", txns.Name)
	require.Len(t, txns.Rows, 3)
	assert.Equal(t, "NETFLIX", txns.Rows[1].Cells[1].String())
	// Expenses are rendered negative so sheet sums work.
	amount, err := txns.Rows[1].Cells[2].Float()
	require.NoError(t, err)
	assert.InDelta(t, -39.90, amount, 0.001)
	assert.Equal(t, "2/10", txns.Rows[2].Cells[5].String())
}

func TestWriteXLSX_Empty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, Monthly{Year: 2024, Month: time.January}))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Len(t, f.Sheets[0].Rows, 2) // header + zero total
}
