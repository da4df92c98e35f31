package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/capofinance/capo/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	runs := []model.ImportRun{
		{
			SourceKind:   model.SourceStatement,
			Filename:     "extrato.csv",
			Status:       model.RunStatusSuccess,
			TotalRows:    10,
			ImportedRows: 10,
			CreatedAt:    time.Date(2024, time.March, 5, 10, 30, 0, 0, time.UTC),
		},
		{
			SourceKind:   model.SourceBill,
			Filename:     "fatura.csv",
			Status:       model.RunStatusPartial,
			TotalRows:    5,
			ImportedRows: 3,
			SkippedRows:  1,
			ErrorRows:    1,
			CreatedAt:    time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "CREATED")
	assert.Contains(t, out, "extrato.csv")
	assert.Contains(t, out, "fatura.csv")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "2024-03-05 10:30")
}
