package money

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"thousands and decimal comma", "1.234,56", "1234.56"},
		{"negative", "-50,00", "-50"},
		{"currency marker", "R$ 89,90", "89.9"},
		{"currency marker negative", "R$ -1.500,00", "-1500"},
		{"no decimals", "1.000", "1000"},
		{"plain integer", "42", "42"},
		{"non-breaking space", "R$ 12,50", "12.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAmount(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", got, tt.want)
		})
	}
}

func TestParseAmount_Malformed(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "abc", "12,34,56", "R$"} {
		_, err := ParseAmount(input)
		require.Error(t, err, "input %q", input)
		assert.True(t, eris.Is(err, ErrMalformedAmount))
	}
}

func TestParseStatementTime_LayoutFallback(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)

	tests := []string{
		"05/03/24 às 10:00:00",
		"05/03/2024 às 10:00:00",
		"05/03/24 10:00:00",
		"05/03/2024 10:00:00",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseStatementTime(input)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %s", got)
		})
	}
}

func TestParseStatementTime_Malformed(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"2024-03-05", "05/03/2024", "not a date", ""} {
		_, err := ParseStatementTime(input)
		require.Error(t, err, "input %q", input)
		assert.True(t, eris.Is(err, ErrMalformedTimestamp))
	}
}

func TestParseBillDate_NoonSentinel(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"05/03/2024", "05/03/24"} {
		got, err := ParseBillDate(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, 2024, got.Year())
		assert.Equal(t, time.March, got.Month())
		assert.Equal(t, 5, got.Day())
		assert.Equal(t, 12, got.Hour())
		assert.Equal(t, 0, got.Minute())
	}
}

func TestParseBillDate_Malformed(t *testing.T) {
	t.Parallel()

	_, err := ParseBillDate("05/03/2024 10:00:00")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMalformedTimestamp))
}
