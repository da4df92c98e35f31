// Package money normalizes locale-formatted currency and date text from
// Brazilian bank exports into canonical values.
package money

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ErrMalformedAmount reports currency text that does not clean up to a
// valid decimal literal.
var ErrMalformedAmount = eris.New("money: malformed amount")

// ErrMalformedTimestamp reports date text that matches none of the
// accepted layouts.
var ErrMalformedTimestamp = eris.New("money: malformed timestamp")

// Statement exports are not layout-consistent release over release, so
// each value is tried against every accepted layout in order and the
// first successful parse wins.
var statementLayouts = []string{
	"02/01/06 às 15:04:05",
	"02/01/2006 às 15:04:05",
	"02/01/06 15:04:05",
	"02/01/2006 15:04:05",
}

var billLayouts = []string{
	"02/01/2006",
	"02/01/06",
}

var amountReplacer = strings.NewReplacer(
	"R$", "",
	" ", "",
	" ", "",
	".", "", // thousands separator
	",", ".", // decimal separator
)

// ParseAmount converts currency text like "R$ 1.234,56" or "-50,00" into
// a signed fixed-point decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(amountReplacer.Replace(s))
	if cleaned == "" {
		return decimal.Zero, eris.Wrapf(ErrMalformedAmount, "empty amount %q", s)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, eris.Wrapf(ErrMalformedAmount, "amount %q", s)
	}
	return d, nil
}

// ParseStatementTime parses a statement timestamp with seconds precision,
// with or without the "às" connector and with two- or four-digit years.
func ParseStatementTime(s string) (time.Time, error) {
	return parseLayouts(strings.TrimSpace(s), statementLayouts)
}

// ParseBillDate parses a date-only bill value. The result is pinned to
// noon so that timezone conversion can never shift it across a day
// boundary.
func ParseBillDate(s string) (time.Time, error) {
	t, err := parseLayouts(strings.TrimSpace(s), billLayouts)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, t.Location()), nil
}

func parseLayouts(s string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrMalformedTimestamp, "timestamp %q", s)
}
