// Package parser turns delimited bank export files into canonical
// transaction rows. A malformed record is collected as a RowError and
// never aborts the rest of the file; only an unreadable header fails the
// whole parse.
package parser

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/capofinance/capo/internal/classify"
)

// RowError describes one record that could not be normalized.
type RowError struct {
	Line   int      // 1-based line number in the file, header included
	Record []string // raw fields as read
	Err    error
}

func (e RowError) Error() string {
	return eris.Wrapf(e.Err, "row %d", e.Line).Error()
}

// Person associates a display name with the lowercase markers that
// identify it in free text.
type Person struct {
	Name    string
	Markers []string
}

// attribution resolves free text to a person display name by
// case-insensitive marker containment, falling back to a default.
type attribution struct {
	persons     []Person
	defaultName string
}

func (a attribution) detect(text string) string {
	folded := classify.Fold(strings.ToLower(text))
	for _, p := range a.persons {
		for _, marker := range p.Markers {
			if marker != "" && strings.Contains(folded, strings.ToLower(marker)) {
				return p.Name
			}
		}
	}
	return a.defaultName
}

// readRecords reads every semicolon-delimited record after validating
// the expected header. It returns the records paired with their 1-based
// line numbers; ragged records are kept and surface later as RowErrors.
func readRecords(data []byte, header []string) ([][]string, []int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	first, err := r.Read()
	if err != nil {
		return nil, nil, eris.Wrap(err, "parser: read header")
	}
	if !headerMatches(first, header) {
		return nil, nil, eris.Errorf("parser: unexpected header %q, want %q",
			strings.Join(first, ";"), strings.Join(header, ";"))
	}

	var records [][]string
	var lines []int
	line := 1
	for {
		line++
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep going; a single unquotable record must not block
			// the remainder of the file.
			records = append(records, nil)
			lines = append(lines, line)
			continue
		}
		if isBlank(rec) {
			continue
		}
		records = append(records, rec)
		lines = append(lines, line)
	}
	return records, lines, nil
}

func headerMatches(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if !strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(got[i], "\uFEFF")), want[i]) {
			return false
		}
	}
	return true
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
