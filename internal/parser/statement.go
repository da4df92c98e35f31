package parser

import (
	"github.com/rotisserie/eris"

	"github.com/capofinance/capo/internal/model"
	"github.com/capofinance/capo/internal/money"
)

// Statement header literal and column layout: Data;Descricao;Valor;Saldo.
var statementHeader = []string{"Data", "Descricao", "Valor", "Saldo"}

const (
	stmtColDate = iota
	stmtColDesc
	stmtColAmount
	stmtColBalance
)

// Statement parses bank account exports (extrato). Direction is derived
// from the amount sign; person attribution comes from markers in the
// description.
type Statement struct {
	attr attribution
}

// NewStatement builds a statement parser. defaultName is used when no
// person marker matches.
func NewStatement(persons []Person, defaultName string) *Statement {
	return &Statement{attr: attribution{persons: persons, defaultName: defaultName}}
}

// Parse reads the whole file and returns the rows that normalized
// cleanly alongside the per-row failures. The returned error is non-nil
// only when the header itself is unreadable.
func (p *Statement) Parse(data []byte) ([]model.ParsedTransaction, []RowError, error) {
	records, lines, err := readRecords(data, statementHeader)
	if err != nil {
		return nil, nil, err
	}

	var txns []model.ParsedTransaction
	var rowErrs []RowError
	for i, rec := range records {
		txn, err := p.parseRecord(rec)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: lines[i], Record: rec, Err: err})
			continue
		}
		txns = append(txns, txn)
	}
	return txns, rowErrs, nil
}

func (p *Statement) parseRecord(rec []string) (model.ParsedTransaction, error) {
	ts, err := money.ParseStatementTime(field(rec, stmtColDate))
	if err != nil {
		return model.ParsedTransaction{}, err
	}

	desc := field(rec, stmtColDesc)
	if desc == "" {
		return model.ParsedTransaction{}, eris.New("empty description")
	}

	amount, err := money.ParseAmount(field(rec, stmtColAmount))
	if err != nil {
		return model.ParsedTransaction{}, err
	}
	balance, err := money.ParseAmount(field(rec, stmtColBalance))
	if err != nil {
		return model.ParsedTransaction{}, err
	}

	direction := model.DirectionIncome
	if amount.IsNegative() {
		direction = model.DirectionExpense
	}

	return model.ParsedTransaction{
		Timestamp:        ts,
		Description:      desc,
		Amount:           amount.Abs(),
		Direction:        direction,
		RunningBalance:   &balance,
		AttributedPerson: p.attr.detect(desc),
	}, nil
}
