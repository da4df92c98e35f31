package parser

import (
	"github.com/rotisserie/eris"

	"github.com/capofinance/capo/internal/model"
	"github.com/capofinance/capo/internal/money"
)

// Bill header literal and column layout:
// Data;Estabelecimento;Portador;Valor;Parcela.
var billHeader = []string{"Data", "Estabelecimento", "Portador", "Valor", "Parcela"}

const (
	billColDate = iota
	billColMerchant
	billColHolder
	billColAmount
	billColInstallment
)

// Bill parses credit card exports (fatura). Every row is a charge, so
// direction is always expense; person attribution comes from markers in
// the card holder field.
type Bill struct {
	attr attribution
}

// NewBill builds a bill parser.
func NewBill(persons []Person, defaultName string) *Bill {
	return &Bill{attr: attribution{persons: persons, defaultName: defaultName}}
}

// Parse reads the whole file; see Statement.Parse for the error
// contract.
func (p *Bill) Parse(data []byte) ([]model.ParsedTransaction, []RowError, error) {
	records, lines, err := readRecords(data, billHeader)
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

func (p *Bill) parseRecord(rec []string) (model.ParsedTransaction, error) {
	ts, err := money.ParseBillDate(field(rec, billColDate))
	if err != nil {
		return model.ParsedTransaction{}, err
	}

	merchant := field(rec, billColMerchant)
	if merchant == "" {
		return model.ParsedTransaction{}, eris.New("empty description")
	}

	amount, err := money.ParseAmount(field(rec, billColAmount))
	if err != nil {
		return model.ParsedTransaction{}, err
	}

	holder := field(rec, billColHolder)
	txn := model.ParsedTransaction{
		Timestamp:        ts,
		Description:      merchant,
		Amount:           amount.Abs(),
		Direction:        model.DirectionExpense,
		AttributedPerson: p.attr.detect(holder),
	}
	if holder != "" {
		txn.CardHolder = &holder
	}

	// "-" is the export's placeholder for a single-installment charge.
	if inst := field(rec, billColInstallment); inst != "" && inst != "-" {
		txn.InstallmentInfo = &inst
	}

	return txn, nil
}
