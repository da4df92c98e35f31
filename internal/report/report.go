// Package report renders spending summaries as XLSX workbooks.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/capofinance/capo/internal/model"
)

// Monthly is the input for one monthly workbook: the aggregated
// category totals plus the raw transactions for the period.
type Monthly struct {
	Year         int
	Month        time.Month
	Spending     []model.CategorySpend
	Transactions []model.Transaction
}

// WriteXLSX renders the monthly report as a two-sheet workbook:
// category totals first, raw transactions second.
func WriteXLSX(w io.Writer, m Monthly) error {
	f := xlsx.NewFile()

	if err := addSpendingSheet(f, m); err != nil {
		return err
	}
	if err := addTransactionsSheet(f, m); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

func addSpendingSheet(f *xlsx.File, m Monthly) error {
	sheet, err := f.AddSheet(fmt.Sprintf("Spending %d-%02d", m.Year, int(m.Month)))
	if err != nil {
		return eris.Wrap(err, "report: add spending sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Category", "Subcategory", "Total", "Transactions"} {
		header.AddCell().SetString(h)
	}

	total := 0.0
	for _, s := range m.Spending {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Category)
		row.AddCell().SetString(s.Subcategory)
		amount, _ := s.Total.Float64()
		row.AddCell().SetFloat(amount)
		row.AddCell().SetInt(s.Count)
		total += amount
	}

	footer := sheet.AddRow()
	footer.AddCell().SetString("Total")
	footer.AddCell()
	footer.AddCell().SetFloat(total)
	return nil
}

func addTransactionsSheet(f *xlsx.File, m Monthly) error {
	sheet, err := f.AddSheet("Transactions")
	if err != nil {
		return eris.Wrap(err, "report: add transactions sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Date", "Description", "Amount", "Direction", "Source", "Installment", "Card Holder"} {
		header.AddCell().SetString(h)
	}

	for _, t := range m.Transactions {
		row := sheet.AddRow()
		row.AddCell().SetString(t.Timestamp.Format("2006-01-02 15:04:05"))
		row.AddCell().SetString(t.Description)
		amount, _ := t.Amount.Float64()
		if t.Direction == model.DirectionExpense {
			amount = -amount
		}
		row.AddCell().SetFloat(amount)
		row.AddCell().SetString(string(t.Direction))
		row.AddCell().SetString(string(t.SourceKind))
		row.AddCell().SetString(deref(t.InstallmentInfo))
		row.AddCell().SetString(deref(t.CardHolder))
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
