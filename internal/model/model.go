// Package model defines the core data structures for the import pipeline.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind identifies which export format a row or run came from.
type SourceKind string

const (
	SourceStatement SourceKind = "statement" // bank account export (extrato)
	SourceBill      SourceKind = "bill"      // credit card export (fatura)
)

// Direction distinguishes money in from money out. Amounts are always
// stored as absolute values; direction is never carried in the sign.
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

// RunStatus represents the terminal state of an import run.
type RunStatus string

const (
	RunStatusPending RunStatus = "pending" // manifest created, rows not finalized
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// ParsedTransaction is one normalized row produced by a parser. Statement
// rows set RunningBalance; bill rows set InstallmentInfo and CardHolder.
// Neither variant touches the other's fields.
type ParsedTransaction struct {
	Timestamp        time.Time        `json:"timestamp"`
	Description      string           `json:"description"`
	Amount           decimal.Decimal  `json:"amount"`
	Direction        Direction        `json:"direction"`
	RunningBalance   *decimal.Decimal `json:"running_balance,omitempty"`
	InstallmentInfo  *string          `json:"installment_info,omitempty"`
	CardHolder       *string          `json:"card_holder,omitempty"`
	AttributedPerson string           `json:"attributed_person"`
	CategoryName     string           `json:"category_name,omitempty"`
	SubcategoryName  string           `json:"subcategory_name,omitempty"`
}

// ImportRun is the persisted manifest for one submitted file. Exactly one
// of AccountID or CreditCardID is set depending on SourceKind. Fingerprint
// is globally unique and acts as the whole-file dedup key.
type ImportRun struct {
	ID           string     `json:"id"`
	SourceKind   SourceKind `json:"source_kind"`
	Filename     string     `json:"filename"`
	Fingerprint  string     `json:"fingerprint"`
	AccountID    *int64     `json:"account_id,omitempty"`
	CreditCardID *int64     `json:"credit_card_id,omitempty"`
	TotalRows    int        `json:"total_rows"`
	ImportedRows int        `json:"imported_rows"`
	SkippedRows  int        `json:"skipped_rows"`
	ErrorRows    int        `json:"error_rows"`
	Status       RunStatus  `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Transaction is one persisted canonical row, linked to its import run.
// Rows are created by the orchestrator and never mutated by the pipeline.
type Transaction struct {
	ID              string           `json:"id"`
	ImportRunID     string           `json:"import_run_id"`
	SourceKind      SourceKind       `json:"source_kind"`
	Timestamp       time.Time        `json:"timestamp"`
	Description     string           `json:"description"`
	Amount          decimal.Decimal  `json:"amount"`
	Direction       Direction        `json:"direction"`
	RunningBalance  *decimal.Decimal `json:"running_balance,omitempty"`
	InstallmentInfo *string          `json:"installment_info,omitempty"`
	CardHolder      *string          `json:"card_holder,omitempty"`
	AccountID       *int64           `json:"account_id,omitempty"`
	CreditCardID    *int64           `json:"credit_card_id,omitempty"`
	PersonID        int64            `json:"person_id"`
	CategoryID      *int64           `json:"category_id,omitempty"`
	SubcategoryID   *int64           `json:"subcategory_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ImportResult is the summary returned to the caller after a run.
type ImportResult struct {
	RunID        string `json:"run_id,omitempty"` // empty when skipped pre-manifest
	Filename     string `json:"filename"`
	Fingerprint  string `json:"fingerprint"`
	TotalRows    int    `json:"total_rows"`
	ImportedRows int    `json:"imported_rows"`
	SkippedRows  int    `json:"skipped_rows"`
	ErrorRows    int    `json:"error_rows"`
	Status       string `json:"status"` // SUCCESS, PARTIAL, SKIPPED, ERROR
	Message      string `json:"message"`
}

// Result status strings reported to callers.
const (
	ResultSuccess = "SUCCESS"
	ResultPartial = "PARTIAL"
	ResultSkipped = "SKIPPED"
	ResultError   = "ERROR"
)

// Person is a household member transactions are attributed to.
type Person struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Category is a top-level spending category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Subcategory is a category refinement used by the classifier.
type Subcategory struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
}

// Account is a bank account statements are imported against.
type Account struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreditCard is a card bills are imported against.
type CreditCard struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CategorySpend is one row of the monthly spending aggregation.
type CategorySpend struct {
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Total       decimal.Decimal `json:"total"`
	Count       int             `json:"count"`
}
