// Package store persists import runs, transactions, and the reference
// tables they resolve against.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/capofinance/capo/internal/model"
)

// ErrDuplicate reports a uniqueness-constraint violation. For
// transactions it means the same economic event is already stored; for
// import runs it means the same file fingerprint already has a manifest.
// Callers treat it as an expected outcome, not a failure.
var ErrDuplicate = eris.New("store: duplicate")

// RunFilter specifies criteria for listing import runs.
type RunFilter struct {
	SourceKind model.SourceKind `json:"source_kind,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// TxFilter specifies criteria for listing transactions.
type TxFilter struct {
	SourceKind model.SourceKind `json:"source_kind,omitempty"`
	PersonID   int64            `json:"person_id,omitempty"`
	CategoryID int64            `json:"category_id,omitempty"`
	From       time.Time        `json:"from,omitempty"`
	To         time.Time        `json:"to,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for the import pipeline.
// Find* methods return (nil, nil) when the entity does not exist.
type Store interface {
	// Import runs
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	CreateImportRun(ctx context.Context, run *model.ImportRun) error
	FinalizeImportRun(ctx context.Context, runID string, imported, skipped, errored int, status model.RunStatus) error
	ListImportRuns(ctx context.Context, filter RunFilter) ([]model.ImportRun, error)

	// Transactions
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	ListTransactions(ctx context.Context, filter TxFilter) ([]model.Transaction, error)
	MonthlySpending(ctx context.Context, year int, month time.Month) ([]model.CategorySpend, error)

	// Reference lookups
	FindPersonByName(ctx context.Context, name string) (*model.Person, error)
	FindCategoryByName(ctx context.Context, name string) (*model.Category, error)
	FindSubcategoryByName(ctx context.Context, categoryID int64, name string) (*model.Subcategory, error)

	// Seeding
	EnsurePerson(ctx context.Context, name string) (*model.Person, error)
	EnsureCategory(ctx context.Context, name string) (*model.Category, error)
	EnsureSubcategory(ctx context.Context, categoryID int64, name string) (*model.Subcategory, error)
	EnsureAccount(ctx context.Context, name string) (*model.Account, error)
	EnsureCreditCard(ctx context.Context, name string) (*model.CreditCard, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
