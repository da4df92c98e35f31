package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capofinance/capo/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedRun(t *testing.T, s *SQLiteStore, fingerprint string, accountID *int64) *model.ImportRun {
	t.Helper()
	run := &model.ImportRun{
		SourceKind:  model.SourceStatement,
		Filename:    "extrato.csv",
		Fingerprint: fingerprint,
		AccountID:   accountID,
		TotalRows:   1,
	}
	require.NoError(t, s.CreateImportRun(context.Background(), run))
	return run
}

func TestSQLiteStore_FingerprintDedup(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	exists, err := s.ExistsByFingerprint(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, exists)

	seedRun(t, s, "fp1", nil)

	exists, err = s.ExistsByFingerprint(ctx, "fp1")
	require.NoError(t, err)
	assert.True(t, exists)

	// A second manifest with the same fingerprint is rejected as a
	// duplicate, which is how concurrent same-file imports resolve.
	err = s.CreateImportRun(ctx, &model.ImportRun{
		SourceKind: model.SourceStatement, Filename: "again.csv", Fingerprint: "fp1",
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))
}

func TestSQLiteStore_TransactionRowDedup(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	person, err := s.EnsurePerson(ctx, "Leonardo")
	require.NoError(t, err)
	account, err := s.EnsureAccount(ctx, "Nubank")
	require.NoError(t, err)

	runA := seedRun(t, s, "fileA", &account.ID)
	runB := seedRun(t, s, "fileB", &account.ID)

	ts := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	mk := func(runID string) *model.Transaction {
		return &model.Transaction{
			ImportRunID: runID,
			SourceKind:  model.SourceStatement,
			Timestamp:   ts,
			Description: "Mercado Zaffari",
			Amount:      decimal.RequireFromString("123.45"),
			Direction:   model.DirectionExpense,
			AccountID:   &account.ID,
			PersonID:    person.ID,
		}
	}

	require.NoError(t, s.CreateTransaction(ctx, mk(runA.ID)))

	// Same economic event arriving in a different file collides on the
	// row tuple even though the run differs.
	err = s.CreateTransaction(ctx, mk(runB.ID))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))

	txns, err := s.ListTransactions(ctx, TxFilter{})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestSQLiteStore_FinalizeImportRun(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run := seedRun(t, s, "fp-final", nil)
	require.NoError(t, s.FinalizeImportRun(ctx, run.ID, 8, 1, 1, model.RunStatusPartial))

	runs, err := s.ListImportRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 8, runs[0].ImportedRows)
	assert.Equal(t, 1, runs[0].SkippedRows)
	assert.Equal(t, 1, runs[0].ErrorRows)
	assert.Equal(t, model.RunStatusPartial, runs[0].Status)

	err = s.FinalizeImportRun(ctx, "nope", 0, 0, 0, model.RunStatusSuccess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_FindPersonByName_CaseInsensitive(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.EnsurePerson(ctx, "Giovana")
	require.NoError(t, err)

	p, err := s.FindPersonByName(ctx, "GIOVANA")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Giovana", p.Name)

	missing, err := s.FindPersonByName(ctx, "Nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_EnsureIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := s.EnsureCategory(ctx, "Leisure")
	require.NoError(t, err)
	b, err := s.EnsureCategory(ctx, "Leisure")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	subA, err := s.EnsureSubcategory(ctx, a.ID, "Subscriptions")
	require.NoError(t, err)
	subB, err := s.EnsureSubcategory(ctx, a.ID, "Subscriptions")
	require.NoError(t, err)
	assert.Equal(t, subA.ID, subB.ID)

	found, err := s.FindSubcategoryByName(ctx, a.ID, "subscriptions")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, subA.ID, found.ID)
}

func TestSQLiteStore_MonthlySpending(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	person, err := s.EnsurePerson(ctx, "Leonardo")
	require.NoError(t, err)
	cat, err := s.EnsureCategory(ctx, "Leisure")
	require.NoError(t, err)
	sub, err := s.EnsureSubcategory(ctx, cat.ID, "Subscriptions")
	require.NoError(t, err)

	run := seedRun(t, s, "fp-report", nil)

	add := func(month time.Month, day int, desc, amount string, catID, subID *int64, dir model.Direction) {
		t.Helper()
		require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
			ImportRunID:   run.ID,
			SourceKind:    model.SourceStatement,
			Timestamp:     time.Date(2024, month, day, 12, 0, 0, 0, time.UTC),
			Description:   desc,
			Amount:        decimal.RequireFromString(amount),
			Direction:     dir,
			PersonID:      person.ID,
			CategoryID:    catID,
			SubcategoryID: subID,
		}))
	}

	add(time.March, 1, "NETFLIX", "39.90", &cat.ID, &sub.ID, model.DirectionExpense)
	add(time.March, 2, "SPOTIFY", "21.90", &cat.ID, &sub.ID, model.DirectionExpense)
	add(time.March, 3, "BOLETO AVULSO", "100.00", nil, nil, model.DirectionExpense)
	add(time.March, 4, "SALARIO", "5000.00", nil, nil, model.DirectionIncome)
	// Outside the requested month.
	add(time.April, 1, "NETFLIX ABRIL", "39.90", &cat.ID, &sub.ID, model.DirectionExpense)
	require.NoError(t, s.FinalizeImportRun(ctx, run.ID, 5, 0, 0, model.RunStatusSuccess))

	rows, err := s.MonthlySpending(ctx, 2024, time.March)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byCat := map[string]model.CategorySpend{}
	for _, r := range rows {
		byCat[r.Category] = r
	}
	leisure := byCat["Leisure"]
	assert.Equal(t, 2, leisure.Count)
	assert.True(t, leisure.Total.Equal(decimal.RequireFromString("61.8")),
		"got %s", leisure.Total)
	uncat := byCat["Uncategorized"]
	assert.Equal(t, 1, uncat.Count)
}

func TestSQLiteStore_ListTransactions_Filters(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	person, err := s.EnsurePerson(ctx, "Leonardo")
	require.NoError(t, err)
	card, err := s.EnsureCreditCard(ctx, "Itau Platinum")
	require.NoError(t, err)

	run := seedRun(t, s, "fp-list", nil)
	holder := "LEONARDO S"
	inst := "2/10"
	require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
		ImportRunID:     run.ID,
		SourceKind:      model.SourceBill,
		Timestamp:       time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC),
		Description:     "MAGAZINELUIZA",
		Amount:          decimal.RequireFromString("1200.00"),
		Direction:       model.DirectionExpense,
		InstallmentInfo: &inst,
		CardHolder:      &holder,
		CreditCardID:    &card.ID,
		PersonID:        person.ID,
	}))

	txns, err := s.ListTransactions(ctx, TxFilter{SourceKind: model.SourceBill})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.NotNil(t, txns[0].InstallmentInfo)
	assert.Equal(t, "2/10", *txns[0].InstallmentInfo)
	require.NotNil(t, txns[0].CreditCardID)
	assert.Equal(t, card.ID, *txns[0].CreditCardID)
	assert.Nil(t, txns[0].RunningBalance)

	none, err := s.ListTransactions(ctx, TxFilter{SourceKind: model.SourceStatement})
	require.NoError(t, err)
	assert.Empty(t, none)
}
