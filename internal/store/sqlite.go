package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	sqlite "modernc.org/sqlite"

	"github.com/capofinance/capo/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// default backend for single-user installs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS persons (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS categories (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS subcategories (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	category_id INTEGER NOT NULL REFERENCES categories(id),
	name        TEXT NOT NULL,
	UNIQUE (category_id, name)
);

CREATE TABLE IF NOT EXISTS accounts (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS credit_cards (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS import_runs (
	id             TEXT PRIMARY KEY,
	source_kind    TEXT NOT NULL,
	filename       TEXT NOT NULL,
	fingerprint    TEXT NOT NULL UNIQUE,
	account_id     INTEGER REFERENCES accounts(id),
	credit_card_id INTEGER REFERENCES credit_cards(id),
	total_rows     INTEGER NOT NULL DEFAULT 0,
	imported_rows  INTEGER NOT NULL DEFAULT 0,
	skipped_rows   INTEGER NOT NULL DEFAULT 0,
	error_rows     INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id               TEXT PRIMARY KEY,
	import_run_id    TEXT NOT NULL REFERENCES import_runs(id),
	source_kind      TEXT NOT NULL,
	transaction_date DATETIME NOT NULL,
	description      TEXT NOT NULL,
	amount           NUMERIC NOT NULL,
	direction        TEXT NOT NULL,
	running_balance  NUMERIC,
	installment_info TEXT,
	card_holder      TEXT,
	account_id       INTEGER REFERENCES accounts(id),
	credit_card_id   INTEGER REFERENCES credit_cards(id),
	person_id        INTEGER NOT NULL REFERENCES persons(id),
	category_id      INTEGER REFERENCES categories(id),
	subcategory_id   INTEGER REFERENCES subcategories(id),
	created_at       DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_transaction_row ON transactions
	(transaction_date, description, amount, source_kind,
	 COALESCE(account_id, 0), COALESCE(credit_card_id, 0));

CREATE INDEX IF NOT EXISTS idx_import_runs_created_at ON import_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_run_id ON transactions(import_run_id);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(transaction_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isSQLiteUnique reports whether err is a SQLITE_CONSTRAINT failure.
func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == 19
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM import_runs WHERE fingerprint = ?)`,
		fingerprint,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: exists by fingerprint")
}

func (s *SQLiteStore) CreateImportRun(ctx context.Context, run *model.ImportRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now().UTC()
	if run.Status == "" {
		run.Status = model.RunStatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, source_kind, filename, fingerprint, account_id, credit_card_id, total_rows, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.SourceKind), run.Filename, run.Fingerprint,
		run.AccountID, run.CreditCardID, run.TotalRows, string(run.Status), run.CreatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return eris.Wrap(ErrDuplicate, "sqlite: import run fingerprint")
		}
		return eris.Wrap(err, "sqlite: insert import run")
	}
	return nil
}

func (s *SQLiteStore) FinalizeImportRun(ctx context.Context, runID string, imported, skipped, errored int, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_runs SET imported_rows = ?, skipped_rows = ?, error_rows = ?, status = ? WHERE id = ?`,
		imported, skipped, errored, string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize import run %s", runID)
	}
	return checkRowsAffected(res, "import run", runID)
}

func (s *SQLiteStore) ListImportRuns(ctx context.Context, filter RunFilter) ([]model.ImportRun, error) {
	query := `SELECT id, source_kind, filename, fingerprint, account_id, credit_card_id,
	                 total_rows, imported_rows, skipped_rows, error_rows, status, created_at
	          FROM import_runs WHERE 1=1`
	var args []any

	if filter.SourceKind != "" {
		query += ` AND source_kind = ?`
		args = append(args, string(filter.SourceKind))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list import runs")
	}
	defer rows.Close()

	var runs []model.ImportRun
	for rows.Next() {
		var r model.ImportRun
		if err := rows.Scan(&r.ID, &r.SourceKind, &r.Filename, &r.Fingerprint,
			&r.AccountID, &r.CreditCardID, &r.TotalRows, &r.ImportedRows,
			&r.SkippedRows, &r.ErrorRows, &r.Status, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list import runs iterate")
}

func (s *SQLiteStore) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, import_run_id, source_kind, transaction_date, description, amount, direction,
		  running_balance, installment_info, card_holder, account_id, credit_card_id,
		  person_id, category_id, subcategory_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.ImportRunID, string(txn.SourceKind), txn.Timestamp, txn.Description,
		txn.Amount, string(txn.Direction), nullDecimal(txn.RunningBalance),
		txn.InstallmentInfo, txn.CardHolder, txn.AccountID, txn.CreditCardID,
		txn.PersonID, txn.CategoryID, txn.SubcategoryID, txn.CreatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return eris.Wrap(ErrDuplicate, "sqlite: transaction row")
		}
		return eris.Wrap(err, "sqlite: insert transaction")
	}
	return nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, filter TxFilter) ([]model.Transaction, error) {
	query := `SELECT id, import_run_id, source_kind, transaction_date, description, amount, direction,
	                 running_balance, installment_info, card_holder, account_id, credit_card_id,
	                 person_id, category_id, subcategory_id, created_at
	          FROM transactions WHERE 1=1`
	var args []any

	if filter.SourceKind != "" {
		query += ` AND source_kind = ?`
		args = append(args, string(filter.SourceKind))
	}
	if filter.PersonID != 0 {
		query += ` AND person_id = ?`
		args = append(args, filter.PersonID)
	}
	if filter.CategoryID != 0 {
		query += ` AND category_id = ?`
		args = append(args, filter.CategoryID)
	}
	if !filter.From.IsZero() {
		query += ` AND transaction_date >= ?`
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND transaction_date < ?`
		args = append(args, filter.To)
	}
	query += ` ORDER BY transaction_date DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transactions")
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var balance decimal.NullDecimal
		if err := rows.Scan(&t.ID, &t.ImportRunID, &t.SourceKind, &t.Timestamp, &t.Description,
			&t.Amount, &t.Direction, &balance, &t.InstallmentInfo, &t.CardHolder,
			&t.AccountID, &t.CreditCardID, &t.PersonID, &t.CategoryID, &t.SubcategoryID,
			&t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		if balance.Valid {
			t.RunningBalance = &balance.Decimal
		}
		txns = append(txns, t)
	}
	return txns, eris.Wrap(rows.Err(), "sqlite: list transactions iterate")
}

func (s *SQLiteStore) MonthlySpending(ctx context.Context, year int, month time.Month) ([]model.CategorySpend, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(c.name, 'Uncategorized'), COALESCE(sc.name, ''), SUM(t.amount), COUNT(*)
		 FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id
		 LEFT JOIN subcategories sc ON sc.id = t.subcategory_id
		 WHERE t.direction = 'expense' AND t.transaction_date >= ? AND t.transaction_date < ?
		 GROUP BY 1, 2
		 ORDER BY 3 DESC`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: monthly spending")
	}
	defer rows.Close()

	var out []model.CategorySpend
	for rows.Next() {
		var cs model.CategorySpend
		if err := rows.Scan(&cs.Category, &cs.Subcategory, &cs.Total, &cs.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan spending row")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: monthly spending iterate")
}

func (s *SQLiteStore) FindPersonByName(ctx context.Context, name string) (*model.Person, error) {
	var p model.Person
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM persons WHERE name = ? COLLATE NOCASE`,
		name,
	).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find person")
	}
	return &p, nil
}

func (s *SQLiteStore) FindCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE name = ? COLLATE NOCASE`,
		name,
	).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find category")
	}
	return &c, nil
}

func (s *SQLiteStore) FindSubcategoryByName(ctx context.Context, categoryID int64, name string) (*model.Subcategory, error) {
	var sc model.Subcategory
	err := s.db.QueryRowContext(ctx,
		`SELECT id, category_id, name FROM subcategories WHERE category_id = ? AND name = ? COLLATE NOCASE`,
		categoryID, name,
	).Scan(&sc.ID, &sc.CategoryID, &sc.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find subcategory")
	}
	return &sc, nil
}

func (s *SQLiteStore) EnsurePerson(ctx context.Context, name string) (*model.Person, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO persons (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure person %s", name)
	}
	return s.FindPersonByName(ctx, name)
}

func (s *SQLiteStore) EnsureCategory(ctx context.Context, name string) (*model.Category, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure category %s", name)
	}
	return s.FindCategoryByName(ctx, name)
}

func (s *SQLiteStore) EnsureSubcategory(ctx context.Context, categoryID int64, name string) (*model.Subcategory, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO subcategories (category_id, name) VALUES (?, ?) ON CONFLICT(category_id, name) DO NOTHING`,
		categoryID, name,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure subcategory %s", name)
	}
	return s.FindSubcategoryByName(ctx, categoryID, name)
}

func (s *SQLiteStore) EnsureAccount(ctx context.Context, name string) (*model.Account, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure account %s", name)
	}
	var a model.Account
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM accounts WHERE name = ?`, name).
		Scan(&a.ID, &a.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure account %s", name)
	}
	return &a, nil
}

func (s *SQLiteStore) EnsureCreditCard(ctx context.Context, name string) (*model.CreditCard, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_cards (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure credit card %s", name)
	}
	var c model.CreditCard
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM credit_cards WHERE name = ?`, name).
		Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure credit card %s", name)
	}
	return &c, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
