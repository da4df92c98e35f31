package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/capofinance/capo/internal/db"
	"github.com/capofinance/capo/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS persons (
	id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS categories (
	id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS subcategories (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	category_id BIGINT NOT NULL REFERENCES categories(id),
	name        TEXT NOT NULL,
	UNIQUE (category_id, name)
);

CREATE TABLE IF NOT EXISTS accounts (
	id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS credit_cards (
	id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS import_runs (
	id             TEXT PRIMARY KEY,
	source_kind    TEXT NOT NULL,
	filename       TEXT NOT NULL,
	fingerprint    TEXT NOT NULL UNIQUE,
	account_id     BIGINT REFERENCES accounts(id),
	credit_card_id BIGINT REFERENCES credit_cards(id),
	total_rows     INTEGER NOT NULL DEFAULT 0,
	imported_rows  INTEGER NOT NULL DEFAULT 0,
	skipped_rows   INTEGER NOT NULL DEFAULT 0,
	error_rows     INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id               TEXT PRIMARY KEY,
	import_run_id    TEXT NOT NULL REFERENCES import_runs(id),
	source_kind      TEXT NOT NULL,
	transaction_date TIMESTAMPTZ NOT NULL,
	description      TEXT NOT NULL,
	amount           NUMERIC(14,2) NOT NULL,
	direction        TEXT NOT NULL,
	running_balance  NUMERIC(14,2),
	installment_info TEXT,
	card_holder      TEXT,
	account_id       BIGINT REFERENCES accounts(id),
	credit_card_id   BIGINT REFERENCES credit_cards(id),
	person_id        BIGINT NOT NULL REFERENCES persons(id),
	category_id      BIGINT REFERENCES categories(id),
	subcategory_id   BIGINT REFERENCES subcategories(id),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_transaction_row UNIQUE NULLS NOT DISTINCT
		(transaction_date, description, amount, source_kind, account_id, credit_card_id)
);

CREATE INDEX IF NOT EXISTS idx_import_runs_created_at ON import_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_run_id ON transactions(import_run_id);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(transaction_date);
CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(category_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// isUniqueViolation reports whether err is a postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM import_runs WHERE fingerprint = $1)`,
		fingerprint,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: exists by fingerprint")
}

func (s *PostgresStore) CreateImportRun(ctx context.Context, run *model.ImportRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now().UTC()
	if run.Status == "" {
		run.Status = model.RunStatusPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (id, source_kind, filename, fingerprint, account_id, credit_card_id, total_rows, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, string(run.SourceKind), run.Filename, run.Fingerprint,
		run.AccountID, run.CreditCardID, run.TotalRows, string(run.Status), run.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrap(ErrDuplicate, "postgres: import run fingerprint")
		}
		return eris.Wrap(err, "postgres: insert import run")
	}
	return nil
}

func (s *PostgresStore) FinalizeImportRun(ctx context.Context, runID string, imported, skipped, errored int, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_runs SET imported_rows = $1, skipped_rows = $2, error_rows = $3, status = $4 WHERE id = $5`,
		imported, skipped, errored, string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize import run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("import run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListImportRuns(ctx context.Context, filter RunFilter) ([]model.ImportRun, error) {
	query := `SELECT id, source_kind, filename, fingerprint, account_id, credit_card_id,
	                 total_rows, imported_rows, skipped_rows, error_rows, status, created_at
	          FROM import_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SourceKind != "" {
		query += fmt.Sprintf(` AND source_kind = $%d`, argIdx)
		args = append(args, string(filter.SourceKind))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list import runs")
	}
	defer rows.Close()

	var runs []model.ImportRun
	for rows.Next() {
		var r model.ImportRun
		if err := rows.Scan(&r.ID, &r.SourceKind, &r.Filename, &r.Fingerprint,
			&r.AccountID, &r.CreditCardID, &r.TotalRows, &r.ImportedRows,
			&r.SkippedRows, &r.ErrorRows, &r.Status, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list import runs iterate")
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions
		 (id, import_run_id, source_kind, transaction_date, description, amount, direction,
		  running_balance, installment_info, card_holder, account_id, credit_card_id,
		  person_id, category_id, subcategory_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		txn.ID, txn.ImportRunID, string(txn.SourceKind), txn.Timestamp, txn.Description,
		txn.Amount, string(txn.Direction), nullDecimal(txn.RunningBalance),
		txn.InstallmentInfo, txn.CardHolder, txn.AccountID, txn.CreditCardID,
		txn.PersonID, txn.CategoryID, txn.SubcategoryID, txn.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrap(ErrDuplicate, "postgres: transaction row")
		}
		return eris.Wrap(err, "postgres: insert transaction")
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, filter TxFilter) ([]model.Transaction, error) {
	query := `SELECT id, import_run_id, source_kind, transaction_date, description, amount, direction,
	                 running_balance, installment_info, card_holder, account_id, credit_card_id,
	                 person_id, category_id, subcategory_id, created_at
	          FROM transactions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SourceKind != "" {
		query += fmt.Sprintf(` AND source_kind = $%d`, argIdx)
		args = append(args, string(filter.SourceKind))
		argIdx++
	}
	if filter.PersonID != 0 {
		query += fmt.Sprintf(` AND person_id = $%d`, argIdx)
		args = append(args, filter.PersonID)
		argIdx++
	}
	if filter.CategoryID != 0 {
		query += fmt.Sprintf(` AND category_id = $%d`, argIdx)
		args = append(args, filter.CategoryID)
		argIdx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(` AND transaction_date >= $%d`, argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(` AND transaction_date < $%d`, argIdx)
		args = append(args, filter.To)
		argIdx++
	}
	query += ` ORDER BY transaction_date DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transactions")
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, eris.Wrap(rows.Err(), "postgres: list transactions iterate")
}

func scanTransaction(rows pgx.Rows) (model.Transaction, error) {
	var t model.Transaction
	var balance decimal.NullDecimal
	if err := rows.Scan(&t.ID, &t.ImportRunID, &t.SourceKind, &t.Timestamp, &t.Description,
		&t.Amount, &t.Direction, &balance, &t.InstallmentInfo, &t.CardHolder,
		&t.AccountID, &t.CreditCardID, &t.PersonID, &t.CategoryID, &t.SubcategoryID,
		&t.CreatedAt); err != nil {
		return model.Transaction{}, eris.Wrap(err, "postgres: scan transaction")
	}
	if balance.Valid {
		t.RunningBalance = &balance.Decimal
	}
	return t, nil
}

func (s *PostgresStore) MonthlySpending(ctx context.Context, year int, month time.Month) ([]model.CategorySpend, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(c.name, 'Uncategorized'), COALESCE(sc.name, ''), SUM(t.amount), COUNT(*)
		 FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id
		 LEFT JOIN subcategories sc ON sc.id = t.subcategory_id
		 WHERE t.direction = 'expense' AND t.transaction_date >= $1 AND t.transaction_date < $2
		 GROUP BY 1, 2
		 ORDER BY 3 DESC`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: monthly spending")
	}
	defer rows.Close()

	var out []model.CategorySpend
	for rows.Next() {
		var cs model.CategorySpend
		if err := rows.Scan(&cs.Category, &cs.Subcategory, &cs.Total, &cs.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan spending row")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: monthly spending iterate")
}

func (s *PostgresStore) FindPersonByName(ctx context.Context, name string) (*model.Person, error) {
	var p model.Person
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM persons WHERE lower(name) = lower($1)`,
		name,
	).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find person")
	}
	return &p, nil
}

func (s *PostgresStore) FindCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM categories WHERE lower(name) = lower($1)`,
		name,
	).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find category")
	}
	return &c, nil
}

func (s *PostgresStore) FindSubcategoryByName(ctx context.Context, categoryID int64, name string) (*model.Subcategory, error) {
	var sc model.Subcategory
	err := s.pool.QueryRow(ctx,
		`SELECT id, category_id, name FROM subcategories WHERE category_id = $1 AND lower(name) = lower($2)`,
		categoryID, name,
	).Scan(&sc.ID, &sc.CategoryID, &sc.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find subcategory")
	}
	return &sc, nil
}

func (s *PostgresStore) EnsurePerson(ctx context.Context, name string) (*model.Person, error) {
	var p model.Person
	err := s.pool.QueryRow(ctx,
		`INSERT INTO persons (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name`,
		name,
	).Scan(&p.ID, &p.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure person %s", name)
	}
	return &p, nil
}

func (s *PostgresStore) EnsureCategory(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	err := s.pool.QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name`,
		name,
	).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure category %s", name)
	}
	return &c, nil
}

func (s *PostgresStore) EnsureSubcategory(ctx context.Context, categoryID int64, name string) (*model.Subcategory, error) {
	var sc model.Subcategory
	err := s.pool.QueryRow(ctx,
		`INSERT INTO subcategories (category_id, name) VALUES ($1, $2)
		 ON CONFLICT (category_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, category_id, name`,
		categoryID, name,
	).Scan(&sc.ID, &sc.CategoryID, &sc.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure subcategory %s", name)
	}
	return &sc, nil
}

func (s *PostgresStore) EnsureAccount(ctx context.Context, name string) (*model.Account, error) {
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name`,
		name,
	).Scan(&a.ID, &a.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure account %s", name)
	}
	return &a, nil
}

func (s *PostgresStore) EnsureCreditCard(ctx context.Context, name string) (*model.CreditCard, error) {
	var c model.CreditCard
	err := s.pool.QueryRow(ctx,
		`INSERT INTO credit_cards (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name`,
		name,
	).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure credit card %s", name)
	}
	return &c, nil
}

// nullDecimal adapts an optional decimal to a driver-friendly value.
func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
