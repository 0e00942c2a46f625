// Package sqlrepo implements the repositories on database/sql. One set of
// queries serves SQLite (modernc.org/sqlite) and PostgreSQL (pgx); '?'
// placeholders are rebound per dialect.
package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/dbx"
	"github.com/dmitrijs2005/nutkeeper/internal/migrations"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

var driverNames = map[dbx.Dialect]string{
	dbx.SQLite:   "sqlite",
	dbx.Postgres: "pgx",
}

var gooseDialects = map[dbx.Dialect]string{
	dbx.SQLite:   "sqlite3",
	dbx.Postgres: "pgx",
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations for dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	name, ok := gooseDialects[dialect]
	if !ok {
		return fmt.Errorf("unsupported dialect %q", dialect)
	}
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(name); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, string(dialect)); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Open connects to dsn, migrates the schema and returns a ready Store.
func Open(ctx context.Context, dialect dbx.Dialect, dsn string) (*Store, error) {
	driver, ok := driverNames[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == dbx.SQLite {
		// one writer; avoids SQLITE_BUSY between pollers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, dialect), nil
}

// handle carries the connection a repository runs on. db is nil when q is
// a transaction.
type handle struct {
	db      *sql.DB
	q       dbx.DBTX
	dialect dbx.Dialect
}

func (h handle) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return h.q.ExecContext(ctx, h.dialect.Rebind(query), args...)
}

func (h handle) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.q.QueryContext(ctx, h.dialect.Rebind(query), args...)
}

func (h handle) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return h.q.QueryRowContext(ctx, h.dialect.Rebind(query), args...)
}

// atomic runs fn in a transaction unless h already is one.
func (h handle) atomic(ctx context.Context, fn func(ctx context.Context, h handle) error) error {
	if h.db == nil {
		return fn(ctx, h)
	}
	return dbx.WithTx(ctx, h.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, handle{q: tx, dialect: h.dialect})
	})
}

// Store implements repositories.Store.
type Store struct {
	handle
}

// New wraps an already migrated database.
func New(db *sql.DB, dialect dbx.Dialect) *Store {
	return &Store{handle: handle{db: db, q: db, dialect: dialect}}
}

func (s *Store) Proofs() repositories.ProofRepository { return &ProofRepository{s.handle} }

func (s *Store) Transactions() repositories.TransactionRepository {
	return &TransactionRepository{s.handle}
}

func (s *Store) PendingTokens() repositories.PendingTokenRepository {
	return &PendingTokenRepository{s.handle}
}

func (s *Store) Quotes() repositories.QuoteRepository      { return &QuoteRepository{s.handle} }
func (s *Store) Settings() repositories.SettingsRepository { return &SettingsRepository{s.handle} }
func (s *Store) Keys() repositories.KeyRepository          { return &KeyRepository{s.handle} }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, s repositories.Store) error) error {
	return s.atomic(ctx, func(ctx context.Context, h handle) error {
		return fn(ctx, &Store{handle: h})
	})
}

var wipeOrder = []string{"proofs", "transactions", "pending_tokens", "mint_quotes", "settings", "p2pk_keys"}

func (s *Store) Wipe(ctx context.Context) error {
	return s.atomic(ctx, func(ctx context.Context, h handle) error {
		for _, table := range wipeOrder {
			if _, err := h.exec(ctx, "DELETE FROM "+table); err != nil {
				return classify("wipe "+table, err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
