package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Library is the circulation engine: catalog store, member store, borrowing
// lifecycle and fine ledger over one injected SQLite handle. There is no
// package-level connection; every Library owns its own.
type Library struct {
	db  *sql.DB
	cfg Config
}

// Open opens (or creates) the database at cfg.DBPath and applies schema
// migrations.
func Open(cfg Config) (*Library, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Enable busy_timeout and foreign keys. Immediate transactions make
	// concurrent writers queue on busy_timeout instead of failing on a
	// deferred-to-write lock upgrade.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", cfg.DBPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Library{db: db, cfg: cfg}, nil
}

// Close closes the underlying database.
func (l *Library) Close() error { return l.db.Close() }

// Config returns the settings the library was opened with.
func (l *Library) Config() Config { return l.cfg }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT UNIQUE NOT NULL,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'student',
            full_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            year INTEGER NOT NULL DEFAULT 0,
            isbn TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            location TEXT NOT NULL DEFAULT '',
            quantity INTEGER NOT NULL DEFAULT 1,
            available INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS members (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id),
            student_id TEXT UNIQUE NOT NULL,
            name TEXT NOT NULL,
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            department TEXT NOT NULL DEFAULT '',
            year_of_study INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'active',
            total_fines INTEGER NOT NULL DEFAULT 0,
            paid_fines INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS borrowings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id),
            member_id INTEGER NOT NULL REFERENCES members(id),
            borrowed_by INTEGER NOT NULL REFERENCES users(id),
            borrow_date DATETIME NOT NULL,
            due_date DATETIME NOT NULL,
            return_date DATETIME,
            status TEXT NOT NULL DEFAULT 'borrowed',
            fine_amount INTEGER NOT NULL DEFAULT 0,
            fine_paid BOOLEAN NOT NULL DEFAULT 0,
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS fine_transactions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            borrowing_id INTEGER NOT NULL REFERENCES borrowings(id),
            member_id INTEGER NOT NULL REFERENCES members(id),
            amount INTEGER NOT NULL,
            transaction_type TEXT NOT NULL,
            processed_by INTEGER NOT NULL REFERENCES users(id),
            payment_method TEXT NOT NULL DEFAULT '',
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_borrowings_member_status ON borrowings(member_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_borrowings_book_status ON borrowings(book_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_fine_tx_member ON fine_transactions(member_id);`,
		`CREATE INDEX IF NOT EXISTS idx_fine_tx_borrowing ON fine_transactions(borrowing_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// dbtx is satisfied by *sql.DB and *sql.Tx, so queries can run standalone or
// inside a caller's transaction.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction: committed if fn returns nil, rolled
// back otherwise. Partial state never survives an abandoned operation.
func (l *Library) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const (
	txAttempts = 3
	txBackoff  = 25 * time.Millisecond
)

// withTxRetry is withTx with bounded retries for transient lock contention.
// Domain errors are surfaced on the first attempt; only SQLITE_BUSY and
// SQLITE_LOCKED are retried.
func (l *Library) withTxRetry(fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = l.withTx(fn)
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt < txAttempts {
			time.Sleep(txBackoff * time.Duration(attempt))
		}
	}
	return fmt.Errorf("%w: %v", ErrBusy, err)
}

func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}
