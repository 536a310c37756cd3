package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// driverName is go-sqlite3 with ulower, a Unicode-aware LOWER, registered on
// every connection. SQLite's own LOWER folds ASCII only.
const driverName = "sqlite3_store"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("ulower", strings.ToLower, true)
		},
	})
}

// Config describes the SQLite database to open.
type Config struct {
	// Path of the database file. Its directory is created when missing.
	Path string
	// Migrations holds golang-migrate files (NNN_name.up.sql) at its root.
	// Nil skips migration.
	Migrations fs.FS
}

// Database owns the connection pool. Writers take the SQLite write lock when
// their transaction begins, so read-check-write sequences inside InTx are
// serialized across connections and processes.
type Database struct {
	db *sqlx.DB
}

// Open connects to the database at cfg.Path and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Database, error) {
	if cfg.Path == "" {
		return nil, errors.New("store: database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", cfg.Path)
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	if cfg.Migrations != nil {
		if err := migrateUp(db, cfg.Migrations); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Database{db: db}, nil
}

func migrateUp(db *sqlx.DB, migrations fs.FS) error {
	src, err := iofs.New(migrations, ".")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	// m.Close would close db as well, so the migrator is simply dropped.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// DB exposes the pool for reads outside a transaction.
func (d *Database) DB() *sqlx.DB { return d.db }

// InTx runs fn in a transaction that commits when fn returns nil and rolls
// back otherwise. Errors come back classified as Failures.
func (d *Database) InTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
