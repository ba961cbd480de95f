package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var catalogMigrations embed.FS

// catalogMigrationsTable tracks catalog migrations, kept apart from
// PRAGMA user_version which belongs to the store's callers.
const catalogMigrationsTable = "catalog_migrations"

// SQLite is an Engine keeping one SQLite database per store under a
// directory.
//
// Thread-safety: all methods are safe for concurrent use. Opens and
// deletes are serialized by the engine; transactions on a store are
// serialized by its single pooled connection.
type SQLite struct {
	dir string

	mu     sync.Mutex
	stores map[string]*sqliteStore
	closed bool
}

// sqliteStore is the shared state of one database file.
type sqliteStore struct {
	name string
	path string
	db   *sql.DB
	open int // handles currently open
}

// NewSQLite creates an engine rooted at dir, creating the directory if
// needed.
func NewSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &SQLite{
		dir:    dir,
		stores: make(map[string]*sqliteStore),
	}, nil
}

// Dir returns the directory holding the store files.
func (e *SQLite) Dir() string {
	return e.dir
}

// Path returns the database file backing the named store.
func (e *SQLite) Path(name string) string {
	return filepath.Join(e.dir, name+".db")
}

// Open implements Engine.
func (e *SQLite) Open(ctx context.Context, name string, version int, upgrade UpgradeFunc) (Handle, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if version < 1 {
		return nil, fmt.Errorf("%w: version %d must be at least 1", ErrVersion, version)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("open %q: engine %w", name, ErrClosed)
	}

	st, err := e.storeLocked(name)
	if err != nil {
		return nil, err
	}

	current, err := userVersion(ctx, st.db)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	switch {
	case version < current:
		return nil, fmt.Errorf("%w: requested version %d of %q is below persisted version %d",
			ErrVersion, version, name, current)
	case version > current:
		if st.open > 0 {
			return nil, fmt.Errorf("%w: %d open connection(s) to %q prevent upgrade to version %d",
				ErrBlocked, st.open, name, version)
		}
		if err := runUpgrade(ctx, st.db, current, version, upgrade); err != nil {
			return nil, fmt.Errorf("open %q: %w", name, err)
		}
	}

	keyPaths, err := loadCollections(ctx, st.db)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	st.open++
	return &sqliteHandle{
		engine:   e,
		store:    st,
		version:  version,
		keyPaths: keyPaths,
	}, nil
}

// DeleteStore implements Engine.
func (e *SQLite) DeleteStore(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if st, ok := e.stores[name]; ok {
		if st.open > 0 {
			return fmt.Errorf("%w: %d open connection(s) to %q prevent deletion", ErrBlocked, st.open, name)
		}
		if err := st.db.Close(); err != nil {
			return fmt.Errorf("delete %q: close database: %w", name, err)
		}
		delete(e.stores, name)
	}

	path := e.Path(name)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete %q: %w", name, err)
		}
	}
	return nil
}

// Close implements Engine. Handles still open become unusable.
func (e *SQLite) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for name, st := range e.stores {
		if err := st.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
		delete(e.stores, name)
	}
	return errors.Join(errs...)
}

// OpenCount reports how many handles to the named store are open.
func (e *SQLite) OpenCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.stores[name]; ok {
		return st.open
	}
	return 0
}

// storeLocked returns the pooled database for name, opening it on first
// use. Caller must hold e.mu.
func (e *SQLite) storeLocked(name string) (*sqliteStore, error) {
	if st, ok := e.stores[name]; ok {
		return st, nil
	}

	path := e.Path(name)
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	st := &sqliteStore{name: name, path: path, db: db}
	e.stores[name] = st
	return st, nil
}

// openDB opens a database file, applies pragmas and catalog migrations.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applyCatalog(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply catalog: %w", err)
	}

	return db, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applyCatalog runs the embedded catalog migrations. It is idempotent.
//
// The migrate instance is deliberately not closed: closing it would close
// the pooled *sql.DB it was handed.
func applyCatalog(db *sql.DB) error {
	src, err := iofs.New(catalogMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("load catalog migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{
		MigrationsTable: catalogMigrationsTable,
	})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("instantiate catalog migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run catalog migrations: %w", err)
	}
	return nil
}

// userVersion reads the persisted store version.
func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// runUpgrade runs upgrade and bumps user_version in one transaction.
func runUpgrade(ctx context.Context, db *sql.DB, oldVersion, newVersion int, upgrade UpgradeFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upgrade: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if upgrade != nil {
		u := &sqliteUpgrader{tx: tx}
		err := upgrade(ctx, u, oldVersion, newVersion)
		u.done = true
		if err != nil {
			return fmt.Errorf("upgrade %d -> %d: %w", oldVersion, newVersion, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", newVersion)); err != nil {
		return fmt.Errorf("upgrade: set user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upgrade: commit: %w", err)
	}
	return nil
}

// loadCollections returns live collection names mapped to key paths.
func loadCollections(ctx context.Context, q queryer) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, key_path FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	keyPaths := make(map[string]string)
	for rows.Next() {
		var name, keyPath string
		if err := rows.Scan(&name, &keyPath); err != nil {
			return nil, fmt.Errorf("list collections: scan: %w", err)
		}
		keyPaths[name] = keyPath
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return keyPaths, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}
