package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/changestore/internal/record"
)

// sqliteHandle is one open connection to a store. The collection set is a
// snapshot taken at open; upgrades cannot run while the handle is open, so
// the snapshot stays accurate for its lifetime.
type sqliteHandle struct {
	engine   *SQLite
	store    *sqliteStore
	version  int
	keyPaths map[string]string

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (h *sqliteHandle) Name() string { return h.store.name }

func (h *sqliteHandle) Version() int { return h.version }

func (h *sqliteHandle) CollectionNames() []string {
	names := make([]string, 0, len(h.keyPaths))
	for name := range h.keyPaths {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (h *sqliteHandle) Begin(ctx context.Context, collection string, mode Mode) (Tx, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("begin %q: handle %w", collection, ErrClosed)
	}

	keyPath, ok := h.keyPaths[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %q in store %q", ErrNoCollection, collection, h.store.name)
	}

	tx, err := h.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %q: %w", collection, err)
	}

	return &sqliteTx{
		tx:         tx,
		collection: collection,
		keyPath:    keyPath,
		mode:       mode,
	}, nil
}

func (h *sqliteHandle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		h.engine.mu.Lock()
		h.store.open--
		h.engine.mu.Unlock()
	})
	return nil
}

// sqliteTx is a transaction scoped to one collection.
type sqliteTx struct {
	tx         *sql.Tx
	collection string
	keyPath    string
	mode       Mode
}

func (t *sqliteTx) Get(ctx context.Context, key any) (record.Record, bool, error) {
	encoded, err := record.EncodeKey(key)
	if err != nil {
		return nil, false, fmt.Errorf("get from %q: %w", t.collection, err)
	}

	var value string
	err = t.tx.QueryRowContext(ctx, `
		SELECT value FROM entities
		WHERE collection = ? AND key = ?
	`, t.collection, encoded).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get from %q: %w", t.collection, err)
	}

	r, err := record.Unmarshal([]byte(value))
	if err != nil {
		return nil, false, fmt.Errorf("get from %q: %w", t.collection, err)
	}
	return r, true, nil
}

func (t *sqliteTx) GetAll(ctx context.Context) ([]record.Record, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT value FROM entities
		WHERE collection = ?
		ORDER BY id ASC
	`, t.collection)
	if err != nil {
		return nil, fmt.Errorf("get all from %q: %w", t.collection, err)
	}
	defer rows.Close()

	records := []record.Record{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("get all from %q: scan: %w", t.collection, err)
		}
		r, err := record.Unmarshal([]byte(value))
		if err != nil {
			return nil, fmt.Errorf("get all from %q: %w", t.collection, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get all from %q: %w", t.collection, err)
	}
	return records, nil
}

// Put upserts by key and returns the record decoded from the stored
// bytes. ON CONFLICT DO UPDATE keeps the row id, so an overwritten record
// keeps its insertion position.
func (t *sqliteTx) Put(ctx context.Context, r record.Record) (record.Record, error) {
	if t.mode != ReadWrite {
		return nil, fmt.Errorf("put into %q: %w", t.collection, ErrReadOnly)
	}

	_, encoded, err := record.KeyOf(r, t.keyPath)
	if err != nil {
		return nil, fmt.Errorf("put into %q: %w", t.collection, err)
	}

	data, err := record.MarshalExact(r)
	if err != nil {
		return nil, fmt.Errorf("put into %q: %w", t.collection, err)
	}
	stored, err := record.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("put into %q: %w", t.collection, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO entities (collection, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value
	`, t.collection, encoded, string(data))
	if err != nil {
		return nil, fmt.Errorf("put into %q: %w", t.collection, err)
	}

	return stored, nil
}

func (t *sqliteTx) Delete(ctx context.Context, key any) error {
	if t.mode != ReadWrite {
		return fmt.Errorf("delete from %q: %w", t.collection, ErrReadOnly)
	}

	encoded, err := record.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("delete from %q: %w", t.collection, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		DELETE FROM entities
		WHERE collection = ? AND key = ?
	`, t.collection, encoded)
	if err != nil {
		return fmt.Errorf("delete from %q: %w", t.collection, err)
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit %q: %w", t.collection, err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback %q: %w", t.collection, err)
	}
	return nil
}

// sqliteUpgrader exposes collection DDL for the duration of an upgrade.
type sqliteUpgrader struct {
	tx   *sql.Tx
	done bool
}

func (u *sqliteUpgrader) CollectionNames(ctx context.Context) ([]string, error) {
	if u.done {
		return nil, fmt.Errorf("upgrade %w", ErrClosed)
	}
	keyPaths, err := loadCollections(ctx, u.tx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keyPaths))
	for name := range keyPaths {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (u *sqliteUpgrader) CreateCollection(ctx context.Context, name, keyPath string) error {
	if u.done {
		return fmt.Errorf("upgrade %w", ErrClosed)
	}
	if name == "" || keyPath == "" {
		return fmt.Errorf("create collection: name and key path are required")
	}

	var exists int
	err := u.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %q", ErrCollectionExists, name)
	}

	if _, err := u.tx.ExecContext(ctx, `
		INSERT INTO collections (name, key_path) VALUES (?, ?)
	`, name, keyPath); err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
	return nil
}

// DropCollection removes the collection and its entities. The explicit
// entity delete keeps the drop correct even if foreign keys are disabled
// on the connection.
func (u *sqliteUpgrader) DropCollection(ctx context.Context, name string) error {
	if u.done {
		return fmt.Errorf("upgrade %w", ErrClosed)
	}

	if _, err := u.tx.ExecContext(ctx, `DELETE FROM entities WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("drop collection %q: %w", name, err)
	}

	result, err := u.tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("drop collection %q: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("drop collection %q: rows affected: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNoCollection, name)
	}
	return nil
}
