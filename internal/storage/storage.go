package storage

import (
	"context"

	"github.com/roach88/changestore/internal/record"
)

// Mode selects a transaction's access mode.
type Mode int

const (
	// ReadOnly transactions reject Put and Delete.
	ReadOnly Mode = iota
	// ReadWrite transactions may mutate the collection.
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// UpgradeFunc runs inside the upgrade transaction when a store is opened
// at a version above its persisted version. Returning an error aborts the
// upgrade and fails the open; the store keeps its old version.
type UpgradeFunc func(ctx context.Context, u Upgrader, oldVersion, newVersion int) error

// Engine opens and deletes stores.
type Engine interface {
	// Open opens the named store at version, upgrading it first when the
	// persisted version is lower. It fails with ErrVersion when the
	// persisted version is higher and with ErrBlocked when an upgrade is
	// needed while other handles are open.
	Open(ctx context.Context, name string, version int, upgrade UpgradeFunc) (Handle, error)

	// DeleteStore removes a store and all its data. Deleting a store that
	// does not exist succeeds. Fails with ErrBlocked while handles are open.
	DeleteStore(ctx context.Context, name string) error

	// Close releases every store held by the engine.
	Close() error
}

// Handle is an open connection to one store.
type Handle interface {
	Name() string
	Version() int

	// CollectionNames lists the live collections, sorted, as of the open.
	CollectionNames() []string

	// Begin starts a transaction scoped to one collection.
	Begin(ctx context.Context, collection string, mode Mode) (Tx, error)

	// Close releases the handle. Closing twice is a no-op.
	Close() error
}

// Upgrader is the store as seen from an UpgradeFunc.
type Upgrader interface {
	CollectionNames(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name, keyPath string) error
	DropCollection(ctx context.Context, name string) error
}

// Tx is a transaction on a single collection. Exactly one of Commit or
// Rollback ends it; Rollback after Commit is a no-op.
type Tx interface {
	// Get returns the record stored under key, or false when absent.
	Get(ctx context.Context, key any) (record.Record, bool, error)

	// GetAll returns every record in insertion order. Overwriting a record
	// keeps its original position.
	GetAll(ctx context.Context) ([]record.Record, error)

	// Put inserts or overwrites the record keyed by the collection's key
	// field and returns the stored value.
	Put(ctx context.Context, r record.Record) (record.Record, error)

	// Delete removes the record under key. Deleting an absent key succeeds.
	Delete(ctx context.Context, key any) error

	Commit() error
	Rollback() error
}
