// Package storage is the transactional engine underneath the store.
//
// An Engine hosts named, versioned stores. Each store holds collections of
// records keyed by a declared key field. Opening a store at a version
// higher than its persisted version runs an upgrade callback inside a
// single transaction; only there may collections be created or dropped.
// Reads and writes happen in transactions scoped to one collection.
//
// # SQLite Engine
//
// SQLite keeps one database file per store in a directory:
//
//   - PRAGMA user_version: the store version (monotonic)
//   - collections: name and key path of every live collection
//   - entities: canonical JSON records with a canonical key column
//
// The catalog tables are versioned separately by embedded golang-migrate
// migrations, so engine-internal layout changes never disturb the user
// version.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Dropping a collection cascades to its entities
//
// # Blocking
//
// Like a browser object store, an upgrade cannot proceed while other
// handles to the same store are open. Open reports ErrBlocked instead of
// waiting; callers close stale handles and retry.
package storage
