package storage

import (
	"errors"

	"github.com/roach88/changestore/internal/record"
)

var (
	// ErrBlocked means an upgrade is waiting on other open handles.
	ErrBlocked = errors.New("store blocked by open connections")

	// ErrVersion means the requested version is invalid or lower than the
	// persisted version.
	ErrVersion = errors.New("invalid store version")

	// ErrNoCollection means the collection does not exist in the store.
	ErrNoCollection = errors.New("collection not found")

	// ErrCollectionExists means an upgrade tried to create a live collection.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrReadOnly means a write was attempted in a read-only transaction.
	ErrReadOnly = errors.New("transaction is read-only")

	// ErrClosed means the engine, handle, transaction or upgrader is no
	// longer usable.
	ErrClosed = errors.New("closed")

	// ErrInvalidName means a store name cannot be used as a file name.
	ErrInvalidName = errors.New("invalid store name")

	// ErrInvalidKey is the record package's key error, re-exported so
	// callers can match storage failures without importing record.
	ErrInvalidKey = record.ErrInvalidKey
)
