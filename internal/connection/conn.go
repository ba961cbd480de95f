package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/changestore/internal/storage"
)

// shared is one physical engine handle and the number of leases on it.
type shared struct {
	handle storage.Handle
	id     string

	mu   sync.Mutex
	refs int
}

// release drops one lease and closes the handle when none remain.
func (s *shared) release() error {
	s.mu.Lock()
	s.refs--
	last := s.refs == 0
	s.mu.Unlock()

	if last {
		return s.handle.Close()
	}
	return nil
}

// Conn is one caller's lease on an open store. Close it exactly when the
// caller is done; closing again is a no-op.
type Conn struct {
	shared    *shared
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// ID identifies the physical connection. Leases from one shared open carry
// the same ID.
func (c *Conn) ID() string { return c.shared.id }

// Name returns the store name.
func (c *Conn) Name() string { return c.shared.handle.Name() }

// Version returns the version the store was opened at.
func (c *Conn) Version() int { return c.shared.handle.Version() }

// CollectionNames lists the live collections, sorted.
func (c *Conn) CollectionNames() []string { return c.shared.handle.CollectionNames() }

// Begin starts a transaction scoped to collection.
func (c *Conn) Begin(ctx context.Context, collection string, mode storage.Mode) (storage.Tx, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("connection %s: %w", c.ID(), storage.ErrClosed)
	}
	return c.shared.handle.Begin(ctx, collection, mode)
}

// Close releases the lease.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.shared.release()
	})
	return c.closeErr
}
