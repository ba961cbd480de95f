package ops

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/changestore/internal/dberr"
	"github.com/roach88/changestore/internal/future"
	"github.com/roach88/changestore/internal/record"
	"github.com/roach88/changestore/internal/storage"
)

// Conn is the lease an operation consumes. *connection.Conn satisfies it.
type Conn interface {
	ID() string
	Name() string
	Begin(ctx context.Context, collection string, mode storage.Mode) (storage.Tx, error)
	Close() error
}

// Executor runs operations and traces them.
//
// Thread-safety: an Executor is stateless apart from its logger and safe
// for concurrent use.
type Executor struct {
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get reads the record stored under key. The Future resolves to nil when
// the key is absent.
func (e *Executor) Get(ctx context.Context, conn Conn, collection string, key any) *future.Future[record.Record] {
	return run(ctx, e, conn, "get", collection, storage.ReadOnly,
		func(ctx context.Context, tx storage.Tx) (record.Record, error) {
			r, ok, err := tx.Get(ctx, key)
			if err != nil || !ok {
				return nil, err
			}
			return r, nil
		})
}

// GetAll reads every record of collection in insertion order.
func (e *Executor) GetAll(ctx context.Context, conn Conn, collection string) *future.Future[[]record.Record] {
	return run(ctx, e, conn, "getAll", collection, storage.ReadOnly,
		func(ctx context.Context, tx storage.Tx) ([]record.Record, error) {
			return tx.GetAll(ctx)
		})
}

// Put inserts or overwrites value and resolves to the stored record.
func (e *Executor) Put(ctx context.Context, conn Conn, collection string, value record.Record) *future.Future[record.Record] {
	return run(ctx, e, conn, "put", collection, storage.ReadWrite,
		func(ctx context.Context, tx storage.Tx) (record.Record, error) {
			return tx.Put(ctx, value)
		})
}

// Delete removes the record under key and resolves to key. Deleting an
// absent key succeeds.
func (e *Executor) Delete(ctx context.Context, conn Conn, collection string, key any) *future.Future[any] {
	return run(ctx, e, conn, "delete", collection, storage.ReadWrite,
		func(ctx context.Context, tx storage.Tx) (any, error) {
			if err := tx.Delete(ctx, key); err != nil {
				return nil, err
			}
			return key, nil
		})
}

// run executes fn in a transaction on conn and releases conn before the
// returned Future settles.
func run[T any](
	ctx context.Context,
	e *Executor,
	conn Conn,
	op, collection string,
	mode storage.Mode,
	fn func(context.Context, storage.Tx) (T, error),
) *future.Future[T] {
	ctx = context.WithoutCancel(ctx)

	return future.Go(func() (T, error) {
		v, err := inTx(ctx, conn, collection, mode, fn)

		if closeErr := conn.Close(); closeErr != nil {
			e.logger.Warn("connection close failed",
				"conn", conn.ID(), "store", conn.Name(), "op", op, "error", closeErr)
		}

		if err != nil {
			e.logger.Debug("transaction failed",
				"conn", conn.ID(), "store", conn.Name(), "collection", collection, "op", op, "error", err)
			var zero T
			return zero, dberr.TransactionFailed(conn.Name(), collection, op, err)
		}

		e.logger.Debug("transaction committed",
			"conn", conn.ID(), "store", conn.Name(), "collection", collection, "op", op, "mode", mode)
		return v, nil
	})
}

// inTx begins, runs and commits one transaction, rolling back on failure.
func inTx[T any](
	ctx context.Context,
	conn Conn,
	collection string,
	mode storage.Mode,
	fn func(context.Context, storage.Tx) (T, error),
) (T, error) {
	var zero T

	tx, err := conn.Begin(ctx, collection, mode)
	if err != nil {
		return zero, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	v, err := fn(ctx, tx)
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}
