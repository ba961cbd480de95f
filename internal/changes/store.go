package changes

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/changestore/internal/connection"
	"github.com/roach88/changestore/internal/dberr"
	"github.com/roach88/changestore/internal/future"
	"github.com/roach88/changestore/internal/ops"
	"github.com/roach88/changestore/internal/record"
	"github.com/roach88/changestore/internal/storage"
)

// Store runs change-tracked operations against one configured store.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	manager *connection.Manager
	exec    *ops.Executor
	logger  *slog.Logger
}

type options struct {
	logger *slog.Logger
	ids    connection.IDGenerator
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets the logger used by the store and its components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithIDGenerator sets the connection ID generator.
func WithIDGenerator(g connection.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// New validates cfg and returns a Store over engine. The configuration is
// copied and fixed for the Store's lifetime.
func New(engine storage.Engine, cfg connection.Config, opts ...Option) (*Store, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	mopts := []connection.Option{connection.WithLogger(o.logger)}
	if o.ids != nil {
		mopts = append(mopts, connection.WithIDGenerator(o.ids))
	}

	m, err := connection.NewManager(engine, cfg, mopts...)
	if err != nil {
		return nil, err
	}

	return &Store{
		manager: m,
		exec:    ops.New(ops.WithLogger(o.logger)),
		logger:  o.logger,
	}, nil
}

// Config returns the store configuration.
func (s *Store) Config() connection.Config {
	return s.manager.Config()
}

// Manager returns the connection manager behind the store.
func (s *Store) Manager() *connection.Manager {
	return s.manager
}

func (s *Store) storeName() string {
	return s.manager.Config().StoreName
}

// open acquires a lease, always waiting for the open to settle so a lease
// is never leaked by an abandoned caller.
func (s *Store) open(ctx context.Context) (*connection.Conn, error) {
	return s.manager.Open(ctx).Wait()
}

// AddItem stores value tagged Added, overwriting any record with the same
// key. Tag fields already present on value are discarded.
func (s *Store) AddItem(ctx context.Context, collection string, value record.Record) *future.Future[Entity] {
	if value == nil {
		return future.Fail[Entity](dberr.InvalidArgument(s.storeName(), collection, "add: value is required", nil))
	}
	entity := Entity{Value: value.Without(FieldChangeType, FieldOriginalValue), ChangeType: Added}

	return future.Go(func() (Entity, error) {
		return s.put(ctx, collection, entity)
	})
}

// AddItems adds every value concurrently. The result preserves input
// order; any failure fails the batch with BATCH_ITEM_FAILED.
func (s *Store) AddItems(ctx context.Context, collection string, values []record.Record) *future.Future[[]Entity] {
	return batch(ctx, s, "add", collection, values, func(v record.Record) *future.Future[Entity] {
		return s.AddItem(ctx, collection, v)
	})
}

// UpdateItem stores u.Value tagged Updated together with u.OriginalValue.
// A missing key is created rather than rejected.
func (s *Store) UpdateItem(ctx context.Context, collection string, u Update) *future.Future[Entity] {
	switch {
	case u.Value == nil:
		return future.Fail[Entity](dberr.InvalidArgument(s.storeName(), collection, "update: value is required", nil))
	case u.OriginalValue == nil:
		return future.Fail[Entity](dberr.InvalidArgument(s.storeName(), collection, "update", ErrMissingOriginal))
	}
	entity := Entity{
		Value:         u.Value.Without(FieldChangeType, FieldOriginalValue),
		ChangeType:    Updated,
		OriginalValue: u.OriginalValue.Clone(),
	}

	return future.Go(func() (Entity, error) {
		return s.put(ctx, collection, entity)
	})
}

// UpdateItems updates every item concurrently under the same join rule as
// AddItems.
func (s *Store) UpdateItems(ctx context.Context, collection string, updates []Update) *future.Future[[]Entity] {
	return batch(ctx, s, "update", collection, updates, func(u Update) *future.Future[Entity] {
		return s.UpdateItem(ctx, collection, u)
	})
}

func (s *Store) put(ctx context.Context, collection string, e Entity) (Entity, error) {
	conn, err := s.open(ctx)
	if err != nil {
		return Entity{}, err
	}
	stored, err := s.exec.Put(ctx, conn, collection, e.Flatten()).Wait()
	if err != nil {
		return Entity{}, err
	}
	return ParseEntity(stored)
}

// GetItem reads the entity under key. The Future resolves to nil when the
// key is absent.
func (s *Store) GetItem(ctx context.Context, collection string, key any) *future.Future[*Entity] {
	return future.Go(func() (*Entity, error) {
		conn, err := s.open(ctx)
		if err != nil {
			return nil, err
		}
		r, err := s.exec.Get(ctx, conn, collection, key).Wait()
		if err != nil || r == nil {
			return nil, err
		}
		e, err := ParseEntity(r)
		if err != nil {
			return nil, dberr.TransactionFailed(s.storeName(), collection, "get", err)
		}
		return &e, nil
	})
}

// GetAllData reads every entity of collection in insertion order.
func (s *Store) GetAllData(ctx context.Context, collection string) *future.Future[[]Entity] {
	return future.Go(func() ([]Entity, error) {
		return s.getAll(ctx, collection)
	})
}

// Changes reads the entities of collection last written with kind, in
// insertion order.
func (s *Store) Changes(ctx context.Context, collection string, kind ChangeType) *future.Future[[]Entity] {
	if !kind.Valid() {
		return future.Fail[[]Entity](dberr.InvalidArgument(s.storeName(), collection,
			"changes: unknown change type "+string(kind), nil))
	}
	return future.Go(func() ([]Entity, error) {
		all, err := s.getAll(ctx, collection)
		if err != nil {
			return nil, err
		}
		out := []Entity{}
		for _, e := range all {
			if e.ChangeType == kind {
				out = append(out, e)
			}
		}
		return out, nil
	})
}

func (s *Store) getAll(ctx context.Context, collection string) ([]Entity, error) {
	conn, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.exec.GetAll(ctx, conn, collection).Wait()
	if err != nil {
		return nil, err
	}

	out := make([]Entity, 0, len(records))
	for _, r := range records {
		e, err := ParseEntity(r)
		if err != nil {
			return nil, dberr.TransactionFailed(s.storeName(), collection, "getAll", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteItem removes the entity under key and resolves to key. Deleting an
// absent key succeeds.
func (s *Store) DeleteItem(ctx context.Context, collection string, key any) *future.Future[any] {
	if _, err := record.EncodeKey(key); err != nil {
		return future.Fail[any](dberr.InvalidArgument(s.storeName(), collection, "delete", err))
	}
	return future.Go(func() (any, error) {
		conn, err := s.open(ctx)
		if err != nil {
			return nil, err
		}
		return s.exec.Delete(ctx, conn, collection, key).Wait()
	})
}

// DeleteItems deletes every key concurrently under the same join rule as
// AddItems.
func (s *Store) DeleteItems(ctx context.Context, collection string, keys []any) *future.Future[[]any] {
	return batch(ctx, s, "delete", collection, keys, func(k any) *future.Future[any] {
		return s.DeleteItem(ctx, collection, k)
	})
}

// DeleteStore removes the store and all its data. It fails with BLOCKED
// while connections are open.
func (s *Store) DeleteStore(ctx context.Context) error {
	return s.manager.DeleteStore(ctx)
}

// batch starts one operation per item and joins them in input order.
func batch[In, Out any](
	ctx context.Context,
	s *Store,
	op, collection string,
	items []In,
	start func(In) *future.Future[Out],
) *future.Future[[]Out] {
	if len(items) == 0 {
		return future.Value([]Out{})
	}

	fs := make([]*future.Future[Out], len(items))
	for i, item := range items {
		fs[i] = start(item)
	}
	s.logger.Debug("batch started", "store", s.storeName(), "collection", collection, "op", op, "items", len(items))

	// Items are not cancelled with the caller, so neither is the join.
	jctx := context.WithoutCancel(ctx)

	return future.Go(func() ([]Out, error) {
		out, err := future.Join(jctx, fs)
		if err == nil {
			return out, nil
		}

		var je *future.JoinError
		if errors.As(err, &je) {
			s.logger.Debug("batch failed",
				"store", s.storeName(), "collection", collection, "op", op, "item", je.Index, "error", je.Err)
			return nil, dberr.BatchItemFailed(s.storeName(), collection, op, je.Index, je.Err)
		}
		return nil, err
	})
}
