package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/changestore/internal/dberr"
	"github.com/roach88/changestore/internal/future"
	"github.com/roach88/changestore/internal/schema"
	"github.com/roach88/changestore/internal/storage"
)

// Manager opens, upgrades and shares connections to stores.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	engine storage.Engine
	config Config
	logger *slog.Logger
	ids    IDGenerator

	mu            sync.Mutex
	inflight      map[openKey]*openCall
	states        map[stateKey]State
	physicalOpens int
}

// openKey identifies requests that may share one physical open.
type openKey struct {
	name        string
	version     int
	fingerprint string
}

type stateKey struct {
	name    string
	version int
}

// openCall is a physical open in flight and the callers waiting on it.
type openCall struct {
	done     chan struct{}
	waiters  int
	upgraded bool // written only by the opening goroutine before done closes

	shared *shared
	err    error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithIDGenerator sets the connection ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// NewManager creates a Manager over engine with a default configuration.
// The configuration is validated and copied; later changes to cfg.Schema
// do not affect the Manager.
func NewManager(engine storage.Engine, cfg Config, opts ...Option) (*Manager, error) {
	if engine == nil {
		return nil, fmt.Errorf("connection manager: engine is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("connection manager: %w", err)
	}
	cfg.Schema = cfg.Schema.Clone()

	m := &Manager{
		engine:   engine,
		config:   cfg,
		logger:   slog.Default(),
		ids:      UUIDv7Generator{},
		inflight: make(map[openKey]*openCall),
		states:   make(map[stateKey]State),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns a copy of the Manager's configuration.
func (m *Manager) Config() Config {
	cfg := m.config
	cfg.Schema = cfg.Schema.Clone()
	return cfg
}

// Open opens the configured store at the configured version.
func (m *Manager) Open(ctx context.Context) *future.Future[*Conn] {
	return m.OpenWith(ctx, m.config.Schema, m.config.StoreName, m.config.Version)
}

// OpenWith opens storeName at version, migrating it to desired if the
// persisted version is lower. The Future settles with exactly one *Conn or
// one error: BLOCKED when other connections prevent the upgrade,
// OPEN_FAILED for anything else the engine or migrator reports.
//
// The physical open is not cancelled with ctx: it may be shared with other
// callers. Every *Conn received must be closed. A Future whose Await was
// cancelled must still be Waited and its Conn closed; until then the lease
// stays live and later upgrades and DeleteStore report BLOCKED.
func (m *Manager) OpenWith(ctx context.Context, desired schema.Descriptor, storeName string, version int) *future.Future[*Conn] {
	req := Config{Schema: desired, StoreName: storeName, Version: version}
	if err := req.Validate(); err != nil {
		return future.Fail[*Conn](dberr.InvalidArgument(storeName, "", "invalid open request", err))
	}
	desired = desired.Clone()

	key := openKey{name: storeName, version: version, fingerprint: desired.Fingerprint()}

	m.mu.Lock()
	call, joined := m.inflight[key]
	if !joined {
		call = &openCall{done: make(chan struct{})}
		m.inflight[key] = call
		m.states[stateKey{storeName, version}] = Opening
		go m.physicalOpen(context.WithoutCancel(ctx), key, call, desired)
	}
	call.waiters++
	m.mu.Unlock()

	if joined {
		m.logger.Debug("joined in-flight open", "store", storeName, "version", version)
	}

	return future.Go(func() (*Conn, error) {
		<-call.done
		if call.err != nil {
			return nil, call.err
		}
		return &Conn{shared: call.shared}, nil
	})
}

// physicalOpen performs the engine open for call and settles it.
func (m *Manager) physicalOpen(ctx context.Context, key openKey, call *openCall, desired schema.Descriptor) {
	handle, err := m.engine.Open(ctx, key.name, key.version, m.upgradeFunc(key, call, desired))

	var id string
	if err == nil {
		id = m.ids.Generate()
	}

	m.mu.Lock()
	delete(m.inflight, key)
	m.physicalOpens++
	sk := stateKey{key.name, key.version}
	switch {
	case err == nil:
		call.shared = &shared{handle: handle, id: id, refs: call.waiters}
		m.states[sk] = Open
	case errors.Is(err, storage.ErrBlocked):
		call.err = dberr.Blocked(key.name, key.version, err)
		m.states[sk] = Blocked
	default:
		call.err = dberr.OpenFailed(key.name, err)
		m.states[sk] = Failed
	}
	waiters := call.waiters
	m.mu.Unlock()

	switch {
	case err == nil:
		m.logger.Debug("store opened",
			"store", key.name, "version", key.version, "conn", id, "waiters", waiters)
		if !call.upgraded {
			m.checkDrift(handle, desired, id)
		}
	case errors.Is(err, storage.ErrBlocked):
		m.logger.Warn("store open blocked",
			"store", key.name, "version", key.version, "error", err)
	default:
		m.logger.Warn("store open failed",
			"store", key.name, "version", key.version, "error", err)
	}

	close(call.done)
}

// upgradeFunc returns the engine callback that migrates the store to desired.
func (m *Manager) upgradeFunc(key openKey, call *openCall, desired schema.Descriptor) storage.UpgradeFunc {
	return func(ctx context.Context, u storage.Upgrader, oldVersion, newVersion int) error {
		call.upgraded = true
		m.setState(key, Upgrading)
		m.logger.Info("store upgrade",
			"store", key.name, "from", oldVersion, "to", newVersion)

		plan, err := schema.Migrate(ctx, u, desired)
		if err != nil {
			return err
		}

		m.logger.Info("store upgraded",
			"store", key.name, "version", newVersion,
			"dropped", plan.Drop, "created", plan.Create)
		return nil
	}
}

// checkDrift warns when a store opened without an upgrade does not match
// the desired schema. Nothing is migrated: changing the schema requires a
// version bump.
func (m *Manager) checkDrift(handle storage.Handle, desired schema.Descriptor, id string) {
	live := handle.CollectionNames()
	if slices.Equal(live, desired.Names()) {
		return
	}
	plan := schema.Diff(live, desired)
	m.logger.Warn("store schema differs from configuration; bump the version to migrate",
		"store", handle.Name(), "version", handle.Version(), "conn", id,
		"undeclared", plan.Drop, "missing", plan.Create)
}

func (m *Manager) setState(key openKey, s State) {
	m.mu.Lock()
	m.states[stateKey{key.name, key.version}] = s
	m.mu.Unlock()
}

// State reports the latest state of opens of name at version.
func (m *Manager) State(name string, version int) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[stateKey{name, version}]; ok {
		return s
	}
	return Idle
}

// PhysicalOpens reports how many engine opens the Manager has performed.
func (m *Manager) PhysicalOpens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.physicalOpens
}

// DeleteStore removes the configured store and all its data. It fails with
// BLOCKED while connections to the store are open.
func (m *Manager) DeleteStore(ctx context.Context) error {
	name := m.config.StoreName
	if err := m.engine.DeleteStore(ctx, name); err != nil {
		if errors.Is(err, storage.ErrBlocked) {
			return dberr.Blocked(name, m.config.Version, err)
		}
		return fmt.Errorf("delete store %q: %w", name, err)
	}

	m.mu.Lock()
	for sk := range m.states {
		if sk.name == name {
			delete(m.states, sk)
		}
	}
	m.mu.Unlock()

	m.logger.Info("store deleted", "store", name)
	return nil
}
