package connection

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/changestore/internal/dberr"
	"github.com/roach88/changestore/internal/future"
	"github.com/roach88/changestore/internal/schema"
	"github.com/roach88/changestore/internal/storage"
)

var testSchema = schema.Descriptor{
	"Test1": {KeyPath: "TestOneID"},
	"Test2": {KeyPath: "TestTwoID"},
}

// gatedEngine holds every Open until the gate is closed and counts calls.
type gatedEngine struct {
	*storage.SQLite
	gate  chan struct{}
	calls atomic.Int32
}

func (g *gatedEngine) Open(ctx context.Context, name string, version int, upgrade storage.UpgradeFunc) (storage.Handle, error) {
	g.calls.Add(1)
	<-g.gate
	return g.SQLite.Open(ctx, name, version, upgrade)
}

// failingUpgradeEngine hands upgrades an Upgrader whose drops fail.
type failingUpgradeEngine struct {
	*storage.SQLite
	err error
}

type failingUpgrader struct {
	storage.Upgrader
	err error
}

func (f failingUpgrader) DropCollection(ctx context.Context, name string) error { return f.err }

func (f *failingUpgradeEngine) Open(ctx context.Context, name string, version int, upgrade storage.UpgradeFunc) (storage.Handle, error) {
	return f.SQLite.Open(ctx, name, version, func(ctx context.Context, u storage.Upgrader, oldV, newV int) error {
		return upgrade(ctx, failingUpgrader{Upgrader: u, err: f.err}, oldV, newV)
	})
}

func createTestEngine(t *testing.T) *storage.SQLite {
	t.Helper()
	e, err := storage.NewSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func createTestManager(t *testing.T, engine storage.Engine, logs *bytes.Buffer) *Manager {
	t.Helper()
	if logs == nil {
		logs = &bytes.Buffer{}
	}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m, err := NewManager(engine, Config{Schema: testSchema, StoreName: "projects", Version: 1},
		WithLogger(logger), WithIDGenerator(NewSequenceGenerator("conn")))
	require.NoError(t, err)
	return m
}

func TestOpen_CreatesSchema(t *testing.T) {
	var logs bytes.Buffer
	m := createTestManager(t, createTestEngine(t), &logs)

	conn, err := m.Open(context.Background()).Wait()
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, []string{"Test1", "Test2"}, conn.CollectionNames())
	assert.Equal(t, "projects", conn.Name())
	assert.Equal(t, 1, conn.Version())
	assert.Equal(t, "conn-1", conn.ID())
	assert.Equal(t, Open, m.State("projects", 1))
	assert.Contains(t, logs.String(), "store upgrade")
}

func TestOpen_UpgradeReplacesCollections(t *testing.T) {
	m := createTestManager(t, createTestEngine(t), nil)
	ctx := context.Background()

	conn, err := m.Open(ctx).Wait()
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	v2 := schema.Descriptor{"Test3": {KeyPath: "TestThreeID"}, "Test4": {KeyPath: "TestFourID"}}
	conn, err = m.OpenWith(ctx, v2, "projects", 2).Wait()
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, []string{"Test3", "Test4"}, conn.CollectionNames())
	assert.Equal(t, Open, m.State("projects", 2))
}

func TestOpen_ConcurrentCallsShareOnePhysicalOpen(t *testing.T) {
	engine := &gatedEngine{SQLite: createTestEngine(t), gate: make(chan struct{})}
	m := createTestManager(t, engine, nil)
	ctx := context.Background()

	futures := make([]*future.Future[*Conn], 5)
	for i := range futures {
		futures[i] = m.Open(ctx)
	}
	assert.Equal(t, Opening, m.State("projects", 1))
	close(engine.gate)

	conns, err := future.Join(ctx, futures)
	require.NoError(t, err)

	assert.Equal(t, int32(1), engine.calls.Load())
	assert.Equal(t, 1, m.PhysicalOpens())
	assert.Equal(t, 1, engine.OpenCount("projects"))
	for _, c := range conns {
		assert.Equal(t, conns[0].ID(), c.ID())
	}

	// The handle stays open until the last lease closes.
	for _, c := range conns[:4] {
		require.NoError(t, c.Close())
	}
	assert.Equal(t, 1, engine.OpenCount("projects"))

	_, err = conns[4].Begin(ctx, "Test1", storage.ReadOnly)
	require.NoError(t, err, "remaining lease must stay usable")

	require.NoError(t, conns[4].Close())
	assert.Equal(t, 0, engine.OpenCount("projects"))
}

func TestOpen_LaterCallOpensAgain(t *testing.T) {
	m := createTestManager(t, createTestEngine(t), nil)
	ctx := context.Background()

	c1, err := m.Open(ctx).Wait()
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := m.Open(ctx).Wait()
	require.NoError(t, err)
	defer c2.Close()

	assert.Equal(t, 2, m.PhysicalOpens())
	assert.NotEqual(t, c1.ID(), c2.ID())
}

func TestOpen_DifferentArgumentsAreNotShared(t *testing.T) {
	engine := &gatedEngine{SQLite: createTestEngine(t), gate: make(chan struct{})}
	m := createTestManager(t, engine, nil)
	ctx := context.Background()

	a := m.OpenWith(ctx, testSchema, "store-a", 1)
	b := m.OpenWith(ctx, testSchema, "store-b", 1)
	close(engine.gate)

	conns, err := future.Join(ctx, []*future.Future[*Conn]{a, b})
	require.NoError(t, err)
	defer conns[0].Close()
	defer conns[1].Close()

	assert.Equal(t, int32(2), engine.calls.Load())
	assert.NotEqual(t, conns[0].ID(), conns[1].ID())
}

func TestOpen_BlockedByStaleConnection(t *testing.T) {
	engine := createTestEngine(t)
	m := createTestManager(t, engine, nil)
	ctx := context.Background()

	stale, err := m.Open(ctx).Wait()
	require.NoError(t, err)

	_, err = m.OpenWith(ctx, testSchema, "projects", 2).Wait()
	require.Error(t, err)
	assert.True(t, dberr.IsBlocked(err))
	assert.ErrorIs(t, err, storage.ErrBlocked)
	assert.Equal(t, Blocked, m.State("projects", 2))

	// No automatic retry: closing the stale connection lets a new call through.
	require.NoError(t, stale.Close())
	conn, err := m.OpenWith(ctx, testSchema, "projects", 2).Wait()
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, Open, m.State("projects", 2))
}

func TestOpen_DowngradeFails(t *testing.T) {
	m := createTestManager(t, createTestEngine(t), nil)
	ctx := context.Background()

	conn, err := m.OpenWith(ctx, testSchema, "projects", 3).Wait()
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = m.Open(ctx).Wait()
	require.Error(t, err)
	assert.True(t, dberr.IsOpenFailed(err))
	assert.ErrorIs(t, err, storage.ErrVersion)
	assert.Equal(t, Failed, m.State("projects", 1))
}

func TestOpen_MigrationErrorFailsOpen(t *testing.T) {
	boom := errors.New("drop refused")
	base := createTestEngine(t)
	m := createTestManager(t, base, nil)
	ctx := context.Background()

	conn, err := m.Open(ctx).Wait()
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	failing := createTestManager(t, &failingUpgradeEngine{SQLite: base, err: boom}, nil)
	v2 := schema.Descriptor{"Test3": {KeyPath: "TestThreeID"}}
	_, err = failing.OpenWith(ctx, v2, "projects", 2).Wait()
	require.Error(t, err)
	assert.True(t, dberr.IsOpenFailed(err))
	assert.ErrorIs(t, err, boom)

	conn, err = m.Open(ctx).Wait()
	require.NoError(t, err, "store must remain at version 1")
	defer conn.Close()
	assert.Equal(t, []string{"Test1", "Test2"}, conn.CollectionNames())
}

func TestOpen_InvalidRequest(t *testing.T) {
	m := createTestManager(t, createTestEngine(t), nil)

	_, err := m.OpenWith(context.Background(), testSchema, "", 1).Wait()
	assert.Equal(t, dberr.CodeInvalidArgument, dberr.CodeOf(err))

	_, err = m.OpenWith(context.Background(), schema.Descriptor{}, "projects", 1).Wait()
	assert.ErrorIs(t, err, schema.ErrInvalid)

	_, err = m.OpenWith(context.Background(), testSchema, "projects", 0).Wait()
	assert.Equal(t, dberr.CodeInvalidArgument, dberr.CodeOf(err))
}

func TestOpen_CancelledCallerDoesNotFailSharedOpen(t *testing.T) {
	engine := &gatedEngine{SQLite: createTestEngine(t), gate: make(chan struct{})}
	m := createTestManager(t, engine, nil)

	ctx1, cancel := context.WithCancel(context.Background())
	first := m.Open(ctx1)
	second := m.Open(context.Background())
	cancel()

	_, err := first.Await(ctx1)
	assert.ErrorIs(t, err, context.Canceled)

	close(engine.gate)
	conn, err := second.Wait()
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// The abandoned lease still exists and must be released by its owner.
	abandoned, err := first.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, engine.OpenCount("projects"))

	_, err = m.OpenWith(context.Background(), testSchema, "projects", 2).Wait()
	assert.True(t, dberr.IsBlocked(err), "live lease blocks an upgrade: %v", err)

	require.NoError(t, abandoned.Close())
	assert.Equal(t, 0, engine.OpenCount("projects"))

	conn, err = m.OpenWith(context.Background(), testSchema, "projects", 2).Wait()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestOpen_DriftIsLogged(t *testing.T) {
	var logs bytes.Buffer
	m := createTestManager(t, createTestEngine(t), &logs)
	ctx := context.Background()

	conn, err := m.Open(ctx).Wait()
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	drifted := schema.Descriptor{"Test1": {KeyPath: "TestOneID"}, "Test9": {KeyPath: "TestNineID"}}
	conn, err = m.OpenWith(ctx, drifted, "projects", 1).Wait()
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, []string{"Test1", "Test2"}, conn.CollectionNames(), "no migration without a version bump")
	assert.Contains(t, logs.String(), "store schema differs from configuration")
}

func TestConn_CloseIdempotent(t *testing.T) {
	engine := createTestEngine(t)
	m := createTestManager(t, engine, nil)

	conn, err := m.Open(context.Background()).Wait()
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 0, engine.OpenCount("projects"))

	_, err = conn.Begin(context.Background(), "Test1", storage.ReadOnly)
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestDeleteStore(t *testing.T) {
	m := createTestManager(t, createTestEngine(t), nil)
	ctx := context.Background()

	conn, err := m.Open(ctx).Wait()
	require.NoError(t, err)

	err = m.DeleteStore(ctx)
	assert.True(t, dberr.IsBlocked(err))

	require.NoError(t, conn.Close())
	require.NoError(t, m.DeleteStore(ctx))
	assert.Equal(t, Idle, m.State("projects", 1))
}

func TestNewManager_Validation(t *testing.T) {
	engine := createTestEngine(t)

	_, err := NewManager(nil, Config{Schema: testSchema, StoreName: "x", Version: 1})
	assert.Error(t, err)

	_, err = NewManager(engine, Config{Schema: testSchema, StoreName: "x", Version: 0})
	assert.Error(t, err)

	_, err = NewManager(engine, Config{Schema: schema.Descriptor{}, StoreName: "x", Version: 1})
	assert.ErrorIs(t, err, schema.ErrInvalid)
}

func TestNewManager_CopiesSchema(t *testing.T) {
	s := testSchema.Clone()
	m, err := NewManager(createTestEngine(t), Config{Schema: s, StoreName: "projects", Version: 1})
	require.NoError(t, err)

	delete(s, "Test1")
	assert.True(t, m.Config().Schema.Has("Test1"))
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("")
	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(g.Generate(), true)
			assert.False(t, dup)
		}()
	}
	wg.Wait()
	assert.Equal(t, "conn-11", g.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, UUIDv7Generator{}.Generate())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "upgrading", Upgrading.String())
	assert.Equal(t, "blocked", Blocked.String())
	assert.Equal(t, "unknown", State(99).String())
}
