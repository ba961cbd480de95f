package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/changestore/internal/changes"
	"github.com/roach88/changestore/internal/connection"
	"github.com/roach88/changestore/internal/dberr"
	"github.com/roach88/changestore/internal/record"
	"github.com/roach88/changestore/internal/storage"
	"github.com/roach88/changestore/internal/testutil"
)

// Harness runs one scenario against one store directory.
type Harness struct {
	engine *storage.SQLite
	store  *changes.Store
	ids    connection.IDGenerator
	logger *slog.Logger
	seq    int64
}

// Run executes a scenario in a fresh temporary store directory and
// returns the result. It returns an error only when the scenario cannot
// be run at all; step and assertion failures are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "changestore-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	defer os.RemoveAll(dir)

	engine, err := storage.NewSQLite(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	h := &Harness{
		engine: engine,
		ids:    testutil.NewFixedIDGenerator(scenario.ConnectionID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	if err := h.configure(scenario.Store); err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	for _, msg := range EvaluateAssertions(ctx, h.store, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// configure switches the harness to a store configuration.
func (h *Harness) configure(spec StoreSpec) error {
	s, err := changes.New(h.engine, connection.Config{
		Schema:    spec.Collections,
		StoreName: spec.Name,
		Version:   spec.Version,
	}, changes.WithLogger(h.logger), changes.WithIDGenerator(h.ids))
	if err != nil {
		return fmt.Errorf("failed to configure store: %w", err)
	}
	h.store = s
	return nil
}

// executeStep runs one step, traces it and checks its expectation.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	h.seq++
	event := TraceEvent{
		Seq:        h.seq,
		Op:         step.Op,
		Collection: step.Collection,
		Args:       stepArgs(step),
	}

	value, count, err := h.dispatch(ctx, step)
	if err != nil {
		event.Error = errorCode(err)
	} else {
		event.Result = value
	}
	result.Trace = append(result.Trace, event)

	var wantErr string
	if step.Expect != nil {
		wantErr = step.Expect.Error
	}
	switch {
	case err != nil && wantErr == "":
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Op, err))
	case err == nil && wantErr != "":
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got success", i, step.Op, wantErr))
	case err != nil && event.Error != wantErr:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s (%v)", i, step.Op, wantErr, event.Error, err))
	case err == nil && step.Expect != nil && step.Expect.Count != nil && count != *step.Expect.Count:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected %d result(s), got %d", i, step.Op, *step.Expect.Count, count))
	}
}

// dispatch runs step and returns its traced result and result count.
func (h *Harness) dispatch(ctx context.Context, step Step) (any, int, error) {
	coll := step.Collection

	switch step.Op {
	case OpAdd:
		if step.Value != nil {
			e, err := h.store.AddItem(ctx, coll, record.Record(step.Value)).Await(ctx)
			if err != nil {
				return nil, 0, err
			}
			return e.Flatten(), 1, nil
		}
		values := make([]record.Record, len(step.Values))
		for i, v := range step.Values {
			values[i] = record.Record(v)
		}
		es, err := h.store.AddItems(ctx, coll, values).Await(ctx)
		return flattenAll(es), len(es), err

	case OpUpdate:
		if step.Updates == nil {
			u := changes.Update{Value: record.Record(step.Value), OriginalValue: toRecord(step.Original)}
			e, err := h.store.UpdateItem(ctx, coll, u).Await(ctx)
			if err != nil {
				return nil, 0, err
			}
			return e.Flatten(), 1, nil
		}
		updates := make([]changes.Update, len(step.Updates))
		for i, u := range step.Updates {
			updates[i] = changes.Update{Value: record.Record(u.Value), OriginalValue: toRecord(u.Original)}
		}
		es, err := h.store.UpdateItems(ctx, coll, updates).Await(ctx)
		return flattenAll(es), len(es), err

	case OpGet:
		e, err := h.store.GetItem(ctx, coll, step.Key).Await(ctx)
		if err != nil || e == nil {
			return nil, 0, err
		}
		return e.Flatten(), 1, nil

	case OpGetAll:
		es, err := h.store.GetAllData(ctx, coll).Await(ctx)
		return flattenAll(es), len(es), err

	case OpChanges:
		es, err := h.store.Changes(ctx, coll, changes.ChangeType(step.ChangeType)).Await(ctx)
		return flattenAll(es), len(es), err

	case OpDelete:
		if step.Keys == nil {
			k, err := h.store.DeleteItem(ctx, coll, step.Key).Await(ctx)
			return k, 1, err
		}
		ks, err := h.store.DeleteItems(ctx, coll, step.Keys).Await(ctx)
		return ks, len(ks), err

	case OpOpen:
		prev := h.store
		current := prev.Config()
		if err := h.configure(StoreSpec{Name: current.StoreName, Version: step.Version, Collections: step.Collections}); err != nil {
			return nil, 0, err
		}
		conn, err := h.store.Manager().Open(ctx).Await(ctx)
		if err != nil {
			// A rejected open leaves the store on its previous configuration.
			h.store = prev
			return nil, 0, err
		}
		defer conn.Close()
		names := conn.CollectionNames()
		out := make([]any, len(names))
		for i, n := range names {
			out[i] = n
		}
		return out, len(names), nil

	case OpDropStore:
		return nil, 0, h.store.DeleteStore(ctx)
	}
	return nil, 0, fmt.Errorf("unknown op %q", step.Op)
}

// stepArgs returns the arguments of step for the trace.
func stepArgs(step Step) map[string]any {
	args := map[string]any{}
	if step.Value != nil {
		args["value"] = step.Value
	}
	if step.Values != nil {
		vs := make([]any, len(step.Values))
		for i, v := range step.Values {
			vs[i] = v
		}
		args["values"] = vs
	}
	if step.Original != nil {
		args["original"] = step.Original
	}
	if step.Updates != nil {
		us := make([]any, len(step.Updates))
		for i, u := range step.Updates {
			us[i] = map[string]any{"value": u.Value, "original": u.Original}
		}
		args["updates"] = us
	}
	if step.Key != nil {
		args["key"] = step.Key
	}
	if step.Keys != nil {
		args["keys"] = step.Keys
	}
	if step.ChangeType != "" {
		args["change_type"] = step.ChangeType
	}
	if step.Version != 0 {
		args["version"] = step.Version
	}
	if step.Collections != nil {
		cs := map[string]any{}
		for _, name := range step.Collections.Names() {
			cs[name] = step.Collections[name].KeyPath
		}
		args["collections"] = cs
	}
	return args
}

func flattenAll(es []changes.Entity) []any {
	if es == nil {
		return nil
	}
	out := make([]any, len(es))
	for i, e := range es {
		out[i] = e.Flatten()
	}
	return out
}

func toRecord(m map[string]any) record.Record {
	if m == nil {
		return nil
	}
	return record.Record(m)
}

// errorCode returns the dberr code of err, or "ERROR" for anything else.
func errorCode(err error) string {
	if code := dberr.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}
