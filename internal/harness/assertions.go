package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/changestore/internal/changes"
	"github.com/roach88/changestore/internal/record"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the store and returns
// the failure messages.
func EvaluateAssertions(ctx context.Context, store *changes.Store, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(ctx, store, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(ctx context.Context, store *changes.Store, a Assertion) error {
	switch a.Type {
	case AssertCollections:
		conn, err := store.Manager().Open(ctx).Await(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		got := conn.CollectionNames()
		want := slices.Sorted(slices.Values(a.Names))
		if !slices.Equal(got, want) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
		}
		return nil

	case AssertCount, AssertKeysInOrder:
		all, err := store.GetAllData(ctx, a.Collection).Await(ctx)
		if err != nil {
			return err
		}
		if a.Type == AssertCount {
			if len(all) != a.Count {
				return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Count), Actual: fmt.Sprint(len(all))}
			}
			return nil
		}
		return assertKeysInOrder(store, a, all)
	}

	e, err := store.GetItem(ctx, a.Collection, a.Key).Await(ctx)
	if err != nil {
		return err
	}

	switch a.Type {
	case AssertAbsent:
		if e != nil {
			return &AssertionError{Type: a.Type, Expected: "no entity", Actual: entityString(*e)}
		}
		return nil
	case AssertChangeType:
		if e == nil {
			return &AssertionError{Type: a.Type, Expected: a.ChangeType, Actual: "no entity"}
		}
		if string(e.ChangeType) != a.ChangeType {
			return &AssertionError{Type: a.Type, Expected: a.ChangeType, Actual: string(e.ChangeType)}
		}
		return nil
	case AssertOriginalValue:
		want := record.Record(a.Original)
		if e == nil {
			return &AssertionError{Type: a.Type, Expected: recordString(want), Actual: "no entity"}
		}
		if !record.Equal(want, e.OriginalValue) {
			return &AssertionError{Type: a.Type, Expected: recordString(want), Actual: recordString(e.OriginalValue)}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertKeysInOrder compares keys by their canonical encoding, so 12 in
// YAML matches a stored 12 whatever its Go type.
func assertKeysInOrder(store *changes.Store, a Assertion, all []changes.Entity) error {
	keyPath, _ := store.Config().Schema.KeyPath(a.Collection)

	got := make([]string, len(all))
	for i, e := range all {
		_, enc, err := record.KeyOf(e.Value, keyPath)
		if err != nil {
			return err
		}
		got[i] = enc
	}

	want := make([]string, len(a.Keys))
	for i, k := range a.Keys {
		enc, err := record.EncodeKey(k)
		if err != nil {
			return err
		}
		want[i] = enc
	}

	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     a.Type,
			Expected: "[" + strings.Join(want, ", ") + "]",
			Actual:   "[" + strings.Join(got, ", ") + "]",
		}
	}
	return nil
}

func entityString(e changes.Entity) string {
	return recordString(e.Flatten())
}

func recordString(r record.Record) string {
	if r == nil {
		return "null"
	}
	data, err := record.Marshal(r)
	if err != nil {
		return fmt.Sprint(map[string]any(r))
	}
	return string(data)
}
