package schema

import (
	"context"
	"fmt"
	"slices"
)

// Upgrader is the live store as seen from inside a version upgrade.
// CreateCollection and DropCollection are only valid during the upgrade.
type Upgrader interface {
	CollectionNames(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name, keyPath string) error
	DropCollection(ctx context.Context, name string) error
}

// Plan is the set of changes needed to converge a live store on a
// descriptor. Both lists are sorted.
type Plan struct {
	Drop   []string
	Create []string
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Drop) == 0 && len(p.Create) == 0
}

// Diff computes the drop set (live but undeclared) and the create set
// (declared but not live).
func Diff(existing []string, desired Descriptor) Plan {
	var plan Plan
	for _, name := range existing {
		if !desired.Has(name) {
			plan.Drop = append(plan.Drop, name)
		}
	}
	for _, name := range desired.Names() {
		if !slices.Contains(existing, name) {
			plan.Create = append(plan.Create, name)
		}
	}
	slices.Sort(plan.Drop)
	plan.Drop = slices.Compact(plan.Drop)
	return plan
}

// Migrate converges the live store on desired. Dropping a collection
// destroys its contents. Running Migrate again against the result
// produces an empty plan.
func Migrate(ctx context.Context, u Upgrader, desired Descriptor) (Plan, error) {
	existing, err := u.CollectionNames(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("migrate: list collections: %w", err)
	}

	plan := Diff(existing, desired)

	for _, name := range plan.Drop {
		if err := u.DropCollection(ctx, name); err != nil {
			return plan, fmt.Errorf("migrate: drop %q: %w", name, err)
		}
	}
	for _, name := range plan.Create {
		keyPath, _ := desired.KeyPath(name)
		if err := u.CreateCollection(ctx, name, keyPath); err != nil {
			return plan, fmt.Errorf("migrate: create %q: %w", name, err)
		}
	}

	return plan, nil
}
