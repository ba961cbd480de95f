package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/changestore/internal/changes"
	"github.com/roach88/changestore/internal/schema"
)

// Operation names accepted in steps.
const (
	OpAdd       = "add"
	OpUpdate    = "update"
	OpGet       = "get"
	OpGetAll    = "getAll"
	OpChanges   = "changes"
	OpDelete    = "delete"
	OpOpen      = "open"
	OpDropStore = "drop_store"
)

// Scenario defines a store test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Store is the initial store configuration.
	Store StoreSpec `yaml:"store"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store contents.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// ConnectionID is the fixed connection ID used in logs.
	// If empty, defaults to "test-conn-default".
	ConnectionID string `yaml:"connection_id,omitempty"`
}

// StoreSpec configures a store.
type StoreSpec struct {
	Name        string            `yaml:"name"`
	Version     int               `yaml:"version"`
	Collections schema.Descriptor `yaml:"collections"`
}

// Step is one operation.
type Step struct {
	Op         string           `yaml:"op"`
	Collection string           `yaml:"collection,omitempty"`
	Value      map[string]any   `yaml:"value,omitempty"`
	Values     []map[string]any `yaml:"values,omitempty"`
	Original   map[string]any   `yaml:"original,omitempty"`
	Updates    []UpdateSpec     `yaml:"updates,omitempty"`
	Key        any              `yaml:"key,omitempty"`
	Keys       []any            `yaml:"keys,omitempty"`
	ChangeType string           `yaml:"change_type,omitempty"`

	// Version and Collections configure an open step.
	Version     int               `yaml:"version,omitempty"`
	Collections schema.Descriptor `yaml:"collections,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// UpdateSpec is one item of a batch update.
type UpdateSpec struct {
	Value    map[string]any `yaml:"value"`
	Original map[string]any `yaml:"original"`
}

// Expect states the expected outcome of a step.
type Expect struct {
	// Error is the expected dberr code; empty expects success.
	Error string `yaml:"error,omitempty"`

	// Count is the expected number of results, when set.
	Count *int `yaml:"count,omitempty"`
}

// Assertion validates final store contents.
type Assertion struct {
	// Type is one of the Assert constants.
	Type       string         `yaml:"type"`
	Collection string         `yaml:"collection,omitempty"`
	Key        any            `yaml:"key,omitempty"`
	Keys       []any          `yaml:"keys,omitempty"`
	Count      int            `yaml:"count,omitempty"`
	ChangeType string         `yaml:"change_type,omitempty"`
	Original   map[string]any `yaml:"original,omitempty"`
	Names      []string       `yaml:"names,omitempty"`
}

// Assertion types.
const (
	AssertCount         = "count"
	AssertKeysInOrder   = "keys_in_order"
	AssertChangeType    = "change_type"
	AssertOriginalValue = "original_value"
	AssertAbsent        = "absent"
	AssertCollections   = "collections"
)

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "step:" vs "steps:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Store.Name == "" {
		return fmt.Errorf("store.name is required")
	}
	if s.Store.Version < 1 {
		return fmt.Errorf("store.version must be at least 1")
	}
	if err := s.Store.Collections.Validate(); err != nil {
		return fmt.Errorf("store.collections: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, s *Step) error {
	needsCollection := s.Op != OpOpen && s.Op != OpDropStore
	if needsCollection && s.Collection == "" {
		return fmt.Errorf("steps[%d]: collection is required for %s", i, s.Op)
	}

	switch s.Op {
	case OpAdd:
		if (s.Value == nil) == (s.Values == nil) {
			return fmt.Errorf("steps[%d]: add needs exactly one of value or values", i)
		}
	case OpUpdate:
		if s.Updates == nil && s.Value == nil {
			return fmt.Errorf("steps[%d]: update needs value or updates", i)
		}
		if s.Updates != nil && (s.Value != nil || s.Original != nil) {
			return fmt.Errorf("steps[%d]: update takes either value/original or updates", i)
		}
	case OpGet:
		if s.Key == nil {
			return fmt.Errorf("steps[%d]: key is required for get", i)
		}
	case OpDelete:
		if (s.Key == nil) == (s.Keys == nil) {
			return fmt.Errorf("steps[%d]: delete needs exactly one of key or keys", i)
		}
	case OpChanges:
		if _, err := changes.ParseChangeType(s.ChangeType); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	case OpOpen:
		if s.Version < 1 {
			return fmt.Errorf("steps[%d]: open needs a version of at least 1", i)
		}
		if err := s.Collections.Validate(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	case OpGetAll, OpDropStore:
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, s.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needsKey := false
	switch a.Type {
	case AssertCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertKeysInOrder:
		if a.Keys == nil {
			return fmt.Errorf("assertions[%d]: keys list is required for keys_in_order", index)
		}
	case AssertChangeType:
		needsKey = true
		if _, err := changes.ParseChangeType(a.ChangeType); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertOriginalValue:
		needsKey = true
		if a.Original == nil {
			return fmt.Errorf("assertions[%d]: original is required for original_value", index)
		}
	case AssertAbsent:
		needsKey = true
	case AssertCollections:
		if len(a.Names) == 0 {
			return fmt.Errorf("assertions[%d]: names list is required for collections", index)
		}
		return nil
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Collection == "" {
		return fmt.Errorf("assertions[%d]: collection is required for %s", index, a.Type)
	}
	if needsKey && a.Key == nil {
		return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
	}
	return nil
}
