package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps))
		})
	}
}

func TestRun_TraceSequence(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/delete_three_of_six.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	for i, event := range result.Trace {
		assert.Equal(t, int64(i+1), event.Seq)
		assert.Equal(t, scenario.Steps[i].Op, event.Op)
	}
	assert.Equal(t, []any{"k1", "k3", "k5"}, result.Trace[2].Result)
	assert.Equal(t, "k9", result.Trace[3].Result)
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: unexpected
description: "update without original"
store:
  name: s
  version: 1
  collections:
    Project: { keyPath: ProjectFileNo }
steps:
  - op: update
    collection: Project
    value: { ProjectFileNo: "x" }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Equal(t, "INVALID_ARGUMENT", result.Trace[0].Error)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: mismatch
description: "wrong expectations"
store:
  name: s
  version: 1
  collections:
    Project: { keyPath: ProjectFileNo }
steps:
  - op: add
    collection: Project
    value: { ProjectFileNo: "x" }
    expect: { error: INVALID_ARGUMENT }
  - op: getAll
    collection: Project
    expect: { count: 3 }
  - op: add
    collection: Project
    value: { Title: "no key" }
    expect: { error: BATCH_ITEM_FAILED }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "expected error INVALID_ARGUMENT, got success")
	assert.Contains(t, result.Errors[1], "expected 3 result(s), got 1")
	assert.Contains(t, result.Errors[2], "expected error BATCH_ITEM_FAILED, got TRANSACTION_FAILED")
}

func TestRun_FailedAssertions(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: failing_assertions
description: "every assertion fails"
store:
  name: s
  version: 1
  collections:
    Project: { keyPath: ProjectFileNo }
steps:
  - op: add
    collection: Project
    values:
      - { ProjectFileNo: "a" }
      - { ProjectFileNo: "b" }
assertions:
  - type: count
    collection: Project
    count: 5
  - type: keys_in_order
    collection: Project
    keys: ["b", "a"]
  - type: change_type
    collection: Project
    key: "a"
    change_type: Updated
  - type: original_value
    collection: Project
    key: "a"
    original: { ProjectFileNo: "a" }
  - type: absent
    collection: Project
    key: "b"
  - type: collections
    names: ["Client"]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	for i, msg := range result.Errors {
		assert.Contains(t, msg, "Assertion failed", "assertion %d", i)
	}
	assert.Contains(t, result.Errors[1], `["b", "a"]`)
	assert.Contains(t, result.Errors[3], "Actual: null")
}

func TestRun_DropStore(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: drop
description: "dropping the store empties it"
store:
  name: s
  version: 1
  collections:
    Project: { keyPath: ProjectFileNo }
steps:
  - op: add
    collection: Project
    value: { ProjectFileNo: "x" }
  - op: drop_store
  - op: getAll
    collection: Project
    expect: { count: 0 }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Nil(t, result.Trace[1].Result)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestErrorCode_NonStoreError(t *testing.T) {
	assert.Equal(t, "ERROR", errorCode(assert.AnError))
}
