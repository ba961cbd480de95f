// Package harness runs YAML scenarios of store operations and checks them.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	store:
//	  name: projects
//	  version: 1
//	  collections:
//	    Project: { keyPath: ProjectFileNo }
//	steps:
//	  - op: add
//	    collection: Project
//	    values: [{ ProjectFileNo: "A" }, { ProjectFileNo: "B" }]
//	  - op: update
//	    collection: Project
//	    value: { ProjectFileNo: "B", Title: "New" }
//	    original: { ProjectFileNo: "B" }
//	  - op: delete
//	    collection: Project
//	    keys: ["A"]
//	    expect: { count: 1 }
//	assertions:
//	  - type: keys_in_order
//	    collection: Project
//	    keys: ["B"]
//
// # Operations
//
//   - add: value (one record) or values (a batch)
//   - update: value and original, or updates (a batch of value/original pairs)
//   - get: key
//   - getAll: no arguments
//   - changes: change_type
//   - delete: key or keys (a batch)
//   - open: reopen with version and collections, switching the scenario to
//     that configuration; upgrades the store when the version is higher
//   - drop_store: no arguments
//
// A step may expect an error code (expect.error) or a result size
// (expect.count). A step that fails without expecting to fails the
// scenario but does not stop it.
//
// # Assertion Types
//
//   - count: the collection holds exactly count entities
//   - keys_in_order: the collection's keys in insertion order
//   - change_type: the entity under key carries change_type
//   - original_value: the entity under key carries original
//   - absent: no entity under key
//   - collections: the live collection names
//
// # Deterministic Testing
//
// Every run uses a fresh store directory and a fixed connection ID, so the
// trace of a scenario is identical across runs and can be compared with a
// golden file.
package harness
