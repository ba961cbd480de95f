// Package changes is the change-tracked CRUD layer over a store.
//
// Every write tags the stored record with the kind of change that produced
// it, and updates keep the pre-update value beside the new one, so a sync
// client can later find and replay local edits. Each operation opens its
// own connection, runs one transaction and returns a Future; batch
// operations fan out one operation per item and join the results in input
// order, failing as a whole if any item fails.
package changes
