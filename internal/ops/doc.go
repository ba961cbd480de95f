// Package ops runs single storage primitives, each in its own transaction.
//
// Every operation takes ownership of a connection lease: it begins a
// transaction on one collection, runs the primitive, commits, closes the
// lease and only then settles its Future. On any failure the transaction
// is rolled back, the lease is closed exactly once and the Future fails
// with a TRANSACTION_FAILED error wrapping the cause.
//
// Submitted transactions run to completion even if the caller's context
// is cancelled; an abandoned Future's result is discarded.
package ops
