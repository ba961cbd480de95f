// Package connection manages the lifecycle of connections to a store.
//
// The Manager opens a store at a version, upgrading it through the schema
// migrator when the persisted version is lower, and hands out connections.
// Connections are short-lived: the operation engine opens one per
// transaction and closes it straight after.
//
// SHARED OPENS:
//
// Concurrent Open calls with identical arguments (store name, version and
// schema fingerprint) join a single in-flight physical open. Every caller
// receives its own *Conn lease on the one engine handle; the handle is
// closed when the last lease closes. Once an open settles it leaves the
// registry, so a later call performs a fresh open.
//
// STATE MACHINE (per store name and version):
//
//	Idle -> Opening -> [Upgrading] -> Open
//	Idle -> Opening -> Failed
//	Idle -> Opening -> Blocked
//
// Upgrading is entered only when the persisted version is below the
// requested one. Blocked and Failed are reported once and never retried.
package connection
