// Package schema declares the collections of a store and reconciles a live
// store against that declaration.
//
// A Descriptor maps collection names to the field that keys their entities.
// Migrate is run by the connection manager inside a version upgrade: it
// drops every live collection the descriptor no longer names and creates
// every named collection that does not exist yet. Collections present on
// both sides are never touched, so changing a key field means dropping the
// collection in one version and recreating it in a later one.
package schema
