/*
Package store provides BoltDB-backed state persistence for the deployment
controller.

Two buckets are kept in a single database file (<dataDir>/ctos.db):

	artifacts   Registered deployable artifacts, keyed by tag,
	            serialized as JSON. Immutable once written.

	instances   Last-known state of each managed instance, keyed by
	            instance name. Overwritten after every terminal
	            controller transition so the controller can recover its
	            view of the world across process restarts.

BoltDB gives ACID transactions and fsync durability with no external
process, which matches the single-binary deployment model of the
controller itself.

Lookups for missing keys wrap ErrNotFound so callers can branch with
errors.Is rather than string matching.
*/
package store
