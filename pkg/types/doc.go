/*
Package types defines the core data model shared by all ctOS deployment
controller packages.

The model is deliberately small:

	Artifact           A deployable unit: unique tag, creation time,
	                   optional source reference. Immutable.

	InstanceState      Last-known state of the single managed instance
	                   (absent, running, or stopped) plus the artifact
	                   it was started from. Persisted by the controller
	                   after every terminal transition.

	DeploymentAttempt  Ephemeral per-invocation value describing one run
	                   of the deploy/rollback state machine and its
	                   terminal outcome.

	AuditRecord        Durable, append-only record of a terminal
	                   transition: timestamp, action, artifact tag,
	                   outcome, free-text reason.

All state is threaded explicitly through these values. No package keeps
process-wide mutable deployment state.
*/
package types
