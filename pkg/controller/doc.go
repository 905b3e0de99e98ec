/*
Package controller implements the deploy-then-verify-then-commit-or-revert
state machine for a single named instance.

# State machine

	Idle --deploy--> Resolving
	Resolving --resolved--> StoppingOld
	Resolving --not found--> Idle (error to caller, no mutation)
	StoppingOld --stopped--> StartingNew
	StartingNew --started--> HealthChecking
	StartingNew --start failure--> RollingBack
	HealthChecking --healthy--> Committing
	HealthChecking --unhealthy/timeout--> RollingBack
	Committing --old removed--> Idle (Success)
	RollingBack --previous resolved--> StartingRollback
	RollingBack --no previous--> Idle (FatalFailure)
	StartingRollback --started--> HealthCheckingRollback
	StartingRollback --start failure--> Idle (FatalFailure)
	HealthCheckingRollback --healthy--> Idle (RolledBack)
	HealthCheckingRollback --unhealthy--> Idle (FatalFailure)

The old instance is stopped but never removed until the new one passes
health verification, so a rollback target exists through the entire risky
window. Automatic rollback is attempted exactly once (MaxRollbackAttempts)
against the single previous artifact; if that also fails, the controller
surfaces FatalFailure and demands manual intervention instead of walking
further back through history.

# Concurrency

All deploy and rollback invocations for an instance name are serialized
by an in-flight guard. A second call while one is active fails fast with
ErrAlreadyInProgress rather than queuing; a queued request could apply
after the system state has moved on. The health probe is the only step
that blocks, and it honors context cancellation by taking the rollback
path. The rollback legs themselves run detached from the caller's
context, so an external abort can still restore the previous artifact
instead of stranding the instance with nothing running.

# Outcomes

Every run ends in exactly one of Success, RolledBack, or FatalFailure,
paired with exactly one audit record and a persisted instance state.
Failures inside the machine never escape as errors; the only errors
returned to callers are pre-mutation ones (unknown artifact, guard
rejection).
*/
package controller
