/*
Package audit persists the append-only trail of deployment transitions.

Every terminal controller transition produces exactly one record:
timestamp, instance, action (deploy, rollback, auto_rollback), artifact
tag, outcome, and an optional free-text reason. Records are stored one
JSON object per line and fsync'd per append, so the trail survives both
process restarts and crashes mid-deployment.

Audit durability is best-effort relative to deployment correctness: a
storage-layer failure (disk full, permissions) sends the record to stderr
and surfaces ErrWriteFailure, but never blocks or fails the deployment
that produced it.
*/
package audit
