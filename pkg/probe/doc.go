/*
Package probe verifies that a freshly started instance is actually
serving.

A probe run polls two signals at a fixed interval until a deadline:

 1. runtime liveness: the instance's process exists and has not exited
 2. an application-level health signal: an HTTP endpoint returning an
    acceptable status, or a TCP port accepting connections

Both must be positive in the same observation for the instance to count
as healthy. The deployment controller gates its commit-or-rollback
decision entirely on the Verdict returned here.

Probe never returns an error and never panics past its boundary: timeout,
connection refused, and context cancellation are all ordinary unhealthy
verdicts carrying the last observed result. Cancellation (operator
interrupt) reads the same as timeout, so an aborted deployment still
takes the rollback path.
*/
package probe
