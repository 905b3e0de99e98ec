/*
Package registry resolves version identifiers to deployable artifacts and
orders them by recency.

The registry answers two questions for the deployment controller:

	Resolve(identifier)   Which artifact does this identifier name?
	                      Accepts an explicit tag or the "latest"
	                      sentinel (most recently created artifact).

	Previous(excluding)   Which artifact is the rollback target? Returns
	                      the most recently created artifact whose tag
	                      differs from the one being excluded, which is
	                      normally the artifact that just failed health
	                      verification.

Ordering is by CreatedAt descending with ties broken by tag, so the
rollback target is deterministic even when artifacts share a timestamp.
Previous fails with ErrNoPreviousArtifact when the registry holds zero or
one artifact; the controller treats that as the terminal
"manual intervention required" condition rather than retrying.

The earlier shell tooling picked the "second most recent image" by
filtering the literal tag "latest" out of an image listing. The structural
query here replaces that name-matching: the sentinel is reserved at Add
time and recency is compared on creation timestamps, not tag spelling.
*/
package registry
