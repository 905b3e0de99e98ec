/*
Package runtime adapts the container runtime for the deployment controller.

The Adapter interface is the only path through which instance state is
mutated:

	Stop(name)             Stop without discarding (rollback target kept)
	Start(name, artifact)  Bring the instance up from an artifact
	Remove(name)           Discard stopped containers and snapshots
	IsRunning(name)        Point-in-time liveness query

Stop and Remove are idempotent so the controller can call them without
first querying state. Start failures are reported as *StartError carrying
the instance name, artifact tag, and underlying cause; the controller
routes these into its rollback branch.

ContainerdAdapter is the production implementation, talking to a
containerd socket in a dedicated namespace. Containers are labeled with
the instance name so the adapter can find every container belonging to an
instance regardless of which artifact it was created from. During a
deployment the old container stays on disk, stopped, until the controller
commits; that retained container is what makes the rollback path fast (the
task is recreated, nothing is re-pulled).

The Puller interface exposes image fetching separately. It is the "build
collaborator" slot: the controller never pulls, but the operator surface
can pull before registering an artifact.
*/
package runtime
