package runtime

import (
	"context"
	"fmt"

	"github.com/atharvakapadnis/ctOS/pkg/types"
)

// Adapter is the contract the deployment controller holds on the runtime
// managing the single named instance. The controller never touches the
// runtime directly; every instance mutation goes through this interface.
type Adapter interface {
	// Stop stops the named instance without discarding its resources.
	// Idempotent: stopping an already-stopped or absent instance is not
	// an error.
	Stop(ctx context.Context, name string) error

	// Start brings the instance up from the given artifact. Fails with
	// *StartError if the runtime cannot start it. Must not leave two
	// instances of the same name running.
	Start(ctx context.Context, name string, artifact *types.Artifact) error

	// Remove permanently discards the resources of stopped instances
	// under the given name. Idempotent; a running instance is left alone.
	Remove(ctx context.Context, name string) error

	// IsRunning is a point-in-time liveness query for the named instance
	IsRunning(ctx context.Context, name string) bool
}

// Puller is the artifact build/fetch collaborator: given an image
// reference it makes the artifact runnable locally. The controller treats
// this as an opaque, potentially slow step preceding resolution.
type Puller interface {
	Pull(ctx context.Context, imageRef string) error
}

// StartError reports that the runtime could not bring an instance up
type StartError struct {
	Name string
	Tag  string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start instance %s from artifact %s: %v", e.Name, e.Tag, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
