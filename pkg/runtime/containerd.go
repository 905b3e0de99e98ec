package runtime

import (
	"context"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/atharvakapadnis/ctOS/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace for ctOS instances
	DefaultNamespace = "ctos"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// labelInstance marks containers belonging to a managed instance name
	labelInstance = "ctos.instance"

	// labelArtifact records the artifact tag a container was created from
	labelArtifact = "ctos.artifact"

	// stopTimeout is the grace period before SIGKILL
	stopTimeout = 10 * time.Second

	// killTimeout bounds the wait for a SIGKILL to take effect
	killTimeout = 5 * time.Second
)

// ContainerdAdapter implements Adapter and Puller using containerd.
//
// One managed instance name maps to at most one running container, but
// during a deployment two containers for the name coexist: the old one
// stopped (its task deleted, container and snapshot retained as the
// rollback target) and the new one running. Containers are identified by
// name plus artifact tag and discovered through the ctos.instance label.
type ContainerdAdapter struct {
	client    *containerd.Client
	namespace string

	// Mounts are optional read-only bind mounts applied to every
	// container started by this adapter (config files, data dirs).
	Mounts []specs.Mount
}

// NewContainerdAdapter connects to containerd at the given socket
func NewContainerdAdapter(socketPath, namespace string) (*ContainerdAdapter, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdAdapter{
		client:    client,
		namespace: namespace,
	}, nil
}

// Close closes the containerd client connection
func (r *ContainerdAdapter) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Pull fetches and unpacks an image so the artifact is locally runnable
func (r *ContainerdAdapter) Pull(ctx context.Context, imageRef string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	if _, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}
	return nil
}

// Stop stops every running container of the named instance. The container
// and its snapshot are retained so the instance can be restarted or kept
// as a rollback target. Absent or already-stopped instances are not an
// error.
func (r *ContainerdAdapter) Stop(ctx context.Context, name string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.instanceContainers(ctx, name)
	if err != nil {
		return err
	}

	for _, container := range containers {
		task, err := container.Task(ctx, nil)
		if err != nil {
			// No task: container already stopped
			continue
		}

		if err := r.stopTask(ctx, task); err != nil {
			return fmt.Errorf("failed to stop container %s: %w", container.ID(), err)
		}
	}
	return nil
}

// Start brings the instance up from the given artifact. If a stopped
// container for this name and artifact already exists (the rollback
// case), its task is recreated; otherwise a fresh container is created
// from the artifact's image.
func (r *ContainerdAdapter) Start(ctx context.Context, name string, artifact *types.Artifact) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID(name, artifact.Tag))
	if err != nil {
		container, err = r.createContainer(ctx, name, artifact)
		if err != nil {
			return &StartError{Name: name, Tag: artifact.Tag, Err: err}
		}
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return &StartError{Name: name, Tag: artifact.Tag, Err: fmt.Errorf("failed to create task: %w", err)}
	}

	if err := task.Start(ctx); err != nil {
		// Clean up the dead task so a later start attempt is not blocked
		_, _ = task.Delete(ctx)
		return &StartError{Name: name, Tag: artifact.Tag, Err: fmt.Errorf("failed to start task: %w", err)}
	}
	return nil
}

// Remove discards all stopped containers of the named instance along with
// their snapshots. A running container is left untouched. Idempotent.
func (r *ContainerdAdapter) Remove(ctx context.Context, name string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.instanceContainers(ctx, name)
	if err != nil {
		return err
	}

	for _, container := range containers {
		task, err := container.Task(ctx, nil)
		if err == nil {
			status, serr := task.Status(ctx)
			if serr == nil && status.Status == containerd.Running {
				continue
			}
			if _, err := task.Delete(ctx); err != nil {
				return fmt.Errorf("failed to delete task for %s: %w", container.ID(), err)
			}
		}

		if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
			return fmt.Errorf("failed to delete container %s: %w", container.ID(), err)
		}
	}
	return nil
}

// IsRunning reports whether any container of the named instance has a
// running task
func (r *ContainerdAdapter) IsRunning(ctx context.Context, name string) bool {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.instanceContainers(ctx, name)
	if err != nil {
		return false
	}

	for _, container := range containers {
		task, err := container.Task(ctx, nil)
		if err != nil {
			continue
		}
		status, err := task.Status(ctx)
		if err != nil {
			continue
		}
		if status.Status == containerd.Running {
			return true
		}
	}
	return false
}

func (r *ContainerdAdapter) createContainer(ctx context.Context, name string, artifact *types.Artifact) (containerd.Container, error) {
	image, err := r.client.GetImage(ctx, artifact.Tag)
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", artifact.Tag, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
	}
	if len(r.Mounts) > 0 {
		opts = append(opts, oci.WithMounts(r.Mounts))
	}

	container, err := r.client.NewContainer(
		ctx,
		containerID(name, artifact.Tag),
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID(name, artifact.Tag)+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(map[string]string{
			labelInstance: name,
			labelArtifact: artifact.Tag,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	return container, nil
}

// stopTask sends SIGTERM, waits up to stopTimeout, escalates to SIGKILL
// and waits for the exit to land, then deletes the task. The container
// itself is retained.
func (r *ContainerdAdapter) stopTask(ctx context.Context, task containerd.Task) error {
	// Wait on the parent context so the exit channel stays usable after
	// the graceful window expires
	statusC, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	if err := task.Kill(ctx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal task: %w", err)
	}

	select {
	case <-statusC:
		// Task exited gracefully
	case <-time.After(stopTimeout):
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
		// containerd rejects deleting a task that is still running, so
		// the kill has to be observed before the delete
		select {
		case <-statusC:
		case <-time.After(killTimeout):
			return fmt.Errorf("task did not exit after SIGKILL")
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

func (r *ContainerdAdapter) instanceContainers(ctx context.Context, name string) ([]containerd.Container, error) {
	containers, err := r.client.Containers(ctx, fmt.Sprintf(`labels.%q==%q`, labelInstance, name))
	if err != nil {
		return nil, fmt.Errorf("failed to list containers for instance %s: %w", name, err)
	}
	return containers, nil
}

// containerID derives a containerd-safe ID from instance name and tag
func containerID(name, tag string) string {
	sanitized := strings.NewReplacer(":", "-", "/", "-", "@", "-").Replace(tag)
	return name + "-" + sanitized
}
