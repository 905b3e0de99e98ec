package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/atharvakapadnis/ctOS/pkg/store"
	"github.com/atharvakapadnis/ctOS/pkg/types"
)

var (
	// ErrNotFound is returned when no artifact matches the requested identifier
	ErrNotFound = errors.New("artifact not found")

	// ErrNoPreviousArtifact is returned when the registry holds no rollback
	// target. This is the terminal condition for automatic rollback.
	ErrNoPreviousArtifact = errors.New("no previous artifact: manual intervention required")

	// ErrAlreadyExists is returned when registering a tag that is taken.
	// Artifacts are immutable once created.
	ErrAlreadyExists = errors.New("artifact already exists")

	// ErrReservedTag is returned when registering the "latest" sentinel as a tag
	ErrReservedTag = errors.New("tag is reserved")
)

// Registry resolves version identifiers to artifacts and orders them by
// recency. Backed by the persistent store so the artifact catalog survives
// process restarts.
type Registry struct {
	store store.Store
}

// NewRegistry creates a registry over the given store
func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

// Add registers a new artifact. The tag must be unique and must not be the
// "latest" sentinel. A zero CreatedAt is stamped with the current time.
func (r *Registry) Add(artifact *types.Artifact) error {
	if artifact.Tag == "" {
		return fmt.Errorf("artifact tag must not be empty")
	}
	if artifact.Tag == types.LatestSentinel {
		return fmt.Errorf("tag %q: %w", artifact.Tag, ErrReservedTag)
	}

	if _, err := r.store.GetArtifact(artifact.Tag); err == nil {
		return fmt.Errorf("tag %q: %w", artifact.Tag, ErrAlreadyExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check existing artifact: %w", err)
	}

	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now()
	}

	if err := r.store.CreateArtifact(artifact); err != nil {
		return fmt.Errorf("failed to persist artifact: %w", err)
	}
	return nil
}

// Resolve maps an identifier to an artifact. The identifier is either an
// explicit tag or the "latest" sentinel, which resolves to the most
// recently created artifact.
func (r *Registry) Resolve(identifier string) (*types.Artifact, error) {
	if identifier == types.LatestSentinel {
		artifacts, err := r.sorted()
		if err != nil {
			return nil, err
		}
		if len(artifacts) == 0 {
			return nil, fmt.Errorf("registry is empty: %w", ErrNotFound)
		}
		return artifacts[0], nil
	}

	artifact, err := r.store.GetArtifact(identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("tag %q: %w", identifier, ErrNotFound)
		}
		return nil, err
	}
	return artifact, nil
}

// Previous returns the most recently created artifact whose tag differs
// from excluding. This is the rollback target query: during an automatic
// rollback, excluding is the artifact that just failed verification.
func (r *Registry) Previous(excluding *types.Artifact) (*types.Artifact, error) {
	artifacts, err := r.sorted()
	if err != nil {
		return nil, err
	}

	// A registry holding zero or one artifact has no rollback target,
	// regardless of which tag is excluded
	if len(artifacts) < 2 {
		return nil, ErrNoPreviousArtifact
	}

	for _, a := range artifacts {
		if a.Tag != excluding.Tag {
			return a, nil
		}
	}
	return nil, ErrNoPreviousArtifact
}

// List returns all artifacts in registry order: newest first
func (r *Registry) List() ([]*types.Artifact, error) {
	return r.sorted()
}

// sorted returns all artifacts ordered by creation time descending.
// Equal timestamps fall back to tag order, descending, so the "previous"
// choice is reproducible.
func (r *Registry) sorted() ([]*types.Artifact, error) {
	artifacts, err := r.store.ListArtifacts()
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
		}
		return artifacts[i].Tag > artifacts[j].Tag
	})
	return artifacts, nil
}
