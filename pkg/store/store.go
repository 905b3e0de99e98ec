package store

import (
	"errors"

	"github.com/atharvakapadnis/ctOS/pkg/types"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for controller state storage.
// Implemented by BoltDB-backed storage.
type Store interface {
	// Artifacts
	CreateArtifact(artifact *types.Artifact) error
	GetArtifact(tag string) (*types.Artifact, error)
	ListArtifacts() ([]*types.Artifact, error)
	DeleteArtifact(tag string) error

	// Instance state (one record per instance name)
	SaveInstanceState(state *types.InstanceState) error
	GetInstanceState(name string) (*types.InstanceState, error)

	// Utility
	Close() error
}
