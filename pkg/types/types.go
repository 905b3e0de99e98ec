package types

import (
	"time"
)

// Artifact identifies a deployable unit in the registry.
// Immutable once created.
type Artifact struct {
	// Tag uniquely identifies the artifact within the registry
	Tag string `json:"tag"`

	// CreatedAt orders artifacts by recency
	CreatedAt time.Time `json:"created_at"`

	// SourceRef is an optional commit SHA or upstream version label
	SourceRef string `json:"source_ref,omitempty"`
}

// LatestSentinel resolves to the most recently created artifact.
const LatestSentinel = "latest"

// InstancePhase represents the observed state of the managed instance
type InstancePhase string

const (
	InstanceAbsent  InstancePhase = "absent"
	InstanceRunning InstancePhase = "running"
	InstanceStopped InstancePhase = "stopped"
)

// InstanceState is the last-known state of the single named instance.
// Only the controller, through the runtime adapter, mutates the instance;
// this value is re-persisted after every terminal transition.
type InstanceState struct {
	Name      string        `json:"name"`
	Phase     InstancePhase `json:"phase"`
	Artifact  *Artifact     `json:"artifact,omitempty"` // nil when Phase == Absent
	UpdatedAt time.Time     `json:"updated_at"`
}

// Outcome is the terminal result of a deployment attempt
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeRolledBack   Outcome = "rolled_back"
	OutcomeFatalFailure Outcome = "fatal_failure"
)

// Action classifies what the controller was asked to do
type Action string

const (
	ActionDeploy       Action = "deploy"
	ActionRollback     Action = "rollback"
	ActionAutoRollback Action = "auto_rollback"
)

// DeploymentAttempt captures one run of the controller state machine.
// Ephemeral: created per invocation and returned to the caller; the
// durable record of the run is the AuditRecord.
type DeploymentAttempt struct {
	ID                string    `json:"id"`
	InstanceName      string    `json:"instance_name"`
	RequestedArtifact *Artifact `json:"requested_artifact"`
	PreviousArtifact  *Artifact `json:"previous_artifact,omitempty"` // nil on first-ever deployment
	Outcome           Outcome   `json:"outcome"`
	Reason            string    `json:"reason,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

// AuditRecord is the persisted, append-only record of a terminal
// transition. Never mutated or deleted.
type AuditRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Instance    string    `json:"instance"`
	Action      Action    `json:"action"`
	ArtifactTag string    `json:"artifact_tag"`
	Outcome     Outcome   `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
}
