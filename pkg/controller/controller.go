package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atharvakapadnis/ctOS/pkg/audit"
	"github.com/atharvakapadnis/ctOS/pkg/events"
	"github.com/atharvakapadnis/ctOS/pkg/log"
	"github.com/atharvakapadnis/ctOS/pkg/metrics"
	"github.com/atharvakapadnis/ctOS/pkg/probe"
	"github.com/atharvakapadnis/ctOS/pkg/registry"
	"github.com/atharvakapadnis/ctOS/pkg/runtime"
	"github.com/atharvakapadnis/ctOS/pkg/store"
	"github.com/atharvakapadnis/ctOS/pkg/types"
)

var (
	// ErrAlreadyInProgress is returned when a deploy or rollback is
	// invoked while another run is active for the same instance name.
	// Callers should retry later; requests are never queued.
	ErrAlreadyInProgress = errors.New("deployment already in progress")

	// ErrNoCurrentArtifact is returned by rollback("auto") when no
	// deployment has ever been recorded for the instance
	ErrNoCurrentArtifact = errors.New("no current artifact recorded for instance")
)

// RollbackAuto is the rollback identifier that selects the previous
// artifact relative to the one currently deployed
const RollbackAuto = "auto"

// Config carries the tunables of one managed instance
type Config struct {
	// InstanceName is the single named instance this controller manages
	InstanceName string

	// HealthTimeout bounds the health verification window after a start
	HealthTimeout time.Duration

	// PollInterval is the delay between health observations
	PollInterval time.Duration

	// MaxRollbackAttempts bounds automatic rollback. Fixed at 1 in
	// production configuration; exposed for testability.
	MaxRollbackAttempts int
}

// DefaultConfig returns a Config with production defaults
func DefaultConfig(instanceName string) Config {
	return Config{
		InstanceName:        instanceName,
		HealthTimeout:       60 * time.Second,
		PollInterval:        2 * time.Second,
		MaxRollbackAttempts: 1,
	}
}

// Controller sequences the deploy-then-verify-then-commit-or-revert
// workflow for a single named instance. All instance mutation flows
// through the runtime adapter; all terminal transitions are recorded in
// the audit trail and persisted to the store.
type Controller struct {
	cfg     Config
	reg     *registry.Registry
	rt      runtime.Adapter
	prober  *probe.Prober
	checker probe.Checker
	audit   *audit.Log
	store   store.Store
	broker  *events.Broker
	logger  zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a controller. The broker may be nil when no event
// consumers exist (unit tests, one-shot CLI runs without --nats-url).
func New(cfg Config, reg *registry.Registry, rt runtime.Adapter, checker probe.Checker, auditLog *audit.Log, st store.Store, broker *events.Broker) *Controller {
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxRollbackAttempts <= 0 {
		cfg.MaxRollbackAttempts = 1
	}

	return &Controller{
		cfg:      cfg,
		reg:      reg,
		rt:       rt,
		prober:   probe.NewProber(rt),
		checker:  checker,
		audit:    auditLog,
		store:    st,
		broker:   broker,
		logger:   log.WithComponent("controller"),
		inFlight: make(map[string]bool),
	}
}

// Deploy runs the full state machine for the given version identifier
// (an explicit tag or the "latest" sentinel). Exactly one run may be
// active per instance name; concurrent calls fail fast with
// ErrAlreadyInProgress.
//
// All failures past resolution are handled inside the machine and routed
// to the rollback or fatal branch; only the terminal outcome is returned,
// paired with a durable audit record.
func (c *Controller) Deploy(ctx context.Context, identifier string) (*types.DeploymentAttempt, error) {
	name := c.cfg.InstanceName
	if !c.acquire(name) {
		return nil, fmt.Errorf("instance %s: %w", name, ErrAlreadyInProgress)
	}
	defer c.release(name)

	// Resolving: a bad identifier is surfaced immediately, before any
	// instance mutation
	requested, err := c.reg.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	attempt := c.newAttempt(requested)
	logger := c.logger.With().
		Str("instance", name).
		Str("artifact", requested.Tag).
		Str("attempt_id", attempt.ID).
		Logger()

	metrics.DeploymentsInFlight.Inc()
	defer metrics.DeploymentsInFlight.Dec()

	logger.Info().Msg("starting deployment")
	c.publish(&events.Event{
		Type:        events.EventDeploymentStarted,
		Instance:    name,
		ArtifactTag: requested.Tag,
	})

	// StoppingOld: the previous instance is stopped but kept on disk so
	// a rollback target exists until the new instance is verified
	if err := c.rt.Stop(ctx, name); err != nil {
		// The old instance may still be running; starting the new one
		// now could leave two live instances. Surface as fatal without
		// touching anything else.
		logger.Error().Err(err).Msg("failed to stop current instance")
		return c.finalize(attempt, types.ActionDeploy, requested.Tag, prevTag(attempt), types.OutcomeFatalFailure,
			fmt.Sprintf("failed to stop current instance: %v", err)), nil
	}
	c.publish(&events.Event{Type: events.EventInstanceStopped, Instance: name})

	// StartingNew
	if err := c.rt.Start(ctx, name, requested); err != nil {
		logger.Error().Err(err).Msg("new instance failed to start")
		return c.autoRollback(ctx, attempt, requested,
			fmt.Sprintf("start failure: %v", err)), nil
	}
	c.publish(&events.Event{
		Type:        events.EventInstanceStarted,
		Instance:    name,
		ArtifactTag: requested.Tag,
	})

	// HealthChecking
	verdict := c.prober.Probe(ctx, name, c.checker, c.cfg.HealthTimeout, c.cfg.PollInterval)
	if !verdict.Healthy {
		logger.Warn().
			Str("last_result", verdict.LastResult.Message).
			Int("attempts", verdict.Attempts).
			Msg("health verification failed")
		return c.autoRollback(ctx, attempt, requested,
			fmt.Sprintf("unhealthy after %d checks: %s", verdict.Attempts, verdict.LastResult.Message)), nil
	}

	// Committing: the new instance is verified, the old one is no longer
	// needed as a rollback target
	if err := c.rt.Remove(ctx, name); err != nil {
		// The deployment itself succeeded; stale resources are an
		// operational cleanup concern, not a failed rollout
		logger.Warn().Err(err).Msg("failed to remove previous instance resources")
	}

	logger.Info().Dur("elapsed", verdict.Elapsed).Msg("deployment succeeded")
	return c.finalize(attempt, types.ActionDeploy, requested.Tag, requested.Tag, types.OutcomeSuccess, ""), nil
}

// Rollback reverts the instance to an earlier artifact. The identifier is
// either RollbackAuto, which selects Previous(excluding the currently
// recorded artifact), or an explicit tag, which bypasses recency logic.
// Both paths require health verification before declaring success; a
// failed rollback is fatal and is never retried automatically.
func (c *Controller) Rollback(ctx context.Context, identifier, reason string) (*types.DeploymentAttempt, error) {
	name := c.cfg.InstanceName
	if !c.acquire(name) {
		return nil, fmt.Errorf("instance %s: %w", name, ErrAlreadyInProgress)
	}
	defer c.release(name)

	target, err := c.resolveRollbackTarget(identifier)
	if err != nil {
		return nil, err
	}

	// Past this point the instance slot is being mutated; an operator
	// interrupt must not strand it stopped halfway through. Health
	// verification stays bounded by its own timeout.
	ctx = context.WithoutCancel(ctx)

	attempt := c.newAttempt(target)
	logger := c.logger.With().
		Str("instance", name).
		Str("artifact", target.Tag).
		Str("attempt_id", attempt.ID).
		Logger()

	metrics.DeploymentsInFlight.Inc()
	defer metrics.DeploymentsInFlight.Dec()
	metrics.RollbacksTotal.WithLabelValues("manual").Inc()

	logger.Info().Str("reason", reason).Msg("starting rollback")

	if err := c.rt.Stop(ctx, name); err != nil {
		logger.Error().Err(err).Msg("failed to stop current instance")
		return c.finalize(attempt, types.ActionRollback, target.Tag, prevTag(attempt), types.OutcomeFatalFailure,
			fmt.Sprintf("failed to stop current instance: %v", err)), nil
	}
	c.publish(&events.Event{Type: events.EventInstanceStopped, Instance: name})

	// StartingRollback: a rollback is already the safety net, so any
	// failure past this point is terminal rather than retried
	if err := c.rt.Start(ctx, name, target); err != nil {
		logger.Error().Err(err).Msg("rollback target failed to start")
		return c.finalize(attempt, types.ActionRollback, target.Tag, prevTag(attempt), types.OutcomeFatalFailure,
			fmt.Sprintf("start failure during rollback: %v", err)), nil
	}
	c.publish(&events.Event{
		Type:        events.EventInstanceStarted,
		Instance:    name,
		ArtifactTag: target.Tag,
	})

	verdict := c.prober.Probe(ctx, name, c.checker, c.cfg.HealthTimeout, c.cfg.PollInterval)
	if !verdict.Healthy {
		logger.Error().
			Str("last_result", verdict.LastResult.Message).
			Msg("rollback target failed health verification")
		return c.finalize(attempt, types.ActionRollback, target.Tag, target.Tag, types.OutcomeFatalFailure,
			fmt.Sprintf("rollback target unhealthy: %s", verdict.LastResult.Message)), nil
	}

	if err := c.rt.Remove(ctx, name); err != nil {
		logger.Warn().Err(err).Msg("failed to remove stopped instance resources")
	}

	logger.Info().Msg("rollback succeeded")
	return c.finalize(attempt, types.ActionRollback, target.Tag, target.Tag, types.OutcomeRolledBack, reason), nil
}

// CurrentState returns the last-known persisted state of the managed
// instance, or an Absent state when nothing was ever recorded
func (c *Controller) CurrentState() (*types.InstanceState, error) {
	state, err := c.store.GetInstanceState(c.cfg.InstanceName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &types.InstanceState{
				Name:  c.cfg.InstanceName,
				Phase: types.InstanceAbsent,
			}, nil
		}
		return nil, err
	}
	return state, nil
}

// autoRollback handles the RollingBack branch of a failed deployment:
// resolve the previous artifact, restart it, and verify health. Bounded
// by MaxRollbackAttempts (1 by default) so a bad registry never produces
// an unbounded rollback cascade across historical artifacts.
func (c *Controller) autoRollback(ctx context.Context, attempt *types.DeploymentAttempt, failed *types.Artifact, cause string) *types.DeploymentAttempt {
	// The safety net must outlive the caller's context: an externally
	// aborted deploy lands here with ctx already cancelled, and the
	// previous artifact still has to be restored. The rollback probe is
	// bounded by its own timeout, so this never blocks indefinitely.
	ctx = context.WithoutCancel(ctx)

	name := c.cfg.InstanceName
	logger := c.logger.With().
		Str("instance", name).
		Str("failed_artifact", failed.Tag).
		Str("attempt_id", attempt.ID).
		Logger()

	metrics.RollbacksTotal.WithLabelValues("auto").Inc()

	// The failed instance may be partially up; stop it before reviving
	// the previous artifact. Errors here are folded into the fatal path
	// below through the start attempt.
	if err := c.rt.Stop(ctx, name); err != nil {
		logger.Error().Err(err).Msg("failed to stop failed instance before rollback")
	}

	target, err := c.reg.Previous(failed)
	if err != nil {
		logger.Error().Err(err).Msg("no rollback target available")
		return c.finalize(attempt, types.ActionAutoRollback, failed.Tag, failed.Tag, types.OutcomeFatalFailure,
			fmt.Sprintf("%s; %v", cause, err))
	}

	for i := 1; i <= c.cfg.MaxRollbackAttempts; i++ {
		logger.Warn().
			Str("rollback_target", target.Tag).
			Int("attempt", i).
			Str("cause", cause).
			Msg("rolling back to previous artifact")

		if err := c.rt.Start(ctx, name, target); err != nil {
			logger.Error().Err(err).Msg("rollback target failed to start")
			return c.finalize(attempt, types.ActionAutoRollback, target.Tag, target.Tag, types.OutcomeFatalFailure,
				fmt.Sprintf("%s; rollback start failure: %v", cause, err))
		}

		verdict := c.prober.Probe(ctx, name, c.checker, c.cfg.HealthTimeout, c.cfg.PollInterval)
		if verdict.Healthy {
			if err := c.rt.Remove(ctx, name); err != nil {
				logger.Warn().Err(err).Msg("failed to remove failed instance resources")
			}
			logger.Info().Str("rollback_target", target.Tag).Msg("automatic rollback succeeded")
			return c.finalize(attempt, types.ActionAutoRollback, target.Tag, target.Tag, types.OutcomeRolledBack, cause)
		}

		logger.Error().
			Str("last_result", verdict.LastResult.Message).
			Msg("rollback target failed health verification")
		if err := c.rt.Stop(ctx, name); err != nil {
			logger.Error().Err(err).Msg("failed to stop unhealthy rollback target")
		}
	}

	return c.finalize(attempt, types.ActionAutoRollback, target.Tag, target.Tag, types.OutcomeFatalFailure,
		fmt.Sprintf("%s; rollback target %s also failed health verification", cause, target.Tag))
}

// resolveRollbackTarget maps a rollback identifier to an artifact
func (c *Controller) resolveRollbackTarget(identifier string) (*types.Artifact, error) {
	if identifier != RollbackAuto {
		return c.reg.Resolve(identifier)
	}

	state, err := c.CurrentState()
	if err != nil {
		return nil, err
	}
	if state.Artifact == nil {
		return nil, fmt.Errorf("instance %s: %w", c.cfg.InstanceName, ErrNoCurrentArtifact)
	}
	return c.reg.Previous(state.Artifact)
}

// finalize records the terminal transition: exactly one audit record, the
// persisted instance state, the terminal event, and metrics. artifactTag
// is what the audit record references; stateTag is the artifact the
// instance is actually left on, which differs on fatal paths where the
// requested artifact never replaced the old one. Audit write failures
// degrade to stderr inside the audit package and never fail the
// deployment.
func (c *Controller) finalize(attempt *types.DeploymentAttempt, action types.Action, artifactTag, stateTag string, outcome types.Outcome, reason string) *types.DeploymentAttempt {
	attempt.Outcome = outcome
	attempt.Reason = reason
	attempt.FinishedAt = time.Now()

	c.persistState(stateTag, outcome)

	record := &types.AuditRecord{
		Timestamp:   attempt.FinishedAt,
		Instance:    c.cfg.InstanceName,
		Action:      action,
		ArtifactTag: artifactTag,
		Outcome:     outcome,
		Reason:      reason,
	}
	if err := c.audit.Append(record); err != nil {
		c.logger.Warn().Err(err).Msg("audit trail degraded")
	}

	metrics.DeploymentsTotal.WithLabelValues(string(action), string(outcome)).Inc()
	metrics.DeploymentDuration.Observe(attempt.FinishedAt.Sub(attempt.StartedAt).Seconds())

	c.publish(&events.Event{
		Type:        terminalEvent(outcome),
		Instance:    c.cfg.InstanceName,
		ArtifactTag: artifactTag,
		Message:     reason,
	})
	return attempt
}

// persistState saves the last-known instance state after a terminal
// transition. Success and rollback leave the named artifact running; a
// fatal failure leaves whatever the runtime reports, recorded with the
// artifact the controller last acted on.
func (c *Controller) persistState(artifactTag string, outcome types.Outcome) {
	phase := types.InstanceRunning
	if outcome == types.OutcomeFatalFailure {
		// Re-query rather than assume: fatal paths can end with the
		// instance stopped, running an unhealthy artifact, or absent
		if c.rt.IsRunning(context.Background(), c.cfg.InstanceName) {
			phase = types.InstanceRunning
		} else if artifactTag != "" {
			phase = types.InstanceStopped
		} else {
			phase = types.InstanceAbsent
		}
	}

	state := &types.InstanceState{
		Name:      c.cfg.InstanceName,
		Phase:     phase,
		UpdatedAt: time.Now(),
	}
	if artifactTag != "" {
		if artifact, err := c.reg.Resolve(artifactTag); err == nil {
			state.Artifact = artifact
		} else {
			state.Artifact = &types.Artifact{Tag: artifactTag}
		}
	}

	if err := c.store.SaveInstanceState(state); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist instance state")
	}
}

func (c *Controller) newAttempt(requested *types.Artifact) *types.DeploymentAttempt {
	attempt := &types.DeploymentAttempt{
		ID:                uuid.New().String(),
		InstanceName:      c.cfg.InstanceName,
		RequestedArtifact: requested,
		StartedAt:         time.Now(),
	}
	if state, err := c.CurrentState(); err == nil {
		attempt.PreviousArtifact = state.Artifact
	}
	return attempt
}

func (c *Controller) publish(event *events.Event) {
	if c.broker != nil {
		c.broker.Publish(event)
	}
}

// acquire takes the per-instance in-flight guard. Returns false when a
// run is already active; callers must not queue behind it.
func (c *Controller) acquire(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[name] {
		return false
	}
	c.inFlight[name] = true
	return true
}

func (c *Controller) release(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, name)
}

// prevTag is the artifact the instance was on before this attempt, empty
// on a first-ever deployment
func prevTag(attempt *types.DeploymentAttempt) string {
	if attempt.PreviousArtifact == nil {
		return ""
	}
	return attempt.PreviousArtifact.Tag
}

func terminalEvent(outcome types.Outcome) events.EventType {
	switch outcome {
	case types.OutcomeSuccess:
		return events.EventDeploymentSucceeded
	case types.OutcomeRolledBack:
		return events.EventDeploymentRolledBack
	default:
		return events.EventDeploymentFailed
	}
}
