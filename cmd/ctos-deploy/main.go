package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atharvakapadnis/ctOS/pkg/audit"
	"github.com/atharvakapadnis/ctOS/pkg/config"
	"github.com/atharvakapadnis/ctOS/pkg/controller"
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
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	// An operator interrupt cancels the command context; the controller
	// reads that as an unhealthy signal and takes the rollback path
	// instead of dying mid-transition.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ctos-deploy",
	Short: "ctOS deployment and rollback controller",
	Long: `ctos-deploy manages the lifecycle of the single containerized ctOS
instance: deploy a new version, verify it against its health endpoint,
and automatically roll back to the previous known-good artifact when
verification fails. Every transition is recorded in an append-only
audit trail.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ctos-deploy version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ctos.yaml)")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(artifactCmd)
}

var deployCmd = &cobra.Command{
	Use:   "deploy [version]",
	Short: "Deploy a version to the managed instance",
	Long: `Deploy resolves the given version (or the most recent artifact when
omitted), stops the current instance while keeping it as a rollback
target, starts the new one, and gates success on the configured health
check. On failure the previous artifact is redeployed automatically.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier := types.LatestSentinel
		if len(args) == 1 {
			identifier = args[0]
		}

		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		attempt, err := env.ctrl.Deploy(cmd.Context(), identifier)
		if err != nil {
			return err
		}
		return reportDeploy(attempt)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [version|auto]",
	Short: "Roll the managed instance back to an earlier version",
	Long: `Rollback reverts the instance to an earlier artifact. With "auto" (the
default) the most recent artifact other than the current one is chosen;
an explicit version bypasses recency logic. The rollback target must
still pass health verification before the rollback is declared done.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier := controller.RollbackAuto
		if len(args) == 1 {
			identifier = args[0]
		}
		reason, _ := cmd.Flags().GetString("reason")

		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		attempt, err := env.ctrl.Rollback(cmd.Context(), identifier, reason)
		if err != nil {
			return err
		}
		return reportRollback(attempt)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the managed instance's state",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		state, err := env.ctrl.CurrentState()
		if err != nil {
			return err
		}

		fmt.Printf("Instance:  %s\n", state.Name)
		fmt.Printf("Phase:     %s\n", state.Phase)
		if state.Artifact != nil {
			fmt.Printf("Artifact:  %s\n", state.Artifact.Tag)
		}
		if !state.UpdatedAt.IsZero() {
			fmt.Printf("Updated:   %s\n", state.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Printf("Running:   %v\n", env.rt.IsRunning(cmd.Context(), state.Name))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the deployment audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := setupWithoutRuntime()
		if err != nil {
			return err
		}
		defer env.close()

		records, err := env.auditLog.Records()
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			for _, r := range records {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		}

		if len(records) == 0 {
			fmt.Println("No deployments recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tACTION\tARTIFACT\tOUTCOME\tREASON")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.Timestamp.Format(time.RFC3339), r.Action, r.ArtifactTag, r.Outcome, r.Reason)
		}
		return w.Flush()
	},
}

func init() {
	rollbackCmd.Flags().String("reason", "", "operator-supplied rollback reason for the audit trail")
	historyCmd.Flags().Bool("json", false, "emit records as JSON lines")
}

// environment bundles the wired components behind one cleanup call
type environment struct {
	cfg      config.Config
	st       store.Store
	reg      *registry.Registry
	rt       *runtime.ContainerdAdapter
	auditLog *audit.Log
	broker   *events.Broker
	nats     *events.NATSPublisher
	ctrl     *controller.Controller
}

func (e *environment) close() {
	if e.nats != nil {
		e.nats.Close()
	}
	if e.broker != nil {
		e.broker.Stop()
	}
	if e.auditLog != nil {
		e.auditLog.Close()
	}
	if e.rt != nil {
		e.rt.Close()
	}
	if e.st != nil {
		e.st.Close()
	}
}

// setup wires the full controller stack from configuration
func setup() (*environment, error) {
	env, err := setupWithoutRuntime()
	if err != nil {
		return nil, err
	}

	rt, err := runtime.NewContainerdAdapter(env.cfg.Runtime.Socket, env.cfg.Runtime.Namespace)
	if err != nil {
		env.close()
		return nil, err
	}
	env.rt = rt

	var checker probe.Checker
	switch env.cfg.Health.Type {
	case "tcp":
		checker = probe.NewTCPChecker(env.cfg.Health.Target)
	default:
		checker = probe.NewHTTPChecker(env.cfg.Health.Target)
	}

	env.broker = events.NewBroker()
	env.broker.Start()

	logger := log.WithComponent("main")

	if env.cfg.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(env.cfg.NATSURL, "", env.broker)
		if err != nil {
			// Event mirroring is optional; a dead NATS server must not
			// block a deployment
			logger.Warn().Err(err).Msg("event mirroring disabled")
		} else {
			natsPub.Start()
			env.nats = natsPub
		}
	}

	if env.cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(env.cfg.MetricsAddr, mux); err != nil {
				logger.Warn().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	ctrl := controller.New(controller.Config{
		InstanceName:        env.cfg.InstanceName,
		HealthTimeout:       env.cfg.Health.Timeout,
		PollInterval:        env.cfg.Health.PollInterval,
		MaxRollbackAttempts: env.cfg.MaxRollbackAttempts,
	}, env.reg, rt, checker, env.auditLog, env.st, env.broker)
	env.ctrl = ctrl
	return env, nil
}

// setupWithoutRuntime wires only the persistent pieces, for commands that
// never touch the container runtime
func setupWithoutRuntime() (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &environment{
		cfg:      cfg,
		st:       st,
		reg:      registry.NewRegistry(st),
		auditLog: auditLog,
	}, nil
}

// reportDeploy prints the human-readable summary of a deploy attempt and
// maps non-success outcomes to a failing exit signal
func reportDeploy(attempt *types.DeploymentAttempt) error {
	elapsed := attempt.FinishedAt.Sub(attempt.StartedAt).Round(time.Millisecond)

	switch attempt.Outcome {
	case types.OutcomeSuccess:
		fmt.Printf("✓ Deployed %s (%s)\n", attempt.RequestedArtifact.Tag, elapsed)
		return nil
	case types.OutcomeRolledBack:
		return fmt.Errorf("deployment failed and was rolled back: %s", attempt.Reason)
	default:
		return fmt.Errorf("fatal failure, manual intervention required: %s", attempt.Reason)
	}
}

// reportRollback is like reportDeploy, but for a rollback a RolledBack
// outcome is the success case
func reportRollback(attempt *types.DeploymentAttempt) error {
	elapsed := attempt.FinishedAt.Sub(attempt.StartedAt).Round(time.Millisecond)

	if attempt.Outcome == types.OutcomeRolledBack {
		fmt.Printf("✓ Rolled back to %s (%s)\n", attempt.RequestedArtifact.Tag, elapsed)
		return nil
	}
	return fmt.Errorf("fatal failure, manual intervention required: %s", attempt.Reason)
}
