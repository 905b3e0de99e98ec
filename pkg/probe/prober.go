package probe

import (
	"context"
	"time"

	"github.com/atharvakapadnis/ctOS/pkg/log"
	"github.com/atharvakapadnis/ctOS/pkg/metrics"
)

// LivenessQuerier answers whether the named instance's process is present
// and not exited. Satisfied by the runtime adapter.
type LivenessQuerier interface {
	IsRunning(ctx context.Context, name string) bool
}

// Verdict is the terminal result of a probe run. Healthy means both the
// runtime reported the instance running and the checker observed a
// positive signal within the deadline. LastResult carries the final
// observation either way, so an unhealthy verdict always explains itself.
type Verdict struct {
	Healthy    bool
	LastResult Result
	Attempts   int
	Elapsed    time.Duration
}

// Prober polls an instance's health surface until it turns healthy or a
// deadline expires
type Prober struct {
	liveness LivenessQuerier
}

// NewProber creates a prober that gates positive signals on runtime
// liveness
func NewProber(liveness LivenessQuerier) *Prober {
	return &Prober{liveness: liveness}
}

// Probe polls checker at interval until a positive signal or until timeout
// elapses. A positive signal requires IsRunning to be true at the same
// observation. Cancellation of ctx counts as unhealthy, never as success.
// Probe does not return an error: health failure is an expected result.
func (p *Prober) Probe(ctx context.Context, name string, checker Checker, timeout, interval time.Duration) Verdict {
	logger := log.WithComponent("probe")
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	verdict := Verdict{
		LastResult: Result{
			Healthy:   false,
			Message:   "no health check performed",
			CheckedAt: start,
		},
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		verdict.Attempts++
		result := p.observe(probeCtx, name, checker)
		verdict.LastResult = result
		metrics.ProbeDuration.Observe(result.Duration.Seconds())

		if result.Healthy {
			verdict.Healthy = true
			verdict.Elapsed = time.Since(start)
			logger.Debug().
				Str("instance", name).
				Int("attempts", verdict.Attempts).
				Dur("elapsed", verdict.Elapsed).
				Msg("instance healthy")
			return verdict
		}

		logger.Debug().
			Str("instance", name).
			Int("attempt", verdict.Attempts).
			Str("result", result.Message).
			Msg("health check negative")

		select {
		case <-ticker.C:
		case <-probeCtx.Done():
			verdict.Elapsed = time.Since(start)
			logger.Warn().
				Str("instance", name).
				Int("attempts", verdict.Attempts).
				Str("last_result", verdict.LastResult.Message).
				Msg("health verification deadline expired")
			return verdict
		}
	}
}

// observe performs one combined liveness and health observation
func (p *Prober) observe(ctx context.Context, name string, checker Checker) Result {
	start := time.Now()

	if !p.liveness.IsRunning(ctx, name) {
		return Result{
			Healthy:   false,
			Message:   "instance is not running",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	result := checker.Check(ctx)

	// The liveness and health observations race against process exit;
	// treat a cancelled context as unhealthy regardless of what the
	// checker saw.
	if ctx.Err() != nil {
		result.Healthy = false
		if result.Message == "" {
			result.Message = "probe cancelled"
		}
	}
	return result
}
