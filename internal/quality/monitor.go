package quality

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/marcant0n/voxid/internal/observe"
	"github.com/marcant0n/voxid/pkg/speaker"
)

// Runner launches a re-collection job. The production implementation
// detaches the job into a goroutine; tests substitute a synchronous one to
// observe the outcome.
type Runner interface {
	Run(job func(ctx context.Context))
}

// GoRunner runs jobs in detached goroutines with a fresh background
// context, so a re-collection outlives the request that triggered it.
type GoRunner struct{}

var _ Runner = GoRunner{}

func (GoRunner) Run(job func(ctx context.Context)) {
	go job(context.Background())
}

// SyncRunner runs jobs inline. Meant for tests and for the collect-only
// CLI mode where the process should wait for the run to finish.
type SyncRunner struct{}

var _ Runner = SyncRunner{}

func (SyncRunner) Run(job func(ctx context.Context)) {
	job(context.Background())
}

// RecollectFunc performs one re-collection run for a group. Errors are
// logged by the monitor, never propagated back to the triggering caller.
type RecollectFunc func(ctx context.Context, group string) error

// Monitor reviews session outcomes and fires re-collection through the
// cooldown gate.
type Monitor struct {
	recollectThreshold float64
	gate               *CooldownLog
	runner             Runner
	metrics            *observe.Metrics
}

// NewMonitor creates a Monitor. recollectThreshold ≤ 0 selects
// [DefaultRecollectThreshold]; a nil runner selects [GoRunner].
func NewMonitor(recollectThreshold float64, gate *CooldownLog, runner Runner) *Monitor {
	if runner == nil {
		runner = GoRunner{}
	}
	return &Monitor{
		recollectThreshold: recollectThreshold,
		gate:               gate,
		runner:             runner,
		metrics:            observe.DefaultMetrics(),
	}
}

// Review assesses a session for group and, when the report advises
// re-collection and the cooldown gate is open, launches recollect
// asynchronously. The trigger timestamp is written before launch, so a
// second session reviewing concurrently cannot fire a duplicate run.
// Returns the report and whether a run was launched.
func (m *Monitor) Review(ctx context.Context, group string, segments []speaker.LabeledSegment, recollect RecollectFunc) (speaker.QualityReport, bool) {
	log := observe.Logger(ctx)

	rep := Assess(segments, m.recollectThreshold)
	log.Info("session quality assessed",
		"group", group, "level", rep.Level, "total", rep.Total,
		"high", rep.High, "unidentified", rep.Unidentified,
		"should_recollect", rep.ShouldRecollect)

	if !rep.ShouldRecollect || recollect == nil {
		return rep, false
	}

	note := fmt.Sprintf("level=%s total=%d low_or_unidentified=%d",
		rep.Level, rep.Total, rep.Low+rep.Unidentified)
	ok, err := m.gate.TryAcquire(group, note)
	if err != nil {
		log.Error("cooldown gate check failed", "group", group, "err", err)
		return rep, false
	}
	if !ok {
		m.metrics.CooldownRefusals.Add(ctx, 1, metric.WithAttributes(
			observe.Attr("group", group)))
		log.Info("re-collection advised but in cooldown", "group", group)
		return rep, false
	}

	m.metrics.RecollectTriggers.Add(ctx, 1, metric.WithAttributes(
		observe.Attr("group", group)))
	log.Info("launching re-collection", "group", group)

	m.runner.Run(func(jobCtx context.Context) {
		if err := recollect(jobCtx, group); err != nil {
			// Fire-and-forget: the failure stays here. The gate stays
			// closed for the full cooldown regardless.
			observe.Logger(jobCtx).Error("re-collection run failed",
				"group", group, "err", err)
		}
	})
	return rep, true
}
