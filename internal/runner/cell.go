package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/uiverify/internal/artifact"
	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/executor"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/obs"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/target"
)

// discardSink drops artifacts while still reporting a location.
type discardSink struct{}

func (discardSink) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return key, nil
}

// cellRun is the mutable state of one cell while it executes. It becomes a
// RunResult once finalized.
type cellRun struct {
	res       RunResult
	collector *artifact.Collector
	ex        *executor.Executor
	tgt       target.Target
}

func (r *Runner) runCell(ctx context.Context, s scenario.Scenario, cell scenario.Cell) (result RunResult) {
	run := &cellRun{res: RunResult{
		RunID:    uuid.NewString(),
		Scenario: s.ID,
		Cell:     cell,
		Status:   StatusPending,
	}}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{
		RunID:    run.res.RunID,
		Scenario: s.ID,
		Role:     string(cell.Role),
		Locale:   cell.Locale,
		Viewport: cell.Viewport.Name,
	})
	logger := obs.From(ctx).With("pkg", "runner")

	run.res.Started = time.Now()
	defer func() {
		run.res.Finished = time.Now()
		if run.collector != nil {
			run.res.Artifacts = run.collector.Locations()
		}
		result = run.res
		logger.Info(
			"run_finished",
			"status", string(run.res.Status),
			"steps", len(run.res.Steps),
			"artifacts", len(run.res.Artifacts),
			"duration_ms", run.res.Finished.Sub(run.res.Started).Milliseconds(),
		)
	}()

	if err := ctx.Err(); err != nil {
		run.fail(-1, "start", errs.Wrap(errs.Cancelled, "run cancelled before start", err), executor.Outcome{})
		run.skipRest(s.Steps, 0, cell.Locale)
		return run.res
	}

	preset, err := r.cellPreset(s, cell.Role)
	if err != nil {
		run.fail(-1, "preset", err, executor.Outcome{})
		run.skipRest(s.Steps, 0, cell.Locale)
		return run.res
	}

	tgt, err := r.provider.Acquire(ctx, target.Options{
		Viewport:       cell.Viewport,
		Locale:         cell.Locale,
		DefaultTimeout: s.NavTimeout(),
	})
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			err = errs.Wrap(errs.Cancelled, "acquire target", err)
		case errs.CodeOf(err) == errs.Internal:
			err = errs.Wrap(errs.Internal, "acquire target", err)
		}
		run.fail(-1, "acquire", err, executor.Outcome{})
		run.skipRest(s.Steps, 0, cell.Locale)
		return run.res
	}
	run.tgt = tgt
	defer func() {
		if err := tgt.Close(); err != nil {
			logger.Warn("target_close_failed", "error", err.Error())
		}
	}()

	var sink artifact.Sink = discardSink{}
	if r.sink != nil {
		sink = r.sink
	}
	run.collector = artifact.NewCollector(sink, s.ID, cell.Key())
	run.ex = executor.New(executor.Options{
		BaseURL:           s.BaseURL,
		Locale:            cell.Locale,
		Viewport:          cell.Viewport.Name,
		NavigationTimeout: s.NavTimeout(),
		WaitTimeout:       r.opts.WaitTimeout,
		PollInterval:      r.opts.PollInterval,
	}, r.injector, run.collector)

	run.res.Status = StatusRunning
	logger.Info("run_started", "preset", preset.ID(), "base_url", s.BaseURL)

	if err := r.prime(ctx, run, s, cell, preset); err != nil {
		run.fail(-1, "prime", err, executor.Outcome{})
		run.skipRest(s.Steps, 0, cell.Locale)
		run.errorShot(ctx)
		return run.res
	}

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			run.fail(i, step.Describe(cell.Locale), errs.Wrap(errs.Cancelled, "run cancelled", err), executor.Outcome{})
			run.skipRest(s.Steps, i, cell.Locale)
			break
		}

		step, skip := bindStep(step, cell, preset)
		var out executor.Outcome
		if skip != "" {
			out = executor.Outcome{Kind: step.Kind, Description: step.Describe(cell.Locale), Status: executor.StatusSkipped, Reason: skip}
		} else {
			out = run.ex.Execute(ctx, tgt, step)
		}
		out.Index = i
		run.res.Steps = append(run.res.Steps, out)

		if !out.Failed() {
			continue
		}
		if step.Independent && !errs.IsFatal(out.Code) {
			logger.Info("checkpoint_failed", "step", out.Description, "error", out.Reason)
			if run.res.Failure == nil {
				run.fail(i, out.Description, out.Err, out)
			}
			continue
		}
		run.fail(i, out.Description, out.Err, out)
		run.skipRest(s.Steps, i+1, cell.Locale)
		break
	}

	if run.res.Failure != nil {
		run.res.Status = StatusFailed
		run.errorShot(ctx)
		return run.res
	}
	run.res.Status = StatusPassed
	return run.res
}

// cellPreset picks the identity for a cell: the scenario's own preset when
// the roles agree, otherwise the catalog default for the cell role.
func (r *Runner) cellPreset(s scenario.Scenario, role identity.Role) (identity.Preset, error) {
	if !s.Identity.IsZero() && s.Identity.Role() == role {
		return s.Identity, nil
	}
	return r.opts.Catalog.ForRole(role)
}

// prime loads the application once so storage is available, then seeds the
// locale and, unless the scenario injects explicitly, the cell identity. The
// application sees both on the scenario's first navigation; a scenario that
// does not start by navigating gets a reload.
func (r *Runner) prime(ctx context.Context, run *cellRun, s scenario.Scenario, cell scenario.Cell, preset identity.Preset) error {
	out := run.ex.Execute(ctx, run.tgt, scenario.Navigate("/"))
	if out.Failed() {
		return out.Err
	}
	if r.injector == nil {
		return nil
	}
	if err := r.injector.ApplyLocale(ctx, run.tgt, cell.Locale); err != nil {
		return err
	}
	if cell.Role != identity.Guest && !s.HasExplicitInjection() {
		inject := run.ex.Execute(ctx, run.tgt, scenario.InjectIdentity(preset))
		if inject.Failed() {
			return inject.Err
		}
	}
	if first := firstApplicable(s.Steps, cell.Viewport.Name); first != nil && first.Kind == scenario.KindNavigate {
		return nil
	}
	if reload := run.ex.Execute(ctx, run.tgt, scenario.Reload()); reload.Failed() {
		return reload.Err
	}
	return nil
}

func firstApplicable(steps []scenario.Step, viewport string) *scenario.Step {
	for i := range steps {
		if steps[i].AppliesTo(viewport) {
			return &steps[i]
		}
	}
	return nil
}

// bindStep adapts a scenario step to the cell. An explicit injection of a
// preset whose role differs from the cell role injects the cell's preset
// instead; guest cells skip injections altogether.
func bindStep(step scenario.Step, cell scenario.Cell, preset identity.Preset) (scenario.Step, string) {
	if step.Kind != scenario.KindInjectIdentity || step.Preset.Role() == cell.Role {
		return step, ""
	}
	if cell.Role == identity.Guest {
		return step, "guest cell has no identity to inject"
	}
	step.Preset = preset
	return step, ""
}

func (run *cellRun) fail(index int, stepName string, err error, out executor.Outcome) {
	f := &artifact.Failure{
		Code:     errs.CodeOf(err),
		Message:  errs.MessageOf(err),
		Cause:    failureCause(err),
		Step:     index,
		StepName: stepName,
		Selector: out.Selector,
	}
	if run.tgt != nil {
		f.LastURL = run.tgt.CurrentURL()
	}
	if run.ex != nil {
		if v, ok := run.ex.LastValue(); ok {
			f.LastValue = v
		}
	}
	if f.LastValue == "" && out.Kind == scenario.KindWaitFor {
		f.LastValue = out.Observed
	}
	run.res.Failure = f
	run.res.Status = StatusFailed
}

// failureCause is the full error chain when it says more than the message.
func failureCause(err error) string {
	if err == nil || err.Error() == errs.MessageOf(err) {
		return ""
	}
	return err.Error()
}

func (run *cellRun) skipRest(steps []scenario.Step, from int, locale string) {
	for i := from; i < len(steps); i++ {
		run.res.Steps = append(run.res.Steps, executor.Outcome{
			Index:       i,
			Kind:        steps[i].Kind,
			Description: steps[i].Describe(locale),
			Status:      executor.StatusSkipped,
			Reason:      "not run",
		})
	}
}

// errorShot captures the single diagnostic screenshot of a failed run. It
// runs detached from cancellation so a cancelled run still leaves evidence.
func (run *cellRun) errorShot(ctx context.Context) {
	if run.tgt == nil || run.ex == nil {
		return
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorShotTimeout)
	defer cancel()
	_, _ = run.ex.Capture(shotCtx, run.tgt, scenario.ErrorLabel)
}
