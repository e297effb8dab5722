// Package runner executes scenarios across a matrix of roles, locales and
// viewports. Each cell gets its own target, its own identity and its own
// artifact namespace; cells run in parallel, steps inside a cell strictly
// in order.
package runner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/uiverify/internal/artifact"
	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/executor"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/obs"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/session"
	"github.com/kuitang/uiverify/internal/target"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// DefaultParallelism bounds concurrent cells when Options leaves it zero.
const DefaultParallelism = 4

// errorShotTimeout bounds the failure screenshot, which runs even after cancellation.
const errorShotTimeout = 30 * time.Second

// RunResult is the finalized outcome of one cell.
type RunResult struct {
	RunID     string
	Scenario  string
	Cell      scenario.Cell
	Status    Status
	Steps     []executor.Outcome
	Artifacts []string
	Failure   *artifact.Failure
	Started   time.Time
	Finished  time.Time
}

// Passed reports whether the cell passed.
func (r RunResult) Passed() bool { return r.Status == StatusPassed }

// Observed lists the observed text of every passing assertion, in step order.
func (r RunResult) Observed() []string {
	var out []string
	for _, o := range r.Steps {
		if o.Status == executor.StatusPassed && (o.Kind == scenario.KindAssertVisible || o.Kind == scenario.KindAssertText) {
			out = append(out, o.Observed)
		}
	}
	return out
}

// Report converts the result for the artifact summary.
func (r RunResult) Report() artifact.CellReport {
	rep := artifact.CellReport{
		RunID:     r.RunID,
		Cell:      r.Cell.Key(),
		Role:      string(r.Cell.Role),
		Locale:    r.Cell.Locale,
		Viewport:  r.Cell.Viewport.Name,
		Status:    string(r.Status),
		Started:   r.Started,
		Finished:  r.Finished,
		Artifacts: append([]string(nil), r.Artifacts...),
		Observed:  r.Observed(),
	}
	if r.Failure != nil {
		f := *r.Failure
		rep.Failure = &f
	}
	return rep
}

// Options configures a Runner.
type Options struct {
	// BaseURL is used for scenarios that do not carry their own.
	BaseURL      string
	WaitTimeout  time.Duration
	PollInterval time.Duration
	Parallelism  int
	// Catalog supplies the preset for each matrix role. Defaults to identity.Builtin().
	Catalog *identity.Catalog
}

// Runner executes scenarios.
type Runner struct {
	provider target.Provider
	injector *session.Injector
	sink     artifact.Sink
	opts     Options
}

// New creates a Runner. sink may be nil, in which case screenshots are
// captured and discarded.
func New(provider target.Provider, injector *session.Injector, sink artifact.Sink, opts Options) *Runner {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Catalog == nil {
		opts.Catalog = identity.Builtin()
	}
	return &Runner{provider: provider, injector: injector, sink: sink, opts: opts}
}

// Run executes s once per matrix cell. The returned error covers invalid
// input only; cell failures are reported in the results, which are in
// matrix order.
func (r *Runner) Run(ctx context.Context, s scenario.Scenario, m scenario.Matrix) ([]RunResult, error) {
	s = s.Clone()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.BaseURL == "" {
		s.BaseURL = r.opts.BaseURL
	}
	if s.BaseURL == "" {
		return nil, errs.Newf(errs.InvalidArgument, "scenario %q: no base url", s.ID)
	}
	cells, err := m.Expand(s)
	if err != nil {
		return nil, err
	}

	logger := obs.From(ctx).With("pkg", "runner")
	for _, w := range s.Lint() {
		logger.Warn("scenario_lint", "scenario", s.ID, "warning", w)
	}
	logger.Info("scenario_started", "scenario", s.ID, "cells", len(cells), "parallelism", r.opts.Parallelism)

	results := make([]RunResult, len(cells))
	var g errgroup.Group
	g.SetLimit(r.opts.Parallelism)
	for i, cell := range cells {
		g.Go(func() error {
			results[i] = r.runCell(ctx, s, cell)
			return nil
		})
	}
	_ = g.Wait()

	passed := 0
	for _, res := range results {
		if res.Passed() {
			passed++
		}
	}
	logger.Info("scenario_finished", "scenario", s.ID, "cells", len(cells), "passed", passed, "failed", len(cells)-passed)
	return results, nil
}

// RunAll runs every scenario over m, writes a report per scenario and
// returns the summaries. Report write failures are logged, never escalated.
func (r *Runner) RunAll(ctx context.Context, scenarios []scenario.Scenario, m scenario.Matrix) ([]artifact.Summary, error) {
	summaries := make([]artifact.Summary, 0, len(scenarios))
	for _, s := range scenarios {
		results, err := r.Run(ctx, s, m)
		if err != nil {
			return summaries, errs.Wrapf(errs.CodeOf(err), err, "scenario %q", s.ID)
		}
		sum := Summarize(s, results)
		if r.sink != nil {
			if _, err := artifact.WriteReport(context.WithoutCancel(ctx), r.sink, sum); err != nil {
				obs.From(ctx).With("pkg", "runner").Warn("report_write_failed", "scenario", s.ID, "error", err.Error())
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// Summarize builds the artifact summary of one scenario execution.
func Summarize(s scenario.Scenario, results []RunResult) artifact.Summary {
	cells := make([]artifact.CellReport, 0, len(results))
	for _, res := range results {
		cells = append(cells, res.Report())
	}
	return artifact.NewSummary(s.ID, s.Description, cells)
}
