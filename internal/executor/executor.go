// Package executor runs one scenario step against a target and reports its
// outcome. Every wait is a bounded poll; nothing sleeps for a fixed time.
//
// An Executor belongs to one run (one matrix cell). It remembers the
// identity currently in effect and the last evaluated value so that later
// steps and failure diagnostics can use them.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/logutil"
	"github.com/kuitang/uiverify/internal/obs"
	"github.com/kuitang/uiverify/internal/poll"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/session"
	"github.com/kuitang/uiverify/internal/target"
)

// Status is the result of one step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Default budgets used when Options leaves them zero.
const (
	DefaultWaitTimeout  = 10 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Outcome describes one executed step.
type Outcome struct {
	Index       int               `json:"index"`
	Kind        scenario.StepKind `json:"kind"`
	Description string            `json:"description"`
	Status      Status            `json:"status"`
	Code        errs.Code         `json:"code,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Selector    string            `json:"selector,omitempty"`
	// Observed is the text or value the step saw: asserted text, evaluated
	// value, or the last state a failed wait observed.
	Observed  string        `json:"observed,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Duration  time.Duration `json:"duration_ns"`

	Err error `json:"-"`
}

// Failed reports whether the step failed.
func (o Outcome) Failed() bool { return o.Status == StatusFailed }

// ArtifactSaver persists a captured image under a label and returns where it went.
type ArtifactSaver interface {
	Save(ctx context.Context, label string, image []byte) (string, error)
}

// Options configures an Executor.
type Options struct {
	// BaseURL resolves relative Navigate paths.
	BaseURL           string
	Locale            string
	Viewport          string
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
	PollInterval      time.Duration
	// Identity is the preset already injected before the first step, if any.
	Identity identity.Preset
}

// Executor runs steps for one run.
type Executor struct {
	opts     Options
	injector *session.Injector
	saver    ArtifactSaver

	current   identity.Preset
	lastValue any
	hasValue  bool
}

// New creates an Executor. injector may be nil when no step touches the
// session; saver may be nil, in which case screenshots are captured and
// dropped.
func New(opts Options, injector *session.Injector, saver ArtifactSaver) *Executor {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = scenario.DefaultNavigationTimeout
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Executor{opts: opts, injector: injector, saver: saver, current: opts.Identity}
}

// Identity is the preset currently in effect.
func (e *Executor) Identity() identity.Preset { return e.current }

// LastValue returns the most recent evaluated value, formatted for diagnostics.
func (e *Executor) LastValue() (string, bool) {
	if !e.hasValue {
		return "", false
	}
	return formatValue(e.lastValue), true
}

// Execute runs step against t.
func (e *Executor) Execute(ctx context.Context, t target.Target, step scenario.Step) Outcome {
	start := time.Now()
	out := Outcome{
		Kind:        step.Kind,
		Description: step.Describe(e.opts.Locale),
		Status:      StatusPassed,
	}
	logger := obs.From(ctx).With("pkg", "executor")

	if !step.AppliesTo(e.opts.Viewport) {
		out.Status = StatusSkipped
		out.Reason = "not on viewport " + e.opts.Viewport
		logger.Debug("step_skipped", "step", out.Description, "viewport", e.opts.Viewport)
		return out
	}

	var err error
	if err = step.Validate(); err != nil {
		err = errs.Wrap(errs.InvalidArgument, "invalid step", err)
	} else {
		err = e.dispatch(ctx, t, step, &out)
	}
	out.Duration = time.Since(start)

	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		out.Code = errs.CodeOf(err)
		out.Reason = err.Error()
		logger.Info(
			"step_failed",
			"step", out.Description,
			"code", string(out.Code),
			"error", err.Error(),
			"url", t.CurrentURL(),
			"duration_ms", out.Duration.Milliseconds(),
		)
		return out
	}
	logger.Debug(
		"step_passed",
		"step", out.Description,
		"observed", logutil.Preview(out.Observed, 200),
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out
}

func (e *Executor) dispatch(ctx context.Context, t target.Target, step scenario.Step, out *Outcome) error {
	switch step.Kind {
	case scenario.KindNavigate:
		return e.navigate(t, step)
	case scenario.KindReload:
		if err := t.Reload(e.navTimeout(step)); err != nil {
			return errs.Wrapf(errs.Navigation, err, "reload %s", t.CurrentURL())
		}
		return nil
	case scenario.KindInjectIdentity:
		return e.inject(ctx, t, step.Preset)
	case scenario.KindMutateRole:
		return e.mutateRole(ctx, t, step)
	case scenario.KindInteract:
		return e.interact(ctx, t, step, out)
	case scenario.KindWaitFor:
		return e.waitFor(ctx, t, step, out)
	case scenario.KindAssertVisible:
		return e.assertVisible(ctx, t, step, out)
	case scenario.KindAssertText:
		return e.assertTextPresent(ctx, t, step, out)
	case scenario.KindEvaluate:
		return e.evaluate(t, step, out)
	case scenario.KindScreenshot:
		e.screenshot(ctx, t, step.Label, out)
		return nil
	default:
		return errs.Newf(errs.InvalidArgument, "unknown step kind %q", step.Kind)
	}
}

func (e *Executor) navTimeout(step scenario.Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return e.opts.NavigationTimeout
}

func (e *Executor) waitTimeout(step scenario.Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return e.opts.WaitTimeout
}

func (e *Executor) navigate(t target.Target, step scenario.Step) error {
	dest, err := ResolveURL(e.opts.BaseURL, step.Path)
	if err != nil {
		return err
	}
	if err := t.Navigate(dest, e.navTimeout(step)); err != nil {
		return errs.Wrapf(errs.Navigation, err, "navigate %s", dest)
	}
	return nil
}

// ResolveURL joins path onto base. Absolute paths with a scheme are returned as is.
func ResolveURL(base, path string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(path))
	if err != nil {
		return "", errs.Wrapf(errs.InvalidArgument, err, "invalid path %q", path)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if base == "" {
		return "", errs.Newf(errs.InvalidArgument, "relative path %q without a base url", path)
	}
	b, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil || b.Scheme == "" {
		return "", errs.Newf(errs.InvalidArgument, "invalid base url %q", base)
	}
	return b.ResolveReference(&url.URL{
		Path:     strings.TrimPrefix(ref.Path, "/"),
		RawQuery: ref.RawQuery,
		Fragment: ref.Fragment,
	}).String(), nil
}

func (e *Executor) inject(ctx context.Context, t target.Target, p identity.Preset) error {
	if e.injector == nil {
		return errs.New(errs.Injection, "no session injector configured")
	}
	if err := e.injector.Inject(ctx, t, p); err != nil {
		return err
	}
	e.current = p
	return nil
}

func (e *Executor) mutateRole(ctx context.Context, t target.Target, step scenario.Step) error {
	if e.injector == nil {
		return errs.New(errs.Injection, "no session injector configured")
	}
	next, err := e.injector.MutateRole(ctx, t, e.current, step.Role, e.navTimeout(step))
	if !next.IsZero() {
		e.current = next
	}
	return err
}

func (e *Executor) evaluate(t target.Target, step scenario.Step, out *Outcome) error {
	v, err := t.Evaluate(step.Script)
	if err != nil {
		return errs.Wrap(errs.Evaluation, "evaluate", err)
	}
	e.lastValue, e.hasValue = v, true
	out.Observed = formatValue(v)
	return nil
}

func (e *Executor) screenshot(ctx context.Context, t target.Target, label string, out *Outcome) {
	path, err := e.Capture(ctx, t, label)
	if err != nil {
		out.Warnings = append(out.Warnings, err.Error())
		return
	}
	if path != "" {
		out.Artifacts = append(out.Artifacts, path)
	}
}

// Capture takes a full-page screenshot and hands it to the saver. Failures
// are returned as ArtifactWrite errors and logged; callers never abort on them.
func (e *Executor) Capture(ctx context.Context, t target.Target, label string) (string, error) {
	logger := obs.From(ctx).With("pkg", "executor")
	img, err := t.Screenshot(true)
	if err != nil {
		err = errs.Wrapf(errs.ArtifactWrite, err, "capture %q", label)
		logger.Warn("screenshot_failed", "label", label, "error", err.Error())
		return "", err
	}
	if e.saver == nil {
		return "", nil
	}
	path, err := e.saver.Save(ctx, label, img)
	if err != nil {
		err = errs.Wrapf(errs.ArtifactWrite, err, "save %q", label)
		logger.Warn("screenshot_failed", "label", label, "error", err.Error())
		return "", err
	}
	logger.Debug("screenshot_saved", "label", label, "path", path, "bytes", len(img))
	return path, nil
}

// interact waits for exactly one actionable match, then performs the gesture.
func (e *Executor) interact(ctx context.Context, t target.Target, step scenario.Step, out *Outcome) error {
	sel := step.Selector.Resolve(e.opts.Locale)
	action := step.Action.Resolve(e.opts.Locale)
	out.Selector = sel.String()

	var (
		el        target.Element
		matched   bool
		ambiguous int
	)
	res, err := e.poll(ctx, e.waitTimeout(step), func() (bool, error) {
		els, err := t.Query(sel)
		if err != nil {
			return false, err
		}
		if len(els) == 0 {
			return false, nil
		}
		matched = true
		if len(els) > 1 && !sel.First {
			ambiguous = len(els)
			return true, nil
		}
		visible, err := els[0].Visible()
		if err != nil {
			return false, err
		}
		enabled, err := els[0].Enabled()
		if err != nil {
			return false, err
		}
		if visible && enabled {
			el = els[0]
			return true, nil
		}
		return false, nil
	})
	if err != nil && !errors.Is(err, poll.ErrTimeout) {
		return errs.Wrap(errs.Cancelled, "interact", err)
	}

	switch {
	case ambiguous > 0:
		return errs.Newf(errs.AmbiguousElement, "%d elements match %s", ambiguous, sel)
	case !matched && res.NeverObserved():
		return errs.Wrapf(errs.ElementNotFound, res.LastErr, "no element matches %s", sel)
	case !matched:
		return errs.Newf(errs.ElementNotFound, "no element matches %s after %s", sel, res.Elapsed.Round(time.Millisecond))
	case el == nil:
		return errs.Newf(errs.Interaction, "%s is not visible and enabled after %s", sel, res.Elapsed.Round(time.Millisecond))
	}

	if err := t.Act(el, action); err != nil {
		return errs.Wrapf(errs.Interaction, err, "%s on %s", action, sel)
	}
	return nil
}

// waitFor polls the condition; a timeout carries the last observed state.
func (e *Executor) waitFor(ctx context.Context, t target.Target, step scenario.Step, out *Outcome) error {
	c := step.Condition
	var observed string
	var probe poll.Probe

	switch c.Kind {
	case scenario.CondURLContains:
		probe = func() (bool, error) {
			u := t.CurrentURL()
			observed = "url " + u
			return strings.Contains(u, c.Fragment), nil
		}
	case scenario.CondScriptTruthy:
		return e.waitScript(t, step, out)
	case scenario.CondElementVisible, scenario.CondElementHidden, scenario.CondTextVisible:
		sel := c.Selector.Resolve(e.opts.Locale)
		if c.Kind == scenario.CondTextVisible {
			sel = target.ByText(c.Text.Resolve(e.opts.Locale))
		}
		out.Selector = sel.String()
		wantVisible := c.Kind != scenario.CondElementHidden
		probe = func() (bool, error) {
			n, visible, err := countVisible(t, sel)
			if err != nil {
				return false, err
			}
			observed = fmt.Sprintf("%d matches, %d visible", n, visible)
			return (visible > 0) == wantVisible, nil
		}
	default:
		return errs.Newf(errs.InvalidArgument, "unknown condition %q", c.Kind)
	}

	budget := e.waitTimeout(step)
	res, err := e.poll(ctx, budget, probe)
	if err == nil {
		out.Observed = observed
		return nil
	}
	if !errors.Is(err, poll.ErrTimeout) {
		return errs.Wrap(errs.Cancelled, "wait", err)
	}
	if observed == "" && res.LastErr != nil {
		observed = "error " + res.LastErr.Error()
	}
	out.Observed = observed
	return errs.Newf(errs.Timeout, "%s not met within %s (last observed: %s)", c.Describe(e.opts.Locale), budget, observed)
}

// waitScript leaves the polling to the page, then evaluates once more to
// record what the expression last produced.
func (e *Executor) waitScript(t target.Target, step scenario.Step, out *Outcome) error {
	c := step.Condition
	budget := e.waitTimeout(step)
	waitErr := t.WaitUntil(c.Script, budget)

	v, err := t.Evaluate(c.Script)
	if err != nil {
		out.Observed = "error " + err.Error()
	} else {
		e.lastValue, e.hasValue = v, true
		out.Observed = "value " + formatValue(v)
	}
	if waitErr == nil {
		return nil
	}
	return errs.Newf(errs.Timeout, "%s not met within %s (last observed: %s)", c.Describe(e.opts.Locale), budget, out.Observed)
}

func countVisible(t target.Target, sel target.Selector) (matches, visible int, err error) {
	els, err := t.Query(sel)
	if err != nil {
		return 0, 0, err
	}
	for _, el := range els {
		ok, err := el.Visible()
		if err != nil {
			return 0, 0, err
		}
		if ok {
			visible++
		}
	}
	return len(els), visible, nil
}

// poll runs probe detached from run cancellation: a cancelled run finishes
// the current step and stops before the next one.
func (e *Executor) poll(ctx context.Context, timeout time.Duration, probe poll.Probe) (poll.Result, error) {
	waitCtx, cancel := poll.Detached(ctx, timeout+e.opts.PollInterval)
	defer cancel()
	return poll.Until(waitCtx, e.opts.PollInterval, timeout, probe)
}

func formatValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return "null"
	case string:
		return typed
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return logutil.Preview(string(b), 500)
}
