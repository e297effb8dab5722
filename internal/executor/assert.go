package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/poll"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/target"
)

// assertVisible passes once exactly one match (or the first, with First)
// is visible. The element's text is recorded as observed.
func (e *Executor) assertVisible(ctx context.Context, t target.Target, step scenario.Step, out *Outcome) error {
	sel := step.Selector.Resolve(e.opts.Locale)
	out.Selector = sel.String()

	var (
		state     = "absent"
		ambiguous int
	)
	budget := e.waitTimeout(step)
	res, err := e.poll(ctx, budget, func() (bool, error) {
		els, err := t.Query(sel)
		if err != nil {
			return false, err
		}
		if len(els) == 0 {
			state = "absent"
			return false, nil
		}
		if len(els) > 1 && !sel.First {
			ambiguous = len(els)
			return true, nil
		}
		visible, err := els[0].Visible()
		if err != nil {
			return false, err
		}
		if !visible {
			state = "present but hidden"
			return false, nil
		}
		text, err := els[0].Text()
		if err != nil {
			return false, err
		}
		out.Observed = strings.TrimSpace(text)
		return true, nil
	})
	if ambiguous > 0 {
		return errs.Newf(errs.AmbiguousElement, "%d elements match %s", ambiguous, sel)
	}
	return assertionResult(res, err, budget, fmt.Sprintf("%s not visible", sel), state)
}

// assertTextPresent passes once any visible element shows the text.
func (e *Executor) assertTextPresent(ctx context.Context, t target.Target, step scenario.Step, out *Outcome) error {
	want := step.Text.Resolve(e.opts.Locale)
	sel := target.ByText(want)
	out.Selector = sel.String()

	state := "absent"
	budget := e.waitTimeout(step)
	res, err := e.poll(ctx, budget, func() (bool, error) {
		els, err := t.Query(sel)
		if err != nil {
			return false, err
		}
		if len(els) == 0 {
			state = "absent"
			return false, nil
		}
		for _, el := range els {
			visible, err := el.Visible()
			if err != nil {
				return false, err
			}
			if !visible {
				continue
			}
			text, err := el.Text()
			if err != nil {
				return false, err
			}
			out.Observed = strings.TrimSpace(text)
			return true, nil
		}
		state = fmt.Sprintf("%d matches, none visible", len(els))
		return false, nil
	})
	return assertionResult(res, err, budget, fmt.Sprintf("text %q not visible", want), state)
}

// assertionResult maps a finished poll onto the assertion taxonomy: the page
// answered but the property stayed false is an Assertion failure; a page that
// never answered is a Timeout.
func assertionResult(res poll.Result, err error, budget time.Duration, what, state string) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, poll.ErrTimeout) {
		return errs.Wrap(errs.Cancelled, "assert", err)
	}
	if res.NeverObserved() {
		return errs.Wrapf(errs.Timeout, res.LastErr, "%s: target could not be observed within %s", what, budget)
	}
	return errs.Newf(errs.Assertion, "%s within %s (observed: %s)", what, budget, state)
}
