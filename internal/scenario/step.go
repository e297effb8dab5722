package scenario

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/target"
)

// StepKind tags a Step variant.
type StepKind string

const (
	KindNavigate       StepKind = "navigate"
	KindInjectIdentity StepKind = "inject_identity"
	KindInteract       StepKind = "interact"
	KindWaitFor        StepKind = "wait_for"
	KindAssertVisible  StepKind = "assert_visible"
	KindAssertText     StepKind = "assert_text_present"
	KindEvaluate       StepKind = "evaluate"
	KindScreenshot     StepKind = "screenshot"
	KindReload         StepKind = "reload"
	KindMutateRole     StepKind = "mutate_role"
)

// ErrorLabel is reserved for the automatic failure screenshot.
const ErrorLabel = "error"

// Action is a localized user gesture.
type Action struct {
	Kind  target.ActionKind
	Value Text
}

func ClickAction() Action {
	return Action{Kind: target.ActionClick}
}

func FillAction(text Text) Action {
	return Action{Kind: target.ActionFill, Value: text}
}

func SelectOptionAction(value Text) Action {
	return Action{Kind: target.ActionSelect, Value: value}
}

// Resolve produces the concrete action for locale.
func (a Action) Resolve(locale string) target.Action {
	return target.Action{Kind: a.Kind, Value: a.Value.Resolve(locale)}
}

// Step is one instruction. Exactly the fields relevant to Kind are set.
type Step struct {
	Kind StepKind

	Path      string          // navigate
	Preset    identity.Preset // inject_identity
	Selector  Selector        // interact, assert_visible
	Action    Action          // interact
	Condition Condition       // wait_for
	Text      Text            // assert_text_present
	Script    string          // evaluate
	Label     string          // screenshot
	Role      identity.Role   // mutate_role

	// Name is an optional human label used in results and logs.
	Name string
	// Timeout overrides the default wait budget for this step.
	Timeout time.Duration
	// Independent marks a checkpoint: an assertion failure here is
	// recorded but later steps still run.
	Independent bool
	// Viewports limits the step to the named viewports; other cells skip it.
	Viewports []string
}

func Navigate(path string) Step {
	return Step{Kind: KindNavigate, Path: path}
}

// InjectIdentity seeds the session state. It must come before the Navigate
// that boots the application for the identity to take effect.
func InjectIdentity(p identity.Preset) Step {
	return Step{Kind: KindInjectIdentity, Preset: p}
}

func Interact(sel Selector, a Action) Step {
	return Step{Kind: KindInteract, Selector: sel, Action: a}
}

func Click(sel Selector) Step {
	return Interact(sel, ClickAction())
}

func Fill(sel Selector, text Text) Step {
	return Interact(sel, FillAction(text))
}

func Select(sel Selector, value Text) Step {
	return Interact(sel, SelectOptionAction(value))
}

func WaitFor(c Condition, timeout time.Duration) Step {
	return Step{Kind: KindWaitFor, Condition: c, Timeout: timeout}
}

func AssertVisible(sel Selector) Step {
	return Step{Kind: KindAssertVisible, Selector: sel}
}

func AssertTextPresent(text Text) Step {
	return Step{Kind: KindAssertText, Text: text}
}

func Evaluate(script string) Step {
	return Step{Kind: KindEvaluate, Script: script}
}

func Screenshot(label string) Step {
	return Step{Kind: KindScreenshot, Label: label}
}

func Reload() Step {
	return Step{Kind: KindReload}
}

func MutateRole(role identity.Role) Step {
	return Step{Kind: KindMutateRole, Role: role}
}

// Named returns a copy with a display name.
func (s Step) Named(name string) Step {
	s.Name = name
	return s
}

// WithTimeout returns a copy with its own wait budget.
func (s Step) WithTimeout(d time.Duration) Step {
	s.Timeout = d
	return s
}

// Checkpoint returns a copy whose assertion failure does not stop the run.
func (s Step) Checkpoint() Step {
	s.Independent = true
	return s
}

// OnlyOn returns a copy that runs only on the named viewports.
func (s Step) OnlyOn(viewports ...string) Step {
	s.Viewports = append([]string(nil), viewports...)
	return s
}

// AppliesTo reports whether the step runs in a cell with this viewport.
func (s Step) AppliesTo(viewport string) bool {
	if len(s.Viewports) == 0 {
		return true
	}
	return slices.ContainsFunc(s.Viewports, func(v string) bool {
		return strings.EqualFold(v, viewport)
	})
}

// IsAssertion reports whether the step is an assertion step.
func (s Step) IsAssertion() bool {
	return s.Kind == KindAssertVisible || s.Kind == KindAssertText
}

// Validate checks the fields required by the step's kind.
func (s Step) Validate() error {
	switch s.Kind {
	case KindNavigate:
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("navigate needs a path")
		}
	case KindInjectIdentity:
		if s.Preset.IsZero() {
			return fmt.Errorf("inject_identity needs a preset")
		}
		if err := s.Preset.Validate(); err != nil {
			return err
		}
	case KindInteract:
		if err := s.Selector.Resolve("").Validate(); err != nil {
			return err
		}
		if err := s.Action.Resolve("").Validate(); err != nil {
			return err
		}
	case KindWaitFor:
		if err := s.Condition.Validate(); err != nil {
			return err
		}
	case KindAssertVisible:
		if err := s.Selector.Resolve("").Validate(); err != nil {
			return err
		}
	case KindAssertText:
		if s.Text.IsZero() {
			return fmt.Errorf("assert_text_present needs text")
		}
	case KindEvaluate:
		if strings.TrimSpace(s.Script) == "" {
			return fmt.Errorf("evaluate needs a script")
		}
	case KindScreenshot:
		label := strings.TrimSpace(s.Label)
		if label == "" {
			return fmt.Errorf("screenshot needs a label")
		}
		if strings.EqualFold(label, ErrorLabel) {
			return fmt.Errorf("screenshot label %q is reserved for failures", ErrorLabel)
		}
	case KindReload:
	case KindMutateRole:
		if !s.Role.Valid() {
			return fmt.Errorf("mutate_role: invalid role %q", s.Role)
		}
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	for _, vp := range s.Viewports {
		if _, err := target.LookupViewport(vp); err != nil {
			return err
		}
	}
	return nil
}

// Describe renders the step for one locale.
func (s Step) Describe(locale string) string {
	if s.Name != "" {
		return s.Name
	}
	switch s.Kind {
	case KindNavigate:
		return "navigate " + s.Path
	case KindInjectIdentity:
		return fmt.Sprintf("inject %s (%s)", s.Preset.ID(), s.Preset.Role())
	case KindInteract:
		return fmt.Sprintf("%s %s", s.Action.Resolve(locale), s.Selector.Resolve(locale))
	case KindWaitFor:
		return "wait for " + s.Condition.Describe(locale)
	case KindAssertVisible:
		return "assert visible " + s.Selector.Resolve(locale).String()
	case KindAssertText:
		return fmt.Sprintf("assert text %q", s.Text.Resolve(locale))
	case KindEvaluate:
		return "evaluate " + s.Script
	case KindScreenshot:
		return "screenshot " + s.Label
	case KindReload:
		return "reload"
	case KindMutateRole:
		return "mutate role to " + string(s.Role)
	default:
		return string(s.Kind)
	}
}

func (s Step) clone() Step {
	s.Selector = s.Selector.clone()
	s.Action.Value = s.Action.Value.clone()
	s.Condition = s.Condition.clone()
	s.Text = s.Text.clone()
	s.Viewports = slices.Clone(s.Viewports)
	return s
}
