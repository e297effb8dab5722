// Package scenario holds the declarative data model: scenarios made of
// steps, the localized text and selectors they reference, and the
// role × locale × viewport matrix they run across.
package scenario

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/target"
)

// DefaultLocale is the application's default language.
const DefaultLocale = "uk"

// DefaultNavigationTimeout bounds Navigate and Reload unless overridden.
const DefaultNavigationTimeout = 15 * time.Second

// Scenario is an ordered, non-empty sequence of steps plus metadata.
// The runner works from a copy and never mutates it.
type Scenario struct {
	ID          string
	Description string
	// BaseURL is the application root. Empty means the runner's default.
	BaseURL string
	// Identity is the scenario's own actor. Zero means guest.
	Identity identity.Preset
	// Locale is the scenario's own locale. Empty means DefaultLocale.
	Locale string
	// Viewport is the scenario's own viewport name. Empty means desktop.
	Viewport          string
	NavigationTimeout time.Duration
	Steps             []Step
}

// Role is the scenario's own role.
func (s Scenario) Role() identity.Role {
	if s.Identity.IsZero() {
		return identity.Guest
	}
	return s.Identity.Role()
}

// OwnLocale is the scenario's locale with the default applied.
func (s Scenario) OwnLocale() string {
	if s.Locale == "" {
		return DefaultLocale
	}
	return s.Locale
}

// OwnViewport is the scenario's viewport name with the default applied.
func (s Scenario) OwnViewport() string {
	if s.Viewport == "" {
		return target.Desktop.Name
	}
	return s.Viewport
}

// NavTimeout is the navigation budget with the default applied.
func (s Scenario) NavTimeout() time.Duration {
	if s.NavigationTimeout <= 0 {
		return DefaultNavigationTimeout
	}
	return s.NavigationTimeout
}

// HasExplicitInjection reports whether any step injects an identity.
func (s Scenario) HasExplicitInjection() bool {
	return slices.ContainsFunc(s.Steps, func(st Step) bool { return st.Kind == KindInjectIdentity })
}

// Validate checks the scenario and every step.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errs.New(errs.InvalidArgument, "scenario id is required")
	}
	if len(s.Steps) == 0 {
		return errs.Newf(errs.InvalidArgument, "scenario %q has no steps", s.ID)
	}
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return errs.Newf(errs.InvalidArgument, "scenario %q: base url %q is not absolute", s.ID, s.BaseURL)
		}
	}
	if !s.Identity.IsZero() {
		if err := s.Identity.Validate(); err != nil {
			return errs.Wrapf(errs.InvalidArgument, err, "scenario %q identity", s.ID)
		}
	}
	if s.Viewport != "" {
		if _, err := target.LookupViewport(s.Viewport); err != nil {
			return errs.Wrapf(errs.InvalidArgument, err, "scenario %q", s.ID)
		}
	}
	if s.NavigationTimeout < 0 {
		return errs.Newf(errs.InvalidArgument, "scenario %q: navigation timeout must not be negative", s.ID)
	}
	for i, st := range s.Steps {
		if err := st.Validate(); err != nil {
			return errs.Wrapf(errs.InvalidArgument, err, "scenario %q step %d (%s)", s.ID, i+1, st.Kind)
		}
	}
	return nil
}

// Lint returns advisory warnings that do not make the scenario invalid.
func (s Scenario) Lint() []string {
	var warnings []string
	for i, st := range s.Steps {
		switch {
		case st.Kind == KindInjectIdentity && !bootsLater(s.Steps[i+1:]):
			warnings = append(warnings, fmt.Sprintf("step %d: inject_identity is not followed by navigate or reload, the app will not see it", i+1))
		case st.Independent && !st.IsAssertion():
			warnings = append(warnings, fmt.Sprintf("step %d: checkpoint only affects assertion steps", i+1))
		case st.Kind == KindEvaluate && strings.Contains(st.Script, "localStorage.setItem"):
			warnings = append(warnings, fmt.Sprintf("step %d: prefer inject_identity or mutate_role over writing storage from scripts", i+1))
		}
	}
	return warnings
}

func bootsLater(rest []Step) bool {
	return slices.ContainsFunc(rest, func(st Step) bool {
		return st.Kind == KindNavigate || st.Kind == KindReload || st.Kind == KindMutateRole
	})
}

// Clone returns a deep copy.
func (s Scenario) Clone() Scenario {
	out := s
	out.Steps = make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		out.Steps[i] = st.clone()
	}
	return out
}
