// Package scenariofile decodes YAML scenario documents.
//
// A document looks like:
//
//	id: portfolio
//	identity: test-master
//	matrix:
//	  locales: [uk, en]
//	steps:
//	  - navigate: /
//	  - click: {role: link, name: {default: Portfolio, uk: Портфоліо}}
//	  - fill: {placeholder: {default: Title, uk: Назва}, value: Test item}
//	  - wait_for: {url_contains: /portfolio}
//	  - assert_visible: {role: article, name: Test item}
//	    checkpoint: true
//	  - screenshot: with-item
//
// Localized text is either a scalar or a map of locale to string, with an
// optional "default" key.
package scenariofile

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/scenario"
)

// File is a decoded document: the scenario plus the matrix it asks for.
type File struct {
	Scenario scenario.Scenario
	Matrix   scenario.Matrix
}

// Load reads and decodes the document at path.
func Load(path string, catalog *identity.Catalog) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, errs.Wrapf(errs.InvalidArgument, err, "read scenario %s", path)
	}
	f, err := Parse(data, catalog)
	if err != nil {
		return File{}, errs.Wrapf(errs.InvalidArgument, err, "parse scenario %s", path)
	}
	return f, nil
}

// Parse decodes one document. Identity references are resolved against
// catalog, which defaults to identity.Builtin().
func Parse(data []byte, catalog *identity.Catalog) (File, error) {
	if catalog == nil {
		catalog = identity.Builtin()
	}
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return File{}, errs.Wrap(errs.InvalidArgument, "decode yaml", err)
	}

	s := scenario.Scenario{
		ID:                doc.ID,
		Description:       doc.Description,
		BaseURL:           doc.BaseURL,
		Locale:            doc.Locale,
		Viewport:          doc.Viewport,
		NavigationTimeout: doc.NavigationTimeout,
	}
	if doc.Identity != nil {
		p, err := doc.Identity.resolve(catalog)
		if err != nil {
			return File{}, errs.Wrap(errs.InvalidArgument, "identity", err)
		}
		s.Identity = p
	}
	for i, raw := range doc.Steps {
		st, err := raw.build(catalog)
		if err != nil {
			return File{}, errs.Wrapf(errs.InvalidArgument, err, "step %d", i+1)
		}
		s.Steps = append(s.Steps, st)
	}
	if err := s.Validate(); err != nil {
		return File{}, err
	}

	m, err := scenario.ParseMatrix(doc.Matrix.Roles, doc.Matrix.Locales, doc.Matrix.Viewports)
	if err != nil {
		return File{}, errs.Wrap(errs.InvalidArgument, "matrix", err)
	}
	return File{Scenario: s, Matrix: m}, nil
}

type document struct {
	ID                string        `yaml:"id"`
	Description       string        `yaml:"description"`
	BaseURL           string        `yaml:"base_url"`
	Identity          *identityRef  `yaml:"identity"`
	Locale            string        `yaml:"locale"`
	Viewport          string        `yaml:"viewport"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	Matrix            struct {
		Roles     []string `yaml:"roles"`
		Locales   []string `yaml:"locales"`
		Viewports []string `yaml:"viewports"`
	} `yaml:"matrix"`
	Steps []stepDoc `yaml:"steps"`
}

// text is a scenario.Text in YAML: a scalar or a locale map.
type text struct {
	scenario.Text
	set bool
}

func (t *text) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		t.Text = scenario.T(n.Value)
		t.set = true
		return nil
	case yaml.MappingNode:
		var m map[string]string
		if err := n.Decode(&m); err != nil {
			return err
		}
		def, ok := m["default"]
		if !ok {
			def, ok = m[scenario.DefaultLocale]
		}
		if !ok {
			return fmt.Errorf("line %d: localized text needs a %q or %q entry", n.Line, "default", scenario.DefaultLocale)
		}
		t.Text = scenario.T(def)
		for locale, v := range m {
			if locale != "default" {
				t.Text = t.Text.In(locale, v)
			}
		}
		t.set = true
		return nil
	default:
		return fmt.Errorf("line %d: localized text must be a string or a map", n.Line)
	}
}

// selectorDoc names exactly one of the selector kinds.
type selectorDoc struct {
	Role        string `yaml:"role"`
	Name        text   `yaml:"name"`
	Text        text   `yaml:"text"`
	Placeholder text   `yaml:"placeholder"`
	Label       text   `yaml:"label"`
	Title       text   `yaml:"title"`
	CSS         string `yaml:"css"`
	Exact       bool   `yaml:"exact"`
	First       bool   `yaml:"first"`
}

func (d selectorDoc) build() (scenario.Selector, error) {
	var sel []scenario.Selector
	if d.Role != "" {
		sel = append(sel, scenario.ByRole(d.Role, d.Name.Text))
	}
	if d.Text.set {
		sel = append(sel, scenario.ByText(d.Text.Text))
	}
	if d.Placeholder.set {
		sel = append(sel, scenario.ByPlaceholder(d.Placeholder.Text))
	}
	if d.Label.set {
		sel = append(sel, scenario.ByLabel(d.Label.Text))
	}
	if d.Title.set {
		sel = append(sel, scenario.ByTitle(d.Title.Text))
	}
	if d.CSS != "" {
		sel = append(sel, scenario.ByCSS(d.CSS))
	}
	if len(sel) != 1 {
		return scenario.Selector{}, fmt.Errorf("selector needs exactly one of role, text, placeholder, label, title or css, got %d", len(sel))
	}
	s := sel[0]
	if d.Exact {
		s = s.Exact()
	}
	if d.First {
		s = s.First()
	}
	return s, nil
}

// gestureDoc is a selector with the typed or chosen value of fill and select.
type gestureDoc struct {
	selectorDoc `yaml:",inline"`
	Value       text `yaml:"value"`
}

type conditionDoc struct {
	URLContains    string       `yaml:"url_contains"`
	ScriptTruthy   string       `yaml:"script_truthy"`
	ElementVisible *selectorDoc `yaml:"element_visible"`
	ElementHidden  *selectorDoc `yaml:"element_hidden"`
	TextVisible    text         `yaml:"text_visible"`
}

func (d conditionDoc) build() (scenario.Condition, error) {
	var conds []func() (scenario.Condition, error)
	if d.URLContains != "" {
		conds = append(conds, func() (scenario.Condition, error) { return scenario.URLContains(d.URLContains), nil })
	}
	if d.ScriptTruthy != "" {
		conds = append(conds, func() (scenario.Condition, error) { return scenario.ScriptTruthy(d.ScriptTruthy), nil })
	}
	if d.ElementVisible != nil {
		conds = append(conds, func() (scenario.Condition, error) {
			sel, err := d.ElementVisible.build()
			return scenario.ElementVisible(sel), err
		})
	}
	if d.ElementHidden != nil {
		conds = append(conds, func() (scenario.Condition, error) {
			sel, err := d.ElementHidden.build()
			return scenario.ElementHidden(sel), err
		})
	}
	if d.TextVisible.set {
		conds = append(conds, func() (scenario.Condition, error) { return scenario.TextVisible(d.TextVisible.Text), nil })
	}
	if len(conds) != 1 {
		return scenario.Condition{}, fmt.Errorf("wait_for needs exactly one condition, got %d", len(conds))
	}
	return conds[0]()
}

type waitDoc struct {
	conditionDoc `yaml:",inline"`
	Timeout      time.Duration `yaml:"timeout"`
}

// stepDoc carries one action key plus the shared step modifiers.
type stepDoc struct {
	Navigate       string        `yaml:"navigate"`
	InjectIdentity *identityRef  `yaml:"inject_identity"`
	Click          *selectorDoc  `yaml:"click"`
	Fill           *gestureDoc   `yaml:"fill"`
	Select         *gestureDoc   `yaml:"select"`
	WaitFor        *waitDoc      `yaml:"wait_for"`
	AssertVisible  *selectorDoc  `yaml:"assert_visible"`
	AssertText     text          `yaml:"assert_text"`
	Evaluate       string        `yaml:"evaluate"`
	Screenshot     string        `yaml:"screenshot"`
	Reload         bool          `yaml:"reload"`
	MutateRole     string        `yaml:"mutate_role"`
	Name           string        `yaml:"name"`
	Timeout        time.Duration `yaml:"timeout"`
	Checkpoint     bool          `yaml:"checkpoint"`
	OnlyOn         []string      `yaml:"only_on"`
}

func (d stepDoc) build(catalog *identity.Catalog) (scenario.Step, error) {
	var builders []func() (scenario.Step, error)
	add := func(b func() (scenario.Step, error)) { builders = append(builders, b) }

	if d.Navigate != "" {
		add(func() (scenario.Step, error) { return scenario.Navigate(d.Navigate), nil })
	}
	if d.InjectIdentity != nil {
		add(func() (scenario.Step, error) {
			p, err := d.InjectIdentity.resolve(catalog)
			return scenario.InjectIdentity(p), err
		})
	}
	if d.Click != nil {
		add(func() (scenario.Step, error) {
			sel, err := d.Click.build()
			return scenario.Click(sel), err
		})
	}
	if d.Fill != nil {
		add(func() (scenario.Step, error) {
			sel, err := d.Fill.build()
			return scenario.Fill(sel, d.Fill.Value.Text), err
		})
	}
	if d.Select != nil {
		add(func() (scenario.Step, error) {
			sel, err := d.Select.build()
			return scenario.Select(sel, d.Select.Value.Text), err
		})
	}
	if d.WaitFor != nil {
		add(func() (scenario.Step, error) {
			c, err := d.WaitFor.build()
			return scenario.WaitFor(c, d.WaitFor.Timeout), err
		})
	}
	if d.AssertVisible != nil {
		add(func() (scenario.Step, error) {
			sel, err := d.AssertVisible.build()
			return scenario.AssertVisible(sel), err
		})
	}
	if d.AssertText.set {
		add(func() (scenario.Step, error) { return scenario.AssertTextPresent(d.AssertText.Text), nil })
	}
	if d.Evaluate != "" {
		add(func() (scenario.Step, error) { return scenario.Evaluate(d.Evaluate), nil })
	}
	if d.Screenshot != "" {
		add(func() (scenario.Step, error) { return scenario.Screenshot(d.Screenshot), nil })
	}
	if d.Reload {
		add(func() (scenario.Step, error) { return scenario.Reload(), nil })
	}
	if d.MutateRole != "" {
		add(func() (scenario.Step, error) {
			role, err := identity.ParseRole(d.MutateRole)
			return scenario.MutateRole(role), err
		})
	}
	if len(builders) != 1 {
		return scenario.Step{}, fmt.Errorf("a step needs exactly one action, got %d", len(builders))
	}

	st, err := builders[0]()
	if err != nil {
		return scenario.Step{}, err
	}
	if d.Name != "" {
		st = st.Named(d.Name)
	}
	if d.Timeout > 0 {
		st = st.WithTimeout(d.Timeout)
	}
	if d.Checkpoint {
		st = st.Checkpoint()
	}
	if len(d.OnlyOn) > 0 {
		st = st.OnlyOn(d.OnlyOn...)
	}
	return st, nil
}

// identityRef is a catalog preset id or an inline preset.
type identityRef struct {
	ref    string
	inline *inlinePreset
}

type inlinePreset struct {
	ID     string         `yaml:"id"`
	Role   string         `yaml:"role"`
	Name   string         `yaml:"name"`
	Email  string         `yaml:"email"`
	Locale string         `yaml:"locale"`
	Fields map[string]any `yaml:"fields"`
}

func (r *identityRef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		r.ref = n.Value
		return nil
	}
	r.inline = &inlinePreset{}
	return n.Decode(r.inline)
}

func (r *identityRef) resolve(catalog *identity.Catalog) (identity.Preset, error) {
	if r.inline == nil {
		if p, ok := catalog.Get(r.ref); ok {
			return p, nil
		}
		// a bare role picks that role's default actor
		if role, err := identity.ParseRole(r.ref); err == nil {
			return catalog.ForRole(role)
		}
		return identity.Preset{}, errs.Newf(errs.InvalidArgument, "unknown identity %q (known: %s)", r.ref, strings.Join(catalog.IDs(), ", "))
	}
	role, err := identity.ParseRole(r.inline.Role)
	if err != nil {
		return identity.Preset{}, err
	}
	opts := []identity.Option{identity.WithFields(r.inline.Fields)}
	if r.inline.Email != "" {
		opts = append(opts, identity.WithEmail(r.inline.Email))
	}
	if r.inline.Locale != "" {
		opts = append(opts, identity.WithLocale(r.inline.Locale))
	}
	return identity.NewPreset(r.inline.ID, role, r.inline.Name, opts...)
}
