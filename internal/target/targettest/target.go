// Package targettest provides a scriptable in-memory target.Target for
// tests. A fake application renders a flat list of nodes per page state;
// queries, gestures, storage and screenshots operate on that list.
package targettest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/uiverify/internal/poll"
	"github.com/kuitang/uiverify/internal/target"
)

// ErrNoDocument is returned by storage access before any navigation.
var ErrNoDocument = errors.New("targettest: storage unavailable, no document loaded")

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("targettest: target closed")

// Node is one rendered element.
type Node struct {
	Role        string
	Name        string
	Text        string
	Placeholder string
	Label       string
	Title       string
	// CSS lists the CSS selectors this node answers to verbatim.
	CSS      []string
	Hidden   bool
	Disabled bool
	Options  []string

	OnClick  func(p *Page)
	OnFill   func(p *Page, value string)
	OnSelect func(p *Page, value string)
}

// Page is the mutable document state an App renders from.
type Page struct {
	URL      string
	Path     string
	Storage  map[string]string
	State    map[string]any
	Inputs   map[string]string
	Locale   string
	Viewport target.Viewport
}

// Go changes the SPA route without reloading the document.
func (p *Page) Go(path string) {
	u, err := url.Parse(p.URL)
	if err != nil {
		p.Path = path
		return
	}
	ref, err := url.Parse(path)
	if err != nil {
		return
	}
	next := u.ResolveReference(ref)
	p.URL = next.String()
	p.Path = next.Path
}

// App is a fake application.
type App interface {
	// Boot runs on every navigation and reload; it reads Storage into State.
	Boot(p *Page)
	// Render returns the nodes of the current state.
	Render(p *Page) []*Node
}

// Evaluator is implemented by apps that answer page scripts.
type Evaluator interface {
	Evaluate(p *Page, script string) (any, error)
}

// Target is an in-memory target.Target. It is safe for concurrent use.
type Target struct {
	mu   sync.Mutex
	app  App
	page *Page

	// Settle is how many Query calls return nothing after a navigation or
	// gesture, modeling asynchronous rendering.
	Settle  int
	pending int

	NavigateErr   error
	ScreenshotErr error

	closed      bool
	closeCalls  int
	screenshots int
	actions     []string
}

// New creates a target rendering app.
func New(app App, opts target.Options) *Target {
	vp := opts.Viewport
	if vp.Name == "" {
		vp = target.Desktop
	}
	return &Target{
		app: app,
		page: &Page{
			Storage:  map[string]string{},
			State:    map[string]any{},
			Inputs:   map[string]string{},
			Locale:   opts.Locale,
			Viewport: vp,
		},
	}
}

func (t *Target) Navigate(rawURL string, _ time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.NavigateErr != nil {
		return t.NavigateErr
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("targettest: invalid url %q", rawURL)
	}
	t.page.URL = u.String()
	t.page.Path = u.Path
	if t.page.Path == "" {
		t.page.Path = "/"
	}
	t.bootLocked()
	return nil
}

func (t *Target) Reload(_ time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.page.URL == "" {
		return fmt.Errorf("targettest: nothing to reload")
	}
	if t.NavigateErr != nil {
		return t.NavigateErr
	}
	t.bootLocked()
	return nil
}

func (t *Target) bootLocked() {
	t.page.State = map[string]any{}
	t.page.Inputs = map[string]string{}
	t.app.Boot(t.page)
	t.pending = t.Settle
}

func (t *Target) CurrentURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.page.URL
}

func (t *Target) Evaluate(script string) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evaluateLocked(script)
}

func (t *Target) evaluateLocked(script string) (any, error) {
	if t.closed {
		return nil, ErrClosed
	}
	switch strings.TrimSpace(script) {
	case "window.location.href", "location.href":
		return t.page.URL, nil
	case "true":
		return true, nil
	}
	if ev, ok := t.app.(Evaluator); ok {
		return ev.Evaluate(t.page, script)
	}
	return nil, fmt.Errorf("ReferenceError: cannot evaluate %q", script)
}

func (t *Target) ReadPersistentValue(key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", false, ErrClosed
	}
	if t.page.URL == "" {
		return "", false, ErrNoDocument
	}
	v, ok := t.page.Storage[key]
	return v, ok, nil
}

func (t *Target) WritePersistentValue(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.page.URL == "" {
		return ErrNoDocument
	}
	t.page.Storage[key] = value
	return nil
}

func (t *Target) Query(sel target.Selector) ([]target.Element, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if t.pending > 0 {
		t.pending--
		return nil, nil
	}
	var out []target.Element
	for _, n := range t.app.Render(t.page) {
		if matches(sel, n) {
			out = append(out, &element{t: t, node: n})
		}
	}
	return out, nil
}

func matches(sel target.Selector, n *Node) bool {
	field := func(v string) bool { return v != "" && sel.Matches(v) }
	switch sel.Kind {
	case target.KindRole:
		return n.Role == sel.Role && (sel.Value == "" || field(n.Name))
	case target.KindText:
		return field(n.Text)
	case target.KindPlaceholder:
		return field(n.Placeholder)
	case target.KindLabel:
		return field(n.Label)
	case target.KindTitle:
		return field(n.Title)
	case target.KindCSS:
		return slices.Contains(n.CSS, sel.Value)
	default:
		return false
	}
}

func (t *Target) Act(el target.Element, a target.Action) error {
	e, ok := el.(*element)
	if !ok || e.t != t {
		return fmt.Errorf("targettest: foreign element")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	n := e.node
	if n.Hidden {
		return fmt.Errorf("targettest: element is not visible")
	}
	if n.Disabled {
		return fmt.Errorf("targettest: element is disabled")
	}
	switch a.Kind {
	case target.ActionClick:
		if n.OnClick != nil {
			n.OnClick(t.page)
		}
	case target.ActionFill:
		t.page.Inputs[inputKey(n)] = a.Value
		if n.OnFill != nil {
			n.OnFill(t.page, a.Value)
		}
	case target.ActionSelect:
		if !slices.Contains(n.Options, a.Value) {
			return fmt.Errorf("targettest: no option %q", a.Value)
		}
		t.page.Inputs[inputKey(n)] = a.Value
		if n.OnSelect != nil {
			n.OnSelect(t.page, a.Value)
		}
	default:
		return fmt.Errorf("targettest: unsupported action %q", a.Kind)
	}
	t.actions = append(t.actions, a.String())
	t.pending = t.Settle
	return nil
}

func inputKey(n *Node) string {
	for _, k := range []string{n.Placeholder, n.Label, n.Name} {
		if k != "" {
			return k
		}
	}
	return n.Role
}

// WaitUntil evaluates expression every millisecond until it is truthy.
func (t *Target) WaitUntil(expression string, timeout time.Duration) error {
	_, err := poll.Until(context.Background(), time.Millisecond, timeout, func() (bool, error) {
		v, err := t.Evaluate(expression)
		if err != nil {
			return false, err
		}
		return target.Truthy(v), nil
	})
	return err
}

func (t *Target) Screenshot(fullPage bool) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if t.ScreenshotErr != nil {
		return nil, t.ScreenshotErr
	}
	t.screenshots++
	var b strings.Builder
	b.WriteString("\x89PNG\r\n\x1a\n")
	fmt.Fprintf(&b, "%s|%s|full=%v", t.page.URL, t.page.Viewport.Name, fullPage)
	for _, n := range t.app.Render(t.page) {
		if n.Hidden {
			continue
		}
		for _, v := range []string{n.Name, n.Text} {
			if v != "" {
				b.WriteString("|" + v)
			}
		}
	}
	return []byte(b.String()), nil
}

func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.closeCalls++
	return nil
}

// Closed reports whether Close was called.
func (t *Target) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Screenshots counts successful captures.
func (t *Target) Screenshots() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.screenshots
}

// Actions lists performed gestures in order.
func (t *Target) Actions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.actions)
}

// Storage returns a snapshot of persisted values.
func (t *Target) Storage() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.page.Storage))
	for k, v := range t.page.Storage {
		out[k] = v
	}
	return out
}

// Viewport is the viewport the target was acquired with.
func (t *Target) Viewport() target.Viewport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.page.Viewport
}

type element struct {
	t    *Target
	node *Node
}

func (e *element) Visible() (bool, error) {
	e.t.mu.Lock()
	defer e.t.mu.Unlock()
	if e.t.closed {
		return false, ErrClosed
	}
	return !e.node.Hidden, nil
}

func (e *element) Enabled() (bool, error) {
	e.t.mu.Lock()
	defer e.t.mu.Unlock()
	if e.t.closed {
		return false, ErrClosed
	}
	return !e.node.Disabled, nil
}

func (e *element) Text() (string, error) {
	e.t.mu.Lock()
	defer e.t.mu.Unlock()
	if e.t.closed {
		return "", ErrClosed
	}
	if e.node.Text != "" {
		return e.node.Text, nil
	}
	return e.node.Name, nil
}

// Provider hands out Targets rendering a fresh App per acquisition.
type Provider struct {
	NewApp func() App
	// Settle is copied into every acquired Target.
	Settle int
	// AcquireErr fails every Acquire when set.
	AcquireErr error
	// Configure runs on each new Target before it is returned.
	Configure func(*Target)

	mu      sync.Mutex
	targets []*Target
	opts    []target.Options
}

func (p *Provider) Acquire(ctx context.Context, opts target.Options) (target.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	t := New(p.NewApp(), opts)
	t.Settle = p.Settle
	if p.Configure != nil {
		p.Configure(t)
	}
	p.mu.Lock()
	p.targets = append(p.targets, t)
	p.opts = append(p.opts, opts)
	p.mu.Unlock()
	return t, nil
}

// Targets lists acquired targets in acquisition order.
func (p *Provider) Targets() []*Target {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.targets)
}

// Options lists the options each target was acquired with.
func (p *Provider) Options() []target.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.opts)
}
