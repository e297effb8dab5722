// Package pwtarget implements target.Target over a real browser driven by
// Playwright. One Launcher owns the browser process; every Acquire opens a
// fresh browser context so runs never share storage, cookies or history.
package pwtarget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/uiverify/internal/obs"
	"github.com/kuitang/uiverify/internal/target"
)

// Config configures the browser process.
type Config struct {
	// Browser is chromium, firefox or webkit. Defaults to chromium.
	Browser string
	// Headless runs without a visible window.
	Headless bool
	// InstallBrowsers downloads the driver and browser before launching.
	InstallBrowsers bool
}

// ErrClosed is returned by operations on a closed target or launcher.
var ErrClosed = errors.New("pwtarget: closed")

// Launcher is a target.Provider backed by one browser process.
type Launcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser

	mu     sync.Mutex
	closed bool
}

// Launch starts Playwright and the configured browser.
func Launch(cfg Config) (*Launcher, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Browser))
	if name == "" {
		name = "chromium"
	}
	if cfg.InstallBrowsers {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{name}}); err != nil {
			return nil, fmt.Errorf("pwtarget: install %s: %w", name, err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("pwtarget: start playwright: %w", err)
	}

	var bt playwright.BrowserType
	switch name {
	case "chromium":
		bt = pw.Chromium
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, fmt.Errorf("pwtarget: unknown browser %q", cfg.Browser)
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("pwtarget: launch %s: %w", name, err)
	}
	obs.Pkg("pwtarget").Info("browser_launched", "browser", name, "version", browser.Version(), "headless", cfg.Headless)
	return &Launcher{pw: pw, browser: browser}, nil
}

// Acquire opens an isolated browser context with one page.
func (l *Launcher) Acquire(ctx context.Context, opts target.Options) (target.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	vp := opts.Viewport
	if vp.Name == "" {
		vp = target.Desktop
	}
	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: vp.Width, Height: vp.Height},
	}
	if opts.Locale != "" {
		ctxOpts.Locale = playwright.String(opts.Locale)
	}
	bctx, err := l.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("pwtarget: new context: %w", err)
	}
	if opts.DefaultTimeout > 0 {
		bctx.SetDefaultTimeout(millis(opts.DefaultTimeout))
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("pwtarget: new page: %w", err)
	}
	return &Target{ctx: bctx, page: page, timeout: opts.DefaultTimeout}, nil
}

// Close stops the browser and the Playwright driver.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(l.browser.Close(), l.pw.Stop())
}

// Target is one browser context and its single page.
type Target struct {
	ctx     playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

var _ target.Target = (*Target)(nil)

func millis(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}

func (t *Target) alive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return nil
}

func (t *Target) Navigate(url string, timeout time.Duration) error {
	if err := t.alive(); err != nil {
		return err
	}
	opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	if _, err := t.page.Goto(url, opts); err != nil {
		return fmt.Errorf("pwtarget: goto %s: %w", url, err)
	}
	return nil
}

func (t *Target) Reload(timeout time.Duration) error {
	if err := t.alive(); err != nil {
		return err
	}
	opts := playwright.PageReloadOptions{WaitUntil: playwright.WaitUntilStateLoad}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	if _, err := t.page.Reload(opts); err != nil {
		return fmt.Errorf("pwtarget: reload: %w", err)
	}
	return nil
}

func (t *Target) CurrentURL() string {
	if t.alive() != nil {
		return ""
	}
	return t.page.URL()
}

func (t *Target) Evaluate(script string) (any, error) {
	if err := t.alive(); err != nil {
		return nil, err
	}
	v, err := t.page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("pwtarget: evaluate: %w", err)
	}
	return v, nil
}

// about:blank has an opaque origin, so storage access throws until a
// document from the application is loaded.
func (t *Target) hasDocument() bool {
	u := t.page.URL()
	return u != "" && u != "about:blank"
}

func (t *Target) ReadPersistentValue(key string) (string, bool, error) {
	if err := t.alive(); err != nil {
		return "", false, err
	}
	if !t.hasDocument() {
		return "", false, errors.New("pwtarget: storage unavailable, no document loaded")
	}
	v, err := t.page.Evaluate(`k => window.localStorage.getItem(k)`, key)
	if err != nil {
		return "", false, fmt.Errorf("pwtarget: read %q: %w", key, err)
	}
	s, ok := v.(string)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}

func (t *Target) WritePersistentValue(key, value string) error {
	if err := t.alive(); err != nil {
		return err
	}
	if !t.hasDocument() {
		return errors.New("pwtarget: storage unavailable, no document loaded")
	}
	if _, err := t.page.Evaluate(`([k, v]) => window.localStorage.setItem(k, v)`, []string{key, value}); err != nil {
		return fmt.Errorf("pwtarget: write %q: %w", key, err)
	}
	return nil
}

func (t *Target) locator(sel target.Selector) (playwright.Locator, error) {
	exact := playwright.Bool(sel.Exact)
	switch sel.Kind {
	case target.KindRole:
		opts := playwright.PageGetByRoleOptions{}
		if sel.Value != "" {
			opts.Name = sel.Value
			opts.Exact = exact
		}
		return t.page.GetByRole(playwright.AriaRole(sel.Role), opts), nil
	case target.KindText:
		return t.page.GetByText(sel.Value, playwright.PageGetByTextOptions{Exact: exact}), nil
	case target.KindPlaceholder:
		return t.page.GetByPlaceholder(sel.Value, playwright.PageGetByPlaceholderOptions{Exact: exact}), nil
	case target.KindLabel:
		return t.page.GetByLabel(sel.Value, playwright.PageGetByLabelOptions{Exact: exact}), nil
	case target.KindTitle:
		return t.page.GetByTitle(sel.Value, playwright.PageGetByTitleOptions{Exact: exact}), nil
	case target.KindCSS:
		return t.page.Locator(sel.Value), nil
	default:
		return nil, fmt.Errorf("pwtarget: unsupported selector kind %q", sel.Kind)
	}
}

func (t *Target) Query(sel target.Selector) ([]target.Element, error) {
	if err := t.alive(); err != nil {
		return nil, err
	}
	loc, err := t.locator(sel)
	if err != nil {
		return nil, err
	}
	n, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("pwtarget: query %s: %w", sel, err)
	}
	out := make([]target.Element, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &element{t: t, loc: loc.Nth(i)})
	}
	return out, nil
}

func (t *Target) Act(el target.Element, a target.Action) error {
	e, ok := el.(*element)
	if !ok || e.t != t {
		return errors.New("pwtarget: foreign element")
	}
	if err := t.alive(); err != nil {
		return err
	}
	var err error
	switch a.Kind {
	case target.ActionClick:
		err = e.loc.Click(playwright.LocatorClickOptions{Timeout: t.actionTimeout()})
	case target.ActionFill:
		err = e.loc.Fill(a.Value, playwright.LocatorFillOptions{Timeout: t.actionTimeout()})
	case target.ActionSelect:
		_, err = e.loc.SelectOption(
			playwright.SelectOptionValues{Values: playwright.StringSlice(a.Value)},
			playwright.LocatorSelectOptionOptions{Timeout: t.actionTimeout()},
		)
	default:
		return fmt.Errorf("pwtarget: unsupported action %q", a.Kind)
	}
	if err != nil {
		return fmt.Errorf("pwtarget: %s: %w", a, err)
	}
	return nil
}

func (t *Target) actionTimeout() *float64 {
	if t.timeout <= 0 {
		return nil
	}
	return playwright.Float(millis(t.timeout))
}

// WaitUntil waits in the page for expression to become truthy.
func (t *Target) WaitUntil(expression string, timeout time.Duration) error {
	if err := t.alive(); err != nil {
		return err
	}
	opts := playwright.PageWaitForFunctionOptions{}
	if timeout > 0 {
		opts.Timeout = playwright.Float(millis(timeout))
	}
	if _, err := t.page.WaitForFunction(expression, nil, opts); err != nil {
		return fmt.Errorf("pwtarget: wait for %q: %w", expression, err)
	}
	return nil
}

func (t *Target) Screenshot(fullPage bool) ([]byte, error) {
	if err := t.alive(); err != nil {
		return nil, err
	}
	png, err := t.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("pwtarget: screenshot: %w", err)
	}
	return png, nil
}

func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.ctx.Close()
}

type element struct {
	t   *Target
	loc playwright.Locator
}

func (e *element) Visible() (bool, error) {
	return e.loc.IsVisible()
}

func (e *element) Enabled() (bool, error) {
	return e.loc.IsEnabled()
}

func (e *element) Text() (string, error) {
	return e.loc.InnerText()
}
