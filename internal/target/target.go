// Package target defines the capability set the verification engine needs
// from a rendered page, and the selector model used to find elements on it.
//
// A Target is owned by exactly one run. Implementations live in subpackages:
// pwtarget drives a real browser through Playwright, targettest provides a
// scriptable in-memory page for tests.
package target

import (
	"context"
	"time"
)

// Target is one isolated browsing context: its own storage, cookies and history.
type Target interface {
	// Navigate loads url and returns once the document reached a loaded state.
	Navigate(url string, timeout time.Duration) error
	// Reload reloads the current document.
	Reload(timeout time.Duration) error
	// CurrentURL returns the address of the current document.
	CurrentURL() string
	// Evaluate runs a script fragment in the page and returns its JSON-compatible result.
	Evaluate(script string) (any, error)
	// ReadPersistentValue reads a key from the page's persistent key-value storage.
	ReadPersistentValue(key string) (value string, ok bool, err error)
	// WritePersistentValue writes a key to the page's persistent key-value storage.
	// It fails when no document is loaded yet.
	WritePersistentValue(key, value string) error
	// Query returns the elements currently matching sel. It never waits.
	Query(sel Selector) ([]Element, error)
	// Act performs a user gesture on an element obtained from Query.
	Act(el Element, action Action) error
	// WaitUntil blocks until expression evaluates truthy or timeout elapses.
	WaitUntil(expression string, timeout time.Duration) error
	// Screenshot captures the current rendering as PNG bytes.
	Screenshot(fullPage bool) ([]byte, error)
	// Close releases the browsing context. Safe to call more than once.
	Close() error
}

// Element is a handle to one matched element.
type Element interface {
	Visible() (bool, error)
	Enabled() (bool, error)
	Text() (string, error)
}

// Options configures a freshly acquired Target.
type Options struct {
	Viewport       Viewport
	Locale         string
	DefaultTimeout time.Duration
}

// Provider hands out fresh, isolated Targets.
type Provider interface {
	Acquire(ctx context.Context, opts Options) (Target, error)
}

// Truthy applies JavaScript truthiness to an evaluated value.
func Truthy(v any) bool {
	switch typed := v.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case float64:
		return typed != 0
	case int:
		return typed != 0
	case int64:
		return typed != 0
	default:
		return true
	}
}
