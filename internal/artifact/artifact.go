// Package artifact names, stores and summarizes the evidence a run leaves
// behind: screenshots per matrix cell and a report per scenario execution.
package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
)

// Sink stores one artifact and returns where it can be found.
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ObjectKey is the storage key of a cell artifact:
// <scenario>/<role>_<locale>_<viewport>/<label>.png with every segment sanitized.
func ObjectKey(scenarioID, cellKey, label string) string {
	return path.Join(Sanitize(scenarioID), Sanitize(cellKey), Sanitize(label)+".png")
}

// Sanitize maps s to a single safe path segment: ASCII letters, digits,
// '-', '_' and '.'; anything else becomes '-'. Runs of '-' collapse, and
// leading dots or dashes are dropped so a segment can never climb out of
// its directory.
func Sanitize(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '.'
		if ok {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimLeft(b.String(), ".-")
	out = strings.TrimRight(out, "-")
	if out == "" {
		return "unnamed"
	}
	return out
}

// Collector saves the artifacts of one run. Repeated labels get -2, -3
// suffixes so nothing is overwritten.
type Collector struct {
	sink     Sink
	scenario string
	cell     string

	mu        sync.Mutex
	taken     map[string]bool
	locations []string
}

// NewCollector returns a collector writing under scenarioID/cellKey.
func NewCollector(sink Sink, scenarioID, cellKey string) *Collector {
	return &Collector{sink: sink, scenario: scenarioID, cell: cellKey, taken: map[string]bool{}}
}

func (c *Collector) nextLabel(label string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := c.freeLocked(label)
	c.taken[name] = true
	return name
}

func (c *Collector) freeLocked(label string) string {
	base := Sanitize(label)
	name := base
	for n := 2; c.taken[name]; n++ {
		name = fmt.Sprintf("%s-%d", base, n)
	}
	return name
}

// Save stores image as a PNG under label and returns its location.
func (c *Collector) Save(ctx context.Context, label string, image []byte) (string, error) {
	key := ObjectKey(c.scenario, c.cell, c.nextLabel(label))
	loc, err := c.sink.Put(ctx, key, image, "image/png")
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.locations = append(c.locations, loc)
	c.mu.Unlock()
	return loc, nil
}

// Locations lists every saved artifact in save order.
func (c *Collector) Locations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.locations...)
}
