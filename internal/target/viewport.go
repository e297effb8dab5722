package target

import (
	"fmt"
	"sort"
	"strings"
)

// Viewport is a named window size.
type Viewport struct {
	Name   string
	Width  int
	Height int
}

var namedViewports = map[string]Viewport{
	"desktop": {Name: "desktop", Width: 1920, Height: 1080},
	"laptop":  {Name: "laptop", Width: 1280, Height: 800},
	"tablet":  {Name: "tablet", Width: 768, Height: 1024},
	"mobile":  {Name: "mobile", Width: 375, Height: 667},
}

// Desktop is the viewport used when a scenario names none.
var Desktop = namedViewports["desktop"]

// LookupViewport resolves a viewport name.
func LookupViewport(name string) (Viewport, error) {
	vp, ok := namedViewports[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Viewport{}, fmt.Errorf("unknown viewport %q (want one of %s)", name, strings.Join(ViewportNames(), ", "))
	}
	return vp, nil
}

// ViewportNames lists the known viewport names, sorted.
func ViewportNames() []string {
	names := make([]string, 0, len(namedViewports))
	for name := range namedViewports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v Viewport) String() string {
	return fmt.Sprintf("%s(%dx%d)", v.Name, v.Width, v.Height)
}
