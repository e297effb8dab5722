package targettest

import "fmt"

// StaticApp renders a fixed node list. Dynamic behavior comes from node
// callbacks mutating Page.State and from RenderFunc.
type StaticApp struct {
	Nodes      []*Node
	RenderFunc func(p *Page) []*Node
	BootFunc   func(p *Page)
	// Scripts maps a script to its result; an error value is thrown.
	Scripts map[string]any
}

func (a *StaticApp) Boot(p *Page) {
	if a.BootFunc != nil {
		a.BootFunc(p)
	}
}

func (a *StaticApp) Render(p *Page) []*Node {
	if a.RenderFunc != nil {
		return a.RenderFunc(p)
	}
	return a.Nodes
}

func (a *StaticApp) Evaluate(_ *Page, script string) (any, error) {
	v, ok := a.Scripts[script]
	if !ok {
		return nil, fmt.Errorf("ReferenceError: %s is not defined", script)
	}
	if err, isErr := v.(error); isErr {
		return nil, err
	}
	return v, nil
}
