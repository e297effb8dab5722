package scenario

import "github.com/kuitang/uiverify/internal/target"

// Selector is a locale-independent element query. Resolve turns it into a
// concrete target.Selector for one matrix cell.
type Selector struct {
	kind  target.SelectorKind
	role  string
	name  Text
	exact bool
	first bool
}

func ByRole(role string, name Text) Selector {
	return Selector{kind: target.KindRole, role: role, name: name}
}

func ByText(text Text) Selector {
	return Selector{kind: target.KindText, name: text}
}

func ByPlaceholder(text Text) Selector {
	return Selector{kind: target.KindPlaceholder, name: text}
}

func ByLabel(text Text) Selector {
	return Selector{kind: target.KindLabel, name: text}
}

func ByTitle(text Text) Selector {
	return Selector{kind: target.KindTitle, name: text}
}

// ByCSS selects by CSS. CSS is not localized.
func ByCSS(css string) Selector {
	return Selector{kind: target.KindCSS, name: T(css)}
}

// Exact returns a copy that requires a full, case-sensitive match.
func (s Selector) Exact() Selector {
	s.exact = true
	return s
}

// First returns a copy that accepts several matches and uses the first.
func (s Selector) First() Selector {
	s.first = true
	return s
}

func (s Selector) Kind() target.SelectorKind { return s.kind }
func (s Selector) RoleName() string          { return s.role }
func (s Selector) Name() Text                { return s.name.clone() }
func (s Selector) IsExact() bool             { return s.exact }
func (s Selector) IsFirst() bool             { return s.first }
func (s Selector) IsZero() bool              { return s.kind == "" }

// Resolve produces the concrete selector for locale.
func (s Selector) Resolve(locale string) target.Selector {
	sel := target.Selector{Kind: s.kind, Role: s.role, Value: s.name.Resolve(locale)}
	if s.exact {
		sel = sel.WithExact()
	}
	if s.first {
		sel = sel.WithFirst()
	}
	return sel
}

func (s Selector) String() string {
	return s.Resolve("").String()
}

func (s Selector) clone() Selector {
	s.name = s.name.clone()
	return s
}
