package target

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectorKind names how a Selector finds elements.
type SelectorKind string

const (
	KindRole        SelectorKind = "role"
	KindText        SelectorKind = "text"
	KindPlaceholder SelectorKind = "placeholder"
	KindLabel       SelectorKind = "label"
	KindTitle       SelectorKind = "title"
	KindCSS         SelectorKind = "css"
)

// Selector is a concrete, already-localized element query.
type Selector struct {
	Kind SelectorKind
	// Role is the ARIA role for KindRole.
	Role string
	// Value is the accessible name, text, placeholder, label, title or CSS selector.
	Value string
	// Exact requires a full, case-sensitive match instead of a substring match.
	Exact bool
	// First picks the first match instead of requiring exactly one.
	First bool
}

func ByRole(role, name string) Selector {
	return Selector{Kind: KindRole, Role: role, Value: name}
}

func ByText(text string) Selector {
	return Selector{Kind: KindText, Value: text}
}

func ByPlaceholder(text string) Selector {
	return Selector{Kind: KindPlaceholder, Value: text}
}

func ByLabel(text string) Selector {
	return Selector{Kind: KindLabel, Value: text}
}

func ByTitle(text string) Selector {
	return Selector{Kind: KindTitle, Value: text}
}

func ByCSS(css string) Selector {
	return Selector{Kind: KindCSS, Value: css}
}

// WithExact returns a copy of s that requires an exact match.
func (s Selector) WithExact() Selector {
	s.Exact = true
	return s
}

// WithFirst returns a copy of s that picks the first of several matches.
func (s Selector) WithFirst() Selector {
	s.First = true
	return s
}

// Validate reports whether the selector is well-formed.
func (s Selector) Validate() error {
	switch s.Kind {
	case KindRole:
		if strings.TrimSpace(s.Role) == "" {
			return fmt.Errorf("role selector needs a role")
		}
		return nil
	case KindText, KindPlaceholder, KindLabel, KindTitle, KindCSS:
		if s.Value == "" {
			return fmt.Errorf("%s selector needs a value", s.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown selector kind %q", s.Kind)
	}
}

// Matches reports whether candidate satisfies the selector's value under its
// exactness rule. Exact matching compares whole strings; otherwise matching is
// a case-insensitive substring test after whitespace normalization.
func (s Selector) Matches(candidate string) bool {
	if s.Exact {
		return candidate == s.Value
	}
	return strings.Contains(
		strings.ToLower(normalizeSpace(candidate)),
		strings.ToLower(normalizeSpace(s.Value)),
	)
}

func normalizeSpace(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

func (s Selector) String() string {
	var b strings.Builder
	switch s.Kind {
	case KindRole:
		b.WriteString("role=" + s.Role)
		if s.Value != "" {
			b.WriteString("[name=" + strconv.Quote(s.Value) + "]")
		}
	default:
		b.WriteString(string(s.Kind) + "=" + strconv.Quote(s.Value))
	}
	if s.Exact {
		b.WriteString(" exact")
	}
	if s.First {
		b.WriteString(" first")
	}
	return b.String()
}
