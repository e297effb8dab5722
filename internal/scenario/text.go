package scenario

import (
	"maps"
	"sort"
	"strings"
)

// Text is a string with per-locale overrides. Every selector name and every
// typed or asserted string in a scenario is a Text, so one scenario can run
// across a locale matrix.
type Text struct {
	Default  string
	ByLocale map[string]string
}

// T starts a Text with its default value.
func T(s string) Text {
	return Text{Default: s}
}

// In returns a copy of t with an override for locale.
func (t Text) In(locale, s string) Text {
	out := Text{Default: t.Default, ByLocale: make(map[string]string, len(t.ByLocale)+1)}
	maps.Copy(out.ByLocale, t.ByLocale)
	out.ByLocale[normalizeLocale(locale)] = s
	return out
}

// Resolve picks the override for locale, then for its base language
// ("en-US" falls back to "en"), then the default.
func (t Text) Resolve(locale string) string {
	locale = normalizeLocale(locale)
	if v, ok := t.ByLocale[locale]; ok {
		return v
	}
	if base, _, found := strings.Cut(locale, "-"); found {
		if v, ok := t.ByLocale[base]; ok {
			return v
		}
	}
	return t.Default
}

// IsZero reports whether t has no value in any locale.
func (t Text) IsZero() bool {
	if t.Default != "" {
		return false
	}
	for _, v := range t.ByLocale {
		if v != "" {
			return false
		}
	}
	return true
}

// Locales lists the locales with explicit overrides, sorted.
func (t Text) Locales() []string {
	out := make([]string, 0, len(t.ByLocale))
	for l := range t.ByLocale {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (t Text) clone() Text {
	if t.ByLocale == nil {
		return t
	}
	return Text{Default: t.Default, ByLocale: maps.Clone(t.ByLocale)}
}

func normalizeLocale(l string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(l), "_", "-"))
}
