// Package logutil keeps credentials and oversized page text out of log lines.
package logutil

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"
)

// Redacted replaces any value judged sensitive.
const Redacted = "[REDACTED]"

// sensitiveMarkers match normalized keys (lowercase, no '-' or '_').
var sensitiveMarkers = []string{"token", "secret", "password", "apikey", "cookie", "jwt", "credential"}

// Sensitive reports whether a storage key, JSON field or header name likely
// carries a credential.
func Sensitive(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.NewReplacer("-", "", "_", "").Replace(k)
	if k == "authorization" {
		return true
	}
	for _, m := range sensitiveMarkers {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

// RedactValue hides value entirely when key is sensitive and otherwise
// redacts the sensitive fields of a JSON value.
func RedactValue(key, value string) string {
	if Sensitive(key) {
		return Redacted
	}
	return RedactJSON(value)
}

// RedactJSON redacts sensitive fields at any depth. Text that is not JSON is
// returned unchanged.
func RedactJSON(text string) string {
	var doc any
	if json.Unmarshal([]byte(text), &doc) != nil {
		return text
	}
	out, err := json.Marshal(scrub(doc))
	if err != nil {
		return text
	}
	return string(out)
}

func scrub(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if Sensitive(k) {
				node[k] = Redacted
			} else {
				node[k] = scrub(child)
			}
		}
	case []any:
		for i, child := range node {
			node[i] = scrub(child)
		}
	}
	return v
}

// FormatValues renders persisted key/value pairs as "k=v; k=v" in key order,
// redacted and previewed.
func FormatValues(values map[string]string, maxChars int) string {
	if len(values) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(Preview(RedactValue(k, values[k]), maxChars))
	}
	return b.String()
}

// Preview flattens value onto one line and cuts it to at most maxChars bytes
// on a rune boundary. maxChars <= 0 disables the cut.
func Preview(value string, maxChars int) string {
	s := strings.ReplaceAll(strings.TrimSpace(value), "\n", `\n`)
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... [truncated]"
}
