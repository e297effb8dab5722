package scenario

import (
	"fmt"
	"strings"
)

// ConditionKind tags a WaitFor condition.
type ConditionKind string

const (
	CondURLContains    ConditionKind = "url_contains"
	CondScriptTruthy   ConditionKind = "script_truthy"
	CondElementVisible ConditionKind = "element_visible"
	CondElementHidden  ConditionKind = "element_hidden"
	CondTextVisible    ConditionKind = "text_visible"
)

// Condition is a predicate over page state polled by WaitFor.
type Condition struct {
	Kind     ConditionKind
	Fragment string
	Script   string
	Selector Selector
	Text     Text
}

func URLContains(fragment string) Condition {
	return Condition{Kind: CondURLContains, Fragment: fragment}
}

func ScriptTruthy(expression string) Condition {
	return Condition{Kind: CondScriptTruthy, Script: expression}
}

func ElementVisible(sel Selector) Condition {
	return Condition{Kind: CondElementVisible, Selector: sel}
}

func ElementHidden(sel Selector) Condition {
	return Condition{Kind: CondElementHidden, Selector: sel}
}

func TextVisible(text Text) Condition {
	return Condition{Kind: CondTextVisible, Text: text}
}

func (c Condition) Validate() error {
	switch c.Kind {
	case CondURLContains:
		if c.Fragment == "" {
			return fmt.Errorf("url_contains needs a fragment")
		}
	case CondScriptTruthy:
		if strings.TrimSpace(c.Script) == "" {
			return fmt.Errorf("script_truthy needs an expression")
		}
	case CondElementVisible, CondElementHidden:
		return c.Selector.Resolve("").Validate()
	case CondTextVisible:
		if c.Text.IsZero() {
			return fmt.Errorf("text_visible needs text")
		}
	default:
		return fmt.Errorf("unknown condition %q", c.Kind)
	}
	return nil
}

func (c Condition) Describe(locale string) string {
	switch c.Kind {
	case CondURLContains:
		return fmt.Sprintf("url contains %q", c.Fragment)
	case CondScriptTruthy:
		return "script " + c.Script
	case CondElementVisible:
		return c.Selector.Resolve(locale).String() + " visible"
	case CondElementHidden:
		return c.Selector.Resolve(locale).String() + " hidden"
	case CondTextVisible:
		return fmt.Sprintf("text %q visible", c.Text.Resolve(locale))
	default:
		return string(c.Kind)
	}
}

func (c Condition) clone() Condition {
	c.Selector = c.Selector.clone()
	c.Text = c.Text.clone()
	return c
}
