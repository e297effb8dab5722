package target

import "fmt"

// ActionKind names a user gesture.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionFill   ActionKind = "fill"
	ActionSelect ActionKind = "select"
)

// Action is a gesture applied to one element.
type Action struct {
	Kind  ActionKind
	Value string
}

func Click() Action { return Action{Kind: ActionClick} }

func Fill(text string) Action { return Action{Kind: ActionFill, Value: text} }

func SelectOption(value string) Action { return Action{Kind: ActionSelect, Value: value} }

func (a Action) Validate() error {
	switch a.Kind {
	case ActionClick, ActionFill:
		return nil
	case ActionSelect:
		if a.Value == "" {
			return fmt.Errorf("select needs an option value")
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
}

func (a Action) String() string {
	if a.Kind == ActionClick {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s(%q)", a.Kind, a.Value)
}
