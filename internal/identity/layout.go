package identity

import (
	"encoding/json"
	"fmt"

	"github.com/kuitang/uiverify/internal/errs"
)

// LayoutKind selects how the identity record is persisted.
type LayoutKind string

const (
	// Envelope is the persisted-store shape the live login produces:
	// {"state":{"currentUser":{...},"isOnboardingCompleted":bool},"version":0}.
	Envelope LayoutKind = "envelope"
	// Legacy stores the bare user object under its own key.
	Legacy LayoutKind = "legacy"
)

// Layout is a storage key plus record shape.
type Layout struct {
	Kind LayoutKind
	Key  string
}

// DefaultEnvelope is the envelope layout under the store's default key.
var DefaultEnvelope = Layout{Kind: Envelope, Key: "auth-storage"}

// DefaultLegacy is the legacy layout under its default key.
var DefaultLegacy = Layout{Kind: Legacy, Key: "currentUser"}

type envelopeState struct {
	CurrentUser           map[string]any `json:"currentUser"`
	IsOnboardingCompleted bool           `json:"isOnboardingCompleted"`
}

type envelope struct {
	State   envelopeState `json:"state"`
	Version int           `json:"version"`
}

// Validate reports whether the layout is usable.
func (l Layout) Validate() error {
	if l.Key == "" {
		return errs.New(errs.InvalidArgument, "identity layout needs a storage key")
	}
	switch l.Kind {
	case Envelope, Legacy:
		return nil
	default:
		return errs.Newf(errs.InvalidArgument, "unknown identity layout %q", l.Kind)
	}
}

// Encode serializes the preset into the layout's record.
func (l Layout) Encode(p Preset) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	var v any
	switch l.Kind {
	case Envelope:
		v = envelope{State: envelopeState{
			CurrentUser:           p.User(),
			IsOnboardingCompleted: p.OnboardingCompleted(),
		}}
	case Legacy:
		v = p.User()
	default:
		return "", errs.Newf(errs.InvalidArgument, "unknown identity layout %q", l.Kind)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errs.Wrap(errs.Injection, "encode identity record", err)
	}
	return string(raw), nil
}

// RolePath is the gjson/sjson path of the role field inside the record.
func (l Layout) RolePath() string {
	if l.Kind == Legacy {
		return "role"
	}
	return "state.currentUser.role"
}

// UserPath is the path of the user object inside the record ("" for the whole record).
func (l Layout) UserPath() string {
	if l.Kind == Legacy {
		return ""
	}
	return "state.currentUser"
}

func (l Layout) String() string {
	return fmt.Sprintf("%s:%s", l.Kind, l.Key)
}
