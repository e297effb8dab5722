// Package identity describes simulated users: which role they play, what
// the application should believe about them, and how that belief is laid out
// in persisted page storage.
package identity

import (
	"encoding/json"
	"maps"
	"strings"

	"github.com/kuitang/uiverify/internal/errs"
)

// Role is the application role a preset plays.
type Role string

const (
	Guest  Role = "guest"
	Client Role = "client"
	Master Role = "master"
	Admin  Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{Guest, Client, Master, Admin}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", errs.Newf(errs.InvalidArgument, "invalid role %q (want guest, client, master or admin)", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case Guest, Client, Master, Admin:
		return true
	}
	return false
}

// OnboardingField is the profile field lifted into the envelope's companion flag.
const OnboardingField = "isOnboardingCompleted"

// Preset is an immutable simulated user.
type Preset struct {
	id          string
	role        Role
	displayName string
	email       string
	locale      string
	profile     map[string]any
}

// Option customizes a Preset at construction.
type Option func(*Preset)

// WithEmail sets the user's email.
func WithEmail(email string) Option {
	return func(p *Preset) { p.email = email }
}

// WithLocale sets the preferred locale applied with the identity.
func WithLocale(locale string) Option {
	return func(p *Preset) { p.locale = locale }
}

// WithField sets one profile field. Values must be JSON-encodable.
func WithField(name string, value any) Option {
	return func(p *Preset) {
		if p.profile == nil {
			p.profile = map[string]any{}
		}
		p.profile[name] = value
	}
}

// WithFields merges profile fields.
func WithFields(fields map[string]any) Option {
	return func(p *Preset) {
		if p.profile == nil {
			p.profile = map[string]any{}
		}
		maps.Copy(p.profile, fields)
	}
}

// NewPreset builds a preset. Unknown roles fail with an injection error,
// empty ids with an invalid argument error.
func NewPreset(id string, role Role, displayName string, opts ...Option) (Preset, error) {
	p := Preset{
		id:          strings.TrimSpace(id),
		role:        role,
		displayName: displayName,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return Preset{}, err
	}
	// Detach from caller-owned maps handed to WithFields.
	p.profile = cloneFields(p.profile)
	return p, nil
}

// MustPreset is NewPreset for package-level catalogs.
func MustPreset(id string, role Role, displayName string, opts ...Option) Preset {
	p, err := NewPreset(id, role, displayName, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate reports whether the preset can be injected.
func (p Preset) Validate() error {
	if p.id == "" {
		return errs.New(errs.InvalidArgument, "preset id is required")
	}
	if !p.role.Valid() {
		return errs.Newf(errs.Injection, "preset %q: invalid role %q", p.id, p.role)
	}
	for name, v := range p.profile {
		if _, err := json.Marshal(v); err != nil {
			return errs.Wrapf(errs.InvalidArgument, err, "preset %q: profile field %q is not encodable", p.id, name)
		}
	}
	return nil
}

func (p Preset) ID() string          { return p.id }
func (p Preset) Role() Role          { return p.role }
func (p Preset) DisplayName() string { return p.displayName }
func (p Preset) Email() string       { return p.email }
func (p Preset) Locale() string      { return p.locale }
func (p Preset) IsZero() bool        { return p.id == "" }

// Profile returns a copy of the profile fields.
func (p Preset) Profile() map[string]any {
	return cloneFields(p.profile)
}

// WithRole returns a copy of the preset playing a different role.
func (p Preset) WithRole(role Role) (Preset, error) {
	if !role.Valid() {
		return Preset{}, errs.Newf(errs.Injection, "invalid role %q", role)
	}
	out := p
	out.role = role
	out.profile = cloneFields(p.profile)
	return out, nil
}

// OnboardingCompleted reads the companion flag from the profile.
func (p Preset) OnboardingCompleted() bool {
	done, _ := p.profile[OnboardingField].(bool)
	return done
}

// User returns the user object as the application stores it: id, name,
// role, email and every profile field except the companion flag.
func (p Preset) User() map[string]any {
	user := make(map[string]any, len(p.profile)+4)
	for k, v := range p.profile {
		if k == OnboardingField {
			continue
		}
		user[k] = v
	}
	user["id"] = p.id
	user["name"] = p.displayName
	user["role"] = string(p.role)
	if p.email != "" {
		user["email"] = p.email
	}
	return user
}

func cloneFields(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneFields(typed)
	case []any:
		out := make([]any, len(typed))
		for i, child := range typed {
			out[i] = cloneValue(child)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return v
	}
}
