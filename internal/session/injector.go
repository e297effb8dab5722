// Package session seeds and edits the persisted state a web application
// reads at boot to decide who is logged in and which language to show. The
// records it writes mirror exactly what the live login flow stores, so the
// application cannot tell an injected session from a real one.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/logutil"
	"github.com/kuitang/uiverify/internal/obs"
	"github.com/kuitang/uiverify/internal/target"
)

// RoleChange selects how MutateRole escalates a session.
type RoleChange string

const (
	// Patch rewrites only the role field of the existing record.
	Patch RoleChange = "patch"
	// Reinject rebuilds the whole record from the preset with the new role.
	Reinject RoleChange = "reinject"
)

// Config configures an Injector.
type Config struct {
	Layout identity.Layout
	// LocaleKey is the i18n detector's storage key. Empty disables ApplyLocale.
	LocaleKey string
	// TokenKey and TokenSecret enable the companion bearer token.
	TokenKey    string
	TokenSecret []byte
	RoleChange  RoleChange
	// Now is the clock for token timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Injector writes identity and locale state into a Target.
type Injector struct {
	cfg Config
}

// New validates cfg and returns an Injector.
func New(cfg Config) (*Injector, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	switch cfg.RoleChange {
	case "":
		cfg.RoleChange = Patch
	case Patch, Reinject:
	default:
		return nil, errs.Newf(errs.InvalidArgument, "unknown role change mode %q", cfg.RoleChange)
	}
	if (cfg.TokenKey == "") != (len(cfg.TokenSecret) == 0) {
		return nil, errs.New(errs.InvalidArgument, "token key and token secret must be set together")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Injector{cfg: cfg}, nil
}

// Layout is the record layout this injector writes.
func (in *Injector) Layout() identity.Layout { return in.cfg.Layout }

// Mode is the configured role-change mode.
func (in *Injector) Mode() RoleChange { return in.cfg.RoleChange }

// Inject writes the preset's record (and token, when configured). The target
// must already have a document. The application sees the identity on its
// next navigation or reload.
func (in *Injector) Inject(ctx context.Context, t target.Target, p identity.Preset) error {
	if err := p.Validate(); err != nil {
		return errs.Wrapf(errs.Injection, err, "inject %q", p.ID())
	}
	record, err := in.cfg.Layout.Encode(p)
	if err != nil {
		return errs.Wrapf(errs.Injection, err, "inject %q", p.ID())
	}
	if err := t.WritePersistentValue(in.cfg.Layout.Key, record); err != nil {
		return errs.Wrapf(errs.Injection, err, "inject %q: storage unavailable", p.ID())
	}
	written := map[string]string{in.cfg.Layout.Key: record}
	token, err := in.writeToken(t, p)
	if err != nil {
		return err
	}
	if token != "" {
		written[in.cfg.TokenKey] = token
	}

	obs.From(ctx).With("pkg", "session").Debug(
		"identity_injected",
		"preset", p.ID(),
		"preset_role", string(p.Role()),
		"layout", string(in.cfg.Layout.Kind),
		"values", logutil.FormatValues(written, 300),
	)
	return nil
}

// writeToken stores a signed bearer token for p and returns it. It returns ""
// when no token key is configured.
func (in *Injector) writeToken(t target.Target, p identity.Preset) (string, error) {
	if in.cfg.TokenKey == "" {
		return "", nil
	}
	token, err := SignToken(in.cfg.TokenSecret, p, in.cfg.Now())
	if err != nil {
		return "", errs.Wrap(errs.Injection, "sign bearer token", err)
	}
	if err := t.WritePersistentValue(in.cfg.TokenKey, token); err != nil {
		return "", errs.Wrap(errs.Injection, "write bearer token", err)
	}
	return token, nil
}

// ApplyLocale writes the i18n detector key so the application boots in locale.
func (in *Injector) ApplyLocale(ctx context.Context, t target.Target, locale string) error {
	if in.cfg.LocaleKey == "" || strings.TrimSpace(locale) == "" {
		return nil
	}
	if err := t.WritePersistentValue(in.cfg.LocaleKey, locale); err != nil {
		return errs.Wrapf(errs.Injection, err, "apply locale %q: storage unavailable", locale)
	}
	obs.From(ctx).With("pkg", "session").Debug("locale_applied", "key", in.cfg.LocaleKey, "value", locale)
	return nil
}

// MutateRole changes the role of the injected session and reloads so the
// application picks it up. current is the preset last injected; it is only
// consulted in Reinject mode. It returns the preset now in effect.
func (in *Injector) MutateRole(ctx context.Context, t target.Target, current identity.Preset, role identity.Role, reloadTimeout time.Duration) (identity.Preset, error) {
	if !role.Valid() {
		return current, errs.Newf(errs.Injection, "mutate role: invalid role %q", role)
	}

	var next identity.Preset
	var err error
	switch in.cfg.RoleChange {
	case Reinject:
		next, err = in.reinject(ctx, t, current, role)
	default:
		next, err = in.patch(t, current, role)
	}
	if err != nil {
		return current, err
	}

	if err := t.Reload(reloadTimeout); err != nil {
		return next, errs.Wrap(errs.Navigation, "reload after role change", err)
	}
	obs.From(ctx).With("pkg", "session").Info(
		"role_mutated",
		"mode", string(in.cfg.RoleChange),
		"new_role", string(role),
	)
	return next, nil
}

func (in *Injector) patch(t target.Target, current identity.Preset, role identity.Role) (identity.Preset, error) {
	key := in.cfg.Layout.Key
	raw, ok, err := t.ReadPersistentValue(key)
	if err != nil {
		return current, errs.Wrap(errs.Injection, "mutate role: storage unavailable", err)
	}
	if !ok {
		return current, errs.Newf(errs.Injection, "mutate role: no identity record under %q", key)
	}
	if !gjson.Valid(raw) {
		return current, errs.Newf(errs.Injection, "mutate role: record under %q is not JSON", key)
	}
	path := in.cfg.Layout.RolePath()
	if !gjson.Get(raw, path).Exists() {
		return current, errs.Newf(errs.Injection, "mutate role: record under %q has no %s", key, path)
	}

	patched, err := sjson.Set(raw, path, string(role))
	if err != nil {
		return current, errs.Wrap(errs.Injection, "mutate role: patch record", err)
	}
	if err := t.WritePersistentValue(key, patched); err != nil {
		return current, errs.Wrap(errs.Injection, "mutate role: write record", err)
	}

	next := current
	if !current.IsZero() {
		if next, err = current.WithRole(role); err != nil {
			return current, err
		}
	} else if next, err = presetFromRecord(in.cfg.Layout, patched); err != nil {
		return current, err
	}
	if _, err := in.writeToken(t, next); err != nil {
		return current, err
	}
	return next, nil
}

func (in *Injector) reinject(ctx context.Context, t target.Target, current identity.Preset, role identity.Role) (identity.Preset, error) {
	if current.IsZero() {
		raw, ok, err := t.ReadPersistentValue(in.cfg.Layout.Key)
		if err != nil {
			return current, errs.Wrap(errs.Injection, "mutate role: storage unavailable", err)
		}
		if !ok {
			return current, errs.Newf(errs.Injection, "mutate role: no identity record under %q", in.cfg.Layout.Key)
		}
		if current, err = presetFromRecord(in.cfg.Layout, raw); err != nil {
			return current, err
		}
	}
	next, err := current.WithRole(role)
	if err != nil {
		return current, err
	}
	if err := in.Inject(ctx, t, next); err != nil {
		return current, err
	}
	return next, nil
}

// presetFromRecord rebuilds a preset from a stored user object so a
// session injected outside this run can still be escalated.
func presetFromRecord(l identity.Layout, raw string) (identity.Preset, error) {
	user := gjson.Parse(raw)
	if p := l.UserPath(); p != "" {
		user = user.Get(p)
	}
	if !user.IsObject() {
		return identity.Preset{}, errs.New(errs.Injection, "identity record has no user object")
	}

	var opts []identity.Option
	fields := map[string]any{}
	user.ForEach(func(k, v gjson.Result) bool {
		switch k.String() {
		case "id", "name", "role":
		case "email":
			opts = append(opts, identity.WithEmail(v.String()))
		default:
			fields[k.String()] = v.Value()
		}
		return true
	})
	if l.Kind == identity.Envelope {
		fields[identity.OnboardingField] = gjson.Get(raw, "state."+identity.OnboardingField).Bool()
	}
	opts = append(opts, identity.WithFields(fields))

	p, err := identity.NewPreset(user.Get("id").String(), identity.Role(user.Get("role").String()), user.Get("name").String(), opts...)
	if err != nil {
		return identity.Preset{}, errs.Wrap(errs.Injection, "identity record", err)
	}
	return p, nil
}
