package identity

import (
	"sort"

	"github.com/kuitang/uiverify/internal/errs"
)

// Catalog is a set of presets keyed by id.
type Catalog struct {
	presets map[string]Preset
	byRole  map[Role]string
}

// NewCatalog indexes presets. The first preset of each role becomes that
// role's default.
func NewCatalog(presets ...Preset) (*Catalog, error) {
	c := &Catalog{presets: map[string]Preset{}, byRole: map[Role]string{}}
	for _, p := range presets {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.presets[p.id]; dup {
			return nil, errs.Newf(errs.InvalidArgument, "duplicate preset id %q", p.id)
		}
		c.presets[p.id] = p
		if _, ok := c.byRole[p.role]; !ok {
			c.byRole[p.role] = p.id
		}
	}
	return c, nil
}

// Get returns the preset with the given id.
func (c *Catalog) Get(id string) (Preset, bool) {
	p, ok := c.presets[id]
	return p, ok
}

// ForRole returns the default preset for a matrix role.
func (c *Catalog) ForRole(role Role) (Preset, error) {
	id, ok := c.byRole[role]
	if !ok {
		return Preset{}, errs.Newf(errs.InvalidArgument, "no preset for role %q", role)
	}
	return c.presets[id], nil
}

// IDs lists preset ids, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.presets))
	for id := range c.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Actors used by the built-in journeys.
var (
	GuestUser = MustPreset("guest", Guest, "Гість")

	ClientUser = MustPreset("client-1", Client, "Володимир Петров",
		WithEmail("volodymyr@example.com"),
		WithField("phone", "+380501234567"),
		WithField("city", "Київ"),
		WithField(OnboardingField, true),
	)

	MasterUser = MustPreset("master-1", Master, "Олександр Петренко",
		WithEmail("oleksandr@example.com"),
		WithField("city", "Київ"),
		WithField("skills", []any{"iPhone", "Samsung", "MacBook"}),
		WithField("rating", 4.8),
		WithField(OnboardingField, true),
	)

	TestMaster = MustPreset("test-master", Master, "Test Master",
		WithEmail("test-master@example.com"),
		WithField(OnboardingField, true),
	)

	ExperiencedMaster = MustPreset("experienced-master", Master, "Олександр Петренко",
		WithEmail("oleksandr@example.com"),
		WithField("workExperience", []any{
			map[string]any{"company": "iFixit", "position": "Repair Technician", "years": 3},
		}),
		WithField(OnboardingField, true),
	)

	NewMaster = MustPreset("new-master", Master, "Новий Майстер",
		WithEmail("new-master@example.com"),
		WithField(OnboardingField, false),
	)

	AdminUser = MustPreset("admin-1", Admin, "Адміністратор",
		WithEmail("admin@example.com"),
		WithField(OnboardingField, true),
	)
)

// Builtin returns the catalog of built-in actors.
func Builtin() *Catalog {
	c, err := NewCatalog(GuestUser, ClientUser, MasterUser, AdminUser, TestMaster, ExperiencedMaster, NewMaster)
	if err != nil {
		panic(err)
	}
	return c
}
