package scenario

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/target"
)

// Matrix is the roles × locales × viewports a scenario runs across.
// An empty dimension falls back to the scenario's own value.
type Matrix struct {
	Roles     []identity.Role
	Locales   []string
	Viewports []string
}

// Cell is one point of the matrix.
type Cell struct {
	Role     identity.Role
	Locale   string
	Viewport target.Viewport
}

// Key names the cell for artifact paths: role_locale_viewport.
func (c Cell) Key() string {
	return fmt.Sprintf("%s_%s_%s", c.Role, c.Locale, c.Viewport.Name)
}

// Expand produces the deduplicated cells in deterministic order: roles
// outermost, then locales, then viewports, each in first-seen order.
func (m Matrix) Expand(s Scenario) ([]Cell, error) {
	roles := lo.Uniq(m.Roles)
	if len(roles) == 0 {
		roles = []identity.Role{s.Role()}
	}
	locales := lo.Uniq(lo.Map(m.Locales, func(l string, _ int) string { return normalizeLocale(l) }))
	locales = lo.Compact(locales)
	if len(locales) == 0 {
		locales = []string{normalizeLocale(s.OwnLocale())}
	}
	viewportNames := lo.Uniq(m.Viewports)
	if len(viewportNames) == 0 {
		viewportNames = []string{s.OwnViewport()}
	}

	for _, r := range roles {
		if !r.Valid() {
			return nil, errs.Newf(errs.InvalidArgument, "matrix: invalid role %q", r)
		}
	}
	viewports := make([]target.Viewport, 0, len(viewportNames))
	for _, name := range viewportNames {
		vp, err := target.LookupViewport(name)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "matrix", err)
		}
		viewports = append(viewports, vp)
	}
	viewports = lo.UniqBy(viewports, func(v target.Viewport) string { return v.Name })

	cells := make([]Cell, 0, len(roles)*len(locales)*len(viewports))
	for _, r := range roles {
		for _, l := range locales {
			for _, vp := range viewports {
				cells = append(cells, Cell{Role: r, Locale: l, Viewport: vp})
			}
		}
	}
	return cells, nil
}

// ParseMatrix builds a matrix from driver strings (CLI flags, tool arguments).
func ParseMatrix(roles, locales, viewports []string) (Matrix, error) {
	m := Matrix{Locales: locales, Viewports: viewports}
	for _, r := range roles {
		role, err := identity.ParseRole(r)
		if err != nil {
			return Matrix{}, err
		}
		m.Roles = append(m.Roles, role)
	}
	return m, nil
}
