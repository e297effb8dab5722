package scenariofile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const portfolioDoc = `
id: portfolio
description: Master adds a portfolio item
base_url: http://repairhub.test
identity: test-master
navigation_timeout: 20s
matrix:
  locales: [uk, en]
  viewports: [desktop, mobile]
steps:
  - navigate: /
  - click: {role: link, name: {default: Portfolio, uk: Портфоліо}}
  - wait_for: {url_contains: /portfolio, timeout: 3s}
  - screenshot: empty
  - fill:
      placeholder: {default: Title, uk: Назва}
      value: Test item
  - click: {role: button, name: Create, exact: true}
  - assert_visible: {role: article, name: Test item}
    checkpoint: true
  - click: {css: 'button[aria-label="Open menu"]'}
    only_on: [mobile]
    name: open menu
  - reload: true
  - mutate_role: admin
  - assert_text: {uk: Панель адміністратора, en: Admin Dashboard}
    timeout: 2s
`

func TestParse_Portfolio(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte(portfolioDoc), nil)
	require.NoError(t, err)

	s := f.Scenario
	assert.Equal(t, "portfolio", s.ID)
	assert.Equal(t, "http://repairhub.test", s.BaseURL)
	assert.Equal(t, identity.TestMaster.ID(), s.Identity.ID())
	assert.Equal(t, 20*time.Second, s.NavigationTimeout)
	assert.Equal(t, []string{"uk", "en"}, f.Matrix.Locales)
	assert.Equal(t, []string{"desktop", "mobile"}, f.Matrix.Viewports)
	require.Len(t, s.Steps, 11)

	click := s.Steps[1]
	assert.Equal(t, scenario.KindInteract, click.Kind)
	assert.Equal(t, target.ActionClick, click.Action.Kind)
	assert.Equal(t, "Портфоліо", click.Selector.Resolve("uk").Value)
	assert.Equal(t, "Portfolio", click.Selector.Resolve("en").Value)

	wait := s.Steps[2]
	assert.Equal(t, scenario.CondURLContains, wait.Condition.Kind)
	assert.Equal(t, 3*time.Second, wait.Timeout)

	fill := s.Steps[4]
	assert.Equal(t, target.ActionFill, fill.Action.Kind)
	assert.Equal(t, target.KindPlaceholder, fill.Selector.Kind())
	assert.Equal(t, "Test item", fill.Action.Resolve("uk").Value)

	assert.True(t, s.Steps[5].Selector.IsExact())
	assert.True(t, s.Steps[6].Independent)
	assert.Equal(t, []string{"mobile"}, s.Steps[7].Viewports)
	assert.Equal(t, "open menu", s.Steps[7].Describe("uk"))
	assert.Equal(t, scenario.KindReload, s.Steps[8].Kind)
	assert.Equal(t, identity.Admin, s.Steps[9].Role)

	text := s.Steps[10]
	assert.Equal(t, "Панель адміністратора", text.Text.Resolve("uk"))
	assert.Equal(t, "Admin Dashboard", text.Text.Resolve("en"))
	assert.Equal(t, "Панель адміністратора", text.Text.Resolve("pl"), "falls back to the default locale's value")
	assert.Equal(t, 2*time.Second, text.Timeout)
}

func TestParse_InlineIdentity(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte(`
id: inline
identity:
  id: master-x
  role: master
  name: Тестовий Майстер
  email: master@test.com
  fields:
    city: Київ
    isOnboardingCompleted: true
steps:
  - navigate: /
  - inject_identity: admin
  - navigate: /admin
`), nil)
	require.NoError(t, err)
	p := f.Scenario.Identity
	assert.Equal(t, "master-x", p.ID())
	assert.Equal(t, identity.Master, p.Role())
	assert.Equal(t, "Київ", p.Profile()["city"])
	assert.True(t, p.OnboardingCompleted())
	assert.Equal(t, identity.Admin, f.Scenario.Steps[1].Preset.Role())
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no steps":         "id: x\n",
		"unknown field":    "id: x\nsteps:\n  - navigate: /\nbogus: 1\n",
		"two actions":      "id: x\nsteps:\n  - navigate: /\n    reload: true\n",
		"no action":        "id: x\nsteps:\n  - name: nothing\n",
		"two selectors":    "id: x\nsteps:\n  - click: {text: a, css: b}\n",
		"bad role":         "id: x\nsteps:\n  - mutate_role: superuser\n",
		"unknown identity": "id: x\nidentity: nobody\nsteps:\n  - navigate: /\n",
		"reserved label":   "id: x\nsteps:\n  - screenshot: error\n",
		"no default text":  "id: x\nsteps:\n  - assert_text: {en: Hi}\n",
		"bad matrix role":  "id: x\nmatrix: {roles: [root]}\nsteps:\n  - navigate: /\n",
		"bad viewport":     "id: x\nsteps:\n  - reload: true\n    only_on: [watch]\n",
		"two conditions":   "id: x\nsteps:\n  - wait_for: {url_contains: /a, script_truthy: x}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(doc), nil)
			require.Error(t, err)
			assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "portfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(portfolioDoc), 0o600))
	f, err := Load(path, identity.Builtin())
	require.NoError(t, err)
	assert.Equal(t, "portfolio", f.Scenario.ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}
