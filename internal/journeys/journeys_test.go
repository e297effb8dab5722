package journeys

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/executor"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/runner"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/session"
	"github.com/kuitang/uiverify/internal/target/targettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu   sync.Mutex
	keys []string
}

func (m *memSink) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return key, nil
}

func newRunner(t *testing.T, sink *memSink) *runner.Runner {
	t.Helper()
	in, err := session.New(session.Config{Layout: identity.DefaultEnvelope, LocaleKey: "i18nextLng"})
	require.NoError(t, err)
	provider := &targettest.Provider{
		NewApp: func() targettest.App { return targettest.NewRepairHub() },
		Settle: 2,
	}
	return runner.New(provider, in, sink, runner.Options{
		BaseURL:      "http://repairhub.test",
		WaitTimeout:  500 * time.Millisecond,
		PollInterval: 2 * time.Millisecond,
	})
}

func failureCode(res runner.RunResult) errs.Code {
	if res.Failure == nil {
		return ""
	}
	return res.Failure.Code
}

func TestBuiltin_ValidAndLintClean(t *testing.T) {
	t.Parallel()

	reg := Builtin()
	require.NotEmpty(t, reg.IDs())
	for _, e := range reg.Entries() {
		require.NoError(t, e.Scenario.Validate(), e.ID())
		assert.Empty(t, e.Scenario.Lint(), e.ID())
		cells, err := e.Matrix.Expand(e.Scenario)
		require.NoError(t, err, e.ID())
		assert.NotEmpty(t, cells, e.ID())
	}
	assert.IsIncreasing(t, reg.IDs())
}

func TestNewRegistry_Rejects(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(Portfolio(), Portfolio())
	require.Error(t, err)

	bad := Portfolio()
	bad.Scenario.Steps = nil
	_, err = NewRegistry(bad)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	reg := Builtin()
	e, ok := reg.Get("portfolio")
	require.True(t, ok)
	e.Scenario.Steps[0] = scenario.Navigate("/elsewhere")

	again, _ := reg.Get("portfolio")
	assert.Equal(t, "/", again.Scenario.Steps[0].Path)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestPortfolio_MasterPasses(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	e := Portfolio()
	results, err := newRunner(t, sink).Run(context.Background(), e.Scenario, e.Matrix)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	require.True(t, res.Passed(), "failure: %+v", res.Failure)
	assert.Equal(t, []string{
		"portfolio/master_uk_desktop/empty.png",
		"portfolio/master_uk_desktop/with-item.png",
	}, res.Artifacts)
	observed := res.Observed()
	require.NotEmpty(t, observed)
	assert.Equal(t, "Test Portfolio Item", observed[len(observed)-1])
}

func TestPortfolio_MissingItemIsAnAssertionFailure(t *testing.T) {
	t.Parallel()

	e := Portfolio()
	steps := e.Scenario.Steps
	require.Equal(t, scenario.KindAssertText, steps[10].Kind)
	// Skip opening the form and creating the item.
	e.Scenario.Steps = append(append([]scenario.Step{}, steps[:6]...), steps[10:]...)

	results, err := newRunner(t, &memSink{}).Run(context.Background(), e.Scenario, e.Matrix)
	require.NoError(t, err)
	res := results[0]
	require.False(t, res.Passed())
	assert.Equal(t, errs.Assertion, failureCode(res))
	assert.Equal(t, 6, res.Failure.Step)
	assert.Contains(t, res.Failure.Selector, "Test Portfolio Item")
}

func TestProposal_ClientFailsElementNotFound(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	e := Proposal()
	results, err := newRunner(t, sink).Run(context.Background(), e.Scenario, scenario.Matrix{
		Roles: []identity.Role{identity.Client},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, runner.StatusFailed, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, errs.ElementNotFound, res.Failure.Code)
	assert.Equal(t, 2, res.Failure.Step)
	assert.Contains(t, res.Failure.Selector, "Розмістити пропозицію")
	assert.Equal(t, []string{"proposal/client_uk_desktop/error.png"}, res.Artifacts)
}

func TestBuiltin_AllPassOnTheirMatrix(t *testing.T) {
	t.Parallel()

	for _, e := range Builtin().Entries() {
		t.Run(e.ID(), func(t *testing.T) {
			t.Parallel()

			results, err := newRunner(t, &memSink{}).Run(context.Background(), e.Scenario, e.Matrix)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			for _, res := range results {
				assert.True(t, res.Passed(), "%s: %s %+v", res.Cell.Key(), failureCode(res), res.Failure)
			}
		})
	}
}

func TestTranslations_DistinctArtifactsPerLocale(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	e := Translations()
	results, err := newRunner(t, sink).Run(context.Background(), e.Scenario, e.Matrix)
	require.NoError(t, err)
	require.Len(t, results, len(TranslationLocales))

	seen := map[string]bool{}
	for i, res := range results {
		require.True(t, res.Passed(), res.Cell.Key())
		assert.Equal(t, TranslationLocales[i], res.Cell.Locale)
		require.Len(t, res.Observed(), 1)
		seen[res.Observed()[0]] = true
	}
	assert.Len(t, seen, len(TranslationLocales))
	assert.Len(t, sink.keys, len(TranslationLocales))
}

func TestOnboarding_EnglishAndScreenshots(t *testing.T) {
	t.Parallel()

	for _, e := range []Entry{MasterOnboarding(), ClientOnboarding()} {
		results, err := newRunner(t, &memSink{}).Run(context.Background(), e.Scenario, scenario.Matrix{Locales: []string{"uk", "en"}})
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, res := range results {
			require.True(t, res.Passed(), "%s %s: %+v", e.ID(), res.Cell.Key(), res.Failure)
			assert.Len(t, res.Artifacts, OnboardingSteps+1)
		}
	}
}

func TestResponsiveOrders_MenuOnlyOnMobile(t *testing.T) {
	t.Parallel()

	e := ResponsiveOrders()
	results, err := newRunner(t, &memSink{}).Run(context.Background(), e.Scenario, e.Matrix)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		require.True(t, res.Passed(), res.Cell.Key())
		menu := res.Steps[1]
		if res.Cell.Viewport.Name == "mobile" {
			assert.Equal(t, executor.StatusPassed, menu.Status)
		} else {
			assert.Equal(t, executor.StatusSkipped, menu.Status)
		}
	}
}
