package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/uiverify/internal/artifact"
	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/executor"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/session"
	"github.com/kuitang/uiverify/internal/target"
	"github.com/kuitang/uiverify/internal/target/targettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "http://app.test"

type memSink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemSink() *memSink { return &memSink{files: map[string][]byte{}} }

func (m *memSink) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.files[key]; dup {
		return "", errors.New("overwrite of " + key)
	}
	m.files[key] = data
	return key, nil
}

func (m *memSink) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	return out
}

func hubProvider() *targettest.Provider {
	return &targettest.Provider{
		NewApp: func() targettest.App { return targettest.NewRepairHub() },
		Settle: 2,
	}
}

func newRunner(t *testing.T, p target.Provider, sink artifact.Sink) *Runner {
	t.Helper()
	in, err := session.New(session.Config{Layout: identity.DefaultEnvelope, LocaleKey: "i18nextLng"})
	require.NoError(t, err)
	return New(p, in, sink, Options{
		BaseURL:      testBase,
		WaitTimeout:  200 * time.Millisecond,
		PollInterval: 2 * time.Millisecond,
		Parallelism:  3,
	})
}

func errorShots(res RunResult) int {
	n := 0
	for _, a := range res.Artifacts {
		if strings.HasSuffix(a, "/error.png") {
			n++
		}
	}
	return n
}

var greeting = scenario.T("👋 Hello, Володимир Петров!").In("uk", "👋 Привіт, Володимир Петров!")

func TestRun_InjectedIdentityShowsGreeting(t *testing.T) {
	t.Parallel()

	p := hubProvider()
	r := newRunner(t, p, nil)
	s := scenario.Scenario{
		ID:       "client-home",
		Identity: identity.ClientUser,
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.AssertVisible(scenario.ByRole("heading", greeting)),
		},
	}
	results, err := r.Run(context.Background(), s, scenario.Matrix{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	require.Equal(t, StatusPassed, res.Status, res.Failure)
	assert.Equal(t, "client_uk_desktop", res.Cell.Key())
	assert.Equal(t, []string{"👋 Привіт, Володимир Петров!"}, res.Observed())
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Finished.Before(res.Started))
	assert.True(t, p.Targets()[0].Closed())
}

func TestRun_LocalesProduceDistinctArtifacts(t *testing.T) {
	t.Parallel()

	sink := newMemSink()
	r := newRunner(t, hubProvider(), sink)
	hero := scenario.T("Device repair near you").
		In("uk", "Ремонт техніки поруч з вами").
		In("ru", "Ремонт техники рядом с вами")
	s := scenario.Scenario{
		ID: "landing",
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.AssertTextPresent(hero),
			scenario.Screenshot("hero"),
		},
	}
	results, err := r.Run(context.Background(), s, scenario.Matrix{Locales: []string{"uk", "en", "ru"}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	seenText := map[string]bool{}
	seenPath := map[string]bool{}
	for _, res := range results {
		require.Equal(t, StatusPassed, res.Status, res.Failure)
		require.Len(t, res.Artifacts, 1)
		seenPath[res.Artifacts[0]] = true
		seenText[res.Observed()[0]] = true
	}
	assert.Len(t, seenText, 3)
	assert.Len(t, seenPath, 3)
	assert.ElementsMatch(t, []string{
		"landing/guest_uk_desktop/hero.png",
		"landing/guest_en_desktop/hero.png",
		"landing/guest_ru_desktop/hero.png",
	}, sink.keys())
}

func TestRun_InfraFailureReleasesAndScreenshotsOnce(t *testing.T) {
	t.Parallel()

	sink := newMemSink()
	p := hubProvider()
	r := newRunner(t, p, sink)
	s := scenario.Scenario{
		ID: "broken",
		Steps: []scenario.Step{
			scenario.Navigate("/"),
			scenario.Click(scenario.ByRole("button", scenario.T("Не існує"))),
			scenario.Screenshot("after"),
		},
	}
	results, err := r.Run(context.Background(), s, scenario.Matrix{})
	require.NoError(t, err)
	res := results[0]

	assert.Equal(t, StatusFailed, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, errs.ElementNotFound, res.Failure.Code)
	assert.Equal(t, 1, res.Failure.Step)
	assert.Contains(t, res.Failure.Selector, "Не існує")
	assert.Equal(t, testBase+"/", res.Failure.LastURL)
	assert.Equal(t, 1, errorShots(res))
	assert.Equal(t, []string{"broken/guest_uk_desktop/error.png"}, sink.keys())
	assert.Equal(t, executor.StatusSkipped, res.Steps[2].Status)
	assert.True(t, p.Targets()[0].Closed())
}

func TestRun_NavigationFailureDuringSetup(t *testing.T) {
	t.Parallel()

	p := hubProvider()
	p.Configure = func(tg *targettest.Target) { tg.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED") }
	r := newRunner(t, p, newMemSink())
	s := scenario.Scenario{ID: "offline", Steps: []scenario.Step{scenario.Navigate("/")}}

	results, err := r.Run(context.Background(), s, scenario.Matrix{})
	require.NoError(t, err)
	res := results[0]
	assert.Equal(t, errs.Navigation, res.Failure.Code)
	assert.Equal(t, -1, res.Failure.Step)
	assert.Equal(t, 1, errorShots(res))
	assert.True(t, p.Targets()[0].Closed())
	require.Len(t, res.Steps, 1)
	assert.Equal(t, executor.StatusSkipped, res.Steps[0].Status)
}

func TestRun_ScreenshotFailureNeverAborts(t *testing.T) {
	t.Parallel()

	p := hubProvider()
	p.Configure = func(tg *targettest.Target) { tg.ScreenshotErr = errors.New("gpu lost") }
	r := newRunner(t, p, newMemSink())
	s := scenario.Scenario{ID: "shots", Steps: []scenario.Step{
		scenario.Navigate("/"),
		scenario.Screenshot("landing"),
		scenario.AssertTextPresent(scenario.T("Ремонт техніки")),
	}}
	results, err := r.Run(context.Background(), s, scenario.Matrix{})
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, results[0].Status, results[0].Failure)
	assert.NotEmpty(t, results[0].Steps[1].Warnings)
}

func TestRun_CheckpointContinues(t *testing.T) {
	t.Parallel()

	r := newRunner(t, hubProvider(), newMemSink())
	s := scenario.Scenario{ID: "checkpoint", Steps: []scenario.Step{
		scenario.Navigate("/"),
		scenario.AssertTextPresent(scenario.T("Not on the page")).Checkpoint(),
		scenario.Screenshot("landing"),
		scenario.AssertTextPresent(scenario.T("Ремонт техніки")),
	}}
	results, err := r.Run(context.Background(), s, scenario.Matrix{})
	require.NoError(t, err)
	res := results[0]

	assert.Equal(t, StatusFailed, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, errs.Assertion, res.Failure.Code)
	assert.Equal(t, 1, res.Failure.Step)
	require.Len(t, res.Steps, 4)
	assert.Equal(t, executor.StatusPassed, res.Steps[2].Status)
	assert.Equal(t, executor.StatusPassed, res.Steps[3].Status)
	assert.Equal(t, 1, errorShots(res))
}

func TestRun_CancelledBetweenSteps(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app := &targettest.StaticApp{Nodes: []*targettest.Node{
		{Role: "button", Name: "Stop", OnClick: func(*targettest.Page) { cancel() }},
		{Role: "heading", Name: "Still here"},
	}}
	p := &targettest.Provider{NewApp: func() targettest.App { return app }}
	sink := newMemSink()
	r := newRunner(t, p, sink)
	s := scenario.Scenario{ID: "cancel", Steps: []scenario.Step{
		scenario.Navigate("/"),
		scenario.Click(scenario.ByRole("button", scenario.T("Stop"))),
		scenario.AssertVisible(scenario.ByRole("heading", scenario.T("Still here"))),
	}}
	results, err := r.Run(ctx, s, scenario.Matrix{})
	require.NoError(t, err)
	res := results[0]

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, errs.Cancelled, res.Failure.Code)
	assert.Equal(t, 2, res.Failure.Step)
	assert.Equal(t, executor.StatusPassed, res.Steps[1].Status)
	assert.Equal(t, executor.StatusSkipped, res.Steps[2].Status)
	assert.Equal(t, 1, errorShots(res))
	assert.True(t, p.Targets()[0].Closed())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := hubProvider()
	r := newRunner(t, p, nil)
	s := scenario.Scenario{ID: "early", Steps: []scenario.Step{scenario.Navigate("/")}}
	results, err := r.Run(ctx, s, scenario.Matrix{Viewports: []string{"desktop", "mobile"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, errs.Cancelled, res.Failure.Code)
	}
	assert.Empty(t, p.Targets())
}

func TestRun_AcquireFailure(t *testing.T) {
	t.Parallel()

	p := hubProvider()
	p.AcquireErr = errors.New("browser crashed")
	r := newRunner(t, p, newMemSink())
	results, err := r.Run(context.Background(), scenario.Scenario{ID: "x", Steps: []scenario.Step{scenario.Navigate("/")}}, scenario.Matrix{})
	require.NoError(t, err)
	assert.Equal(t, errs.Internal, results[0].Failure.Code)
	assert.Equal(t, "acquire target", results[0].Failure.Message)
	assert.Contains(t, results[0].Failure.Cause, "browser crashed")
	assert.Equal(t, 0, errorShots(results[0]))
}

func TestRun_MatrixOrderAndIsolation(t *testing.T) {
	t.Parallel()

	p := hubProvider()
	r := newRunner(t, p, nil)
	s := scenario.Scenario{ID: "roles", Steps: []scenario.Step{scenario.Navigate("/")}}
	m := scenario.Matrix{
		Roles:     []identity.Role{identity.Client, identity.Admin},
		Viewports: []string{"desktop", "tablet", "mobile"},
	}
	results, err := r.Run(context.Background(), s, m)
	require.NoError(t, err)
	require.Len(t, results, 6)

	var keys []string
	ids := map[string]bool{}
	for _, res := range results {
		keys = append(keys, res.Cell.Key())
		ids[res.RunID] = true
		assert.Equal(t, StatusPassed, res.Status, res.Failure)
	}
	assert.Equal(t, []string{
		"client_uk_desktop", "client_uk_tablet", "client_uk_mobile",
		"admin_uk_desktop", "admin_uk_tablet", "admin_uk_mobile",
	}, keys)
	assert.Len(t, ids, 6)

	targets := p.Targets()
	require.Len(t, targets, 6)
	for _, tg := range targets {
		assert.True(t, tg.Closed())
		assert.Contains(t, tg.Storage(), "auth-storage")
	}
}

func TestRun_ExplicitInjectionFollowsCellRole(t *testing.T) {
	t.Parallel()

	r := newRunner(t, hubProvider(), nil)
	s := scenario.Scenario{
		ID:       "dashboard",
		Identity: identity.MasterUser,
		Steps: []scenario.Step{
			scenario.InjectIdentity(identity.MasterUser),
			scenario.Navigate("/"),
			scenario.AssertVisible(scenario.ByRole("heading", scenario.T("Кабінет майстра"))),
		},
	}
	m := scenario.Matrix{Roles: []identity.Role{identity.Master, identity.Client, identity.Guest}}
	results, err := r.Run(context.Background(), s, m)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, StatusPassed, results[0].Status, results[0].Failure)
	assert.Equal(t, errs.Assertion, results[1].Failure.Code, "client sees the client dashboard")
	assert.Equal(t, executor.StatusSkipped, results[2].Steps[0].Status)
	assert.Equal(t, errs.Assertion, results[2].Failure.Code)
}

func TestRun_RejectsBadInput(t *testing.T) {
	t.Parallel()

	in, err := session.New(session.Config{Layout: identity.DefaultEnvelope})
	require.NoError(t, err)
	r := New(hubProvider(), in, nil, Options{})

	_, err = r.Run(context.Background(), scenario.Scenario{ID: "x", Steps: []scenario.Step{scenario.Navigate("/")}}, scenario.Matrix{})
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err), "no base url")

	_, err = r.Run(context.Background(), scenario.Scenario{ID: "x", BaseURL: testBase}, scenario.Matrix{})
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err), "no steps")

	_, err = r.Run(context.Background(), scenario.Scenario{ID: "x", BaseURL: testBase, Steps: []scenario.Step{scenario.Navigate("/")}},
		scenario.Matrix{Viewports: []string{"watch"}})
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestRunAll_WritesReports(t *testing.T) {
	t.Parallel()

	sink := newMemSink()
	r := newRunner(t, hubProvider(), sink)
	scenarios := []scenario.Scenario{
		{ID: "landing", Description: "Guest landing", Steps: []scenario.Step{scenario.Navigate("/")}},
		{ID: "missing", Steps: []scenario.Step{scenario.Navigate("/"), scenario.AssertTextPresent(scenario.T("nope"))}},
	}
	sums, err := r.RunAll(context.Background(), scenarios, scenario.Matrix{})
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.True(t, sums[0].OK())
	assert.False(t, sums[1].OK())
	assert.Equal(t, "Guest landing", sums[0].Description)

	keys := sink.keys()
	for _, k := range []string{"landing/summary.json", "landing/summary.md", "landing/summary.html", "missing/summary.json"} {
		assert.Contains(t, keys, k)
	}
}

func TestRunAll_ReportsNonNegativeDurations(t *testing.T) {
	t.Parallel()

	sink := newMemSink()
	r := newRunner(t, hubProvider(), sink)
	scenarios := []scenario.Scenario{
		{ID: "landing", Steps: []scenario.Step{scenario.Navigate("/")}},
		{ID: "missing", Steps: []scenario.Step{scenario.Navigate("/"), scenario.AssertTextPresent(scenario.T("nope"))}},
	}
	sums, err := r.RunAll(context.Background(), scenarios, scenario.Matrix{})
	require.NoError(t, err)

	for _, sum := range sums {
		require.False(t, sum.Finished.IsZero(), sum.Scenario)
		assert.GreaterOrEqual(t, sum.Finished.Sub(sum.Started), time.Duration(0), sum.Scenario)
		for _, c := range sum.Cells {
			require.False(t, c.Finished.IsZero(), c.Cell)
			assert.GreaterOrEqual(t, c.Finished.Sub(c.Started), time.Duration(0), c.Cell)
		}
		md := sum.Markdown()
		assert.NotRegexp(t, `(\| | in )-[0-9]`, md, "negative duration rendered in %s", sum.Scenario)
	}

	sink.mu.Lock()
	md := string(sink.files["missing/summary.md"])
	sink.mu.Unlock()
	assert.Contains(t, md, "- **Code:** assertion")
}
