package targettest

import (
	"context"
	"testing"
	"time"

	"github.com/kuitang/uiverify/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget_StorageNeedsDocument(t *testing.T) {
	t.Parallel()

	tg := New(NewRepairHub(), target.Options{})
	require.ErrorIs(t, tg.WritePersistentValue("k", "v"), ErrNoDocument)
	_, _, err := tg.ReadPersistentValue("k")
	require.ErrorIs(t, err, ErrNoDocument)

	require.NoError(t, tg.Navigate("http://app.test/", time.Second))
	require.NoError(t, tg.WritePersistentValue("k", "v"))
	v, ok, err := tg.ReadPersistentValue("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestTarget_SettleDelaysRendering(t *testing.T) {
	t.Parallel()

	tg := New(NewRepairHub(), target.Options{Locale: "en"})
	tg.Settle = 2
	require.NoError(t, tg.Navigate("http://app.test/", time.Second))

	hero := target.ByRole("heading", "Device repair")
	for i := 0; i < 2; i++ {
		els, err := tg.Query(hero)
		require.NoError(t, err)
		assert.Empty(t, els)
	}
	els, err := tg.Query(hero)
	require.NoError(t, err)
	assert.Len(t, els, 1)
}

func TestRepairHub_SessionFromEnvelope(t *testing.T) {
	t.Parallel()

	tg := New(NewRepairHub(), target.Options{})
	require.NoError(t, tg.Navigate("http://app.test/", time.Second))
	require.NoError(t, tg.WritePersistentValue("auth-storage",
		`{"state":{"currentUser":{"id":"c","name":"Володимир Петров","role":"client"},"isOnboardingCompleted":true},"version":0}`))

	els, _ := tg.Query(target.ByRole("heading", "Привіт"))
	assert.Empty(t, els, "session is read only at boot")

	require.NoError(t, tg.Reload(time.Second))
	els, err := tg.Query(target.ByRole("heading", "👋 Привіт, Володимир Петров!").WithExact())
	require.NoError(t, err)
	require.Len(t, els, 1)
}

func TestRepairHub_MobileMenu(t *testing.T) {
	t.Parallel()

	mobile, _ := target.LookupViewport("mobile")
	tg := New(NewRepairHub(), target.Options{Viewport: mobile})
	require.NoError(t, tg.Navigate("http://app.test/", time.Second))
	require.NoError(t, tg.WritePersistentValue("currentUser", `{"id":"c","name":"C","role":"client"}`))
	require.NoError(t, tg.Reload(time.Second))

	links, err := tg.Query(target.ByRole("link", "Мої замовлення"))
	require.NoError(t, err)
	require.Len(t, links, 1)
	visible, _ := links[0].Visible()
	assert.False(t, visible)

	menu, err := tg.Query(target.ByCSS(`button[aria-label="Open menu"]`))
	require.NoError(t, err)
	require.Len(t, menu, 1)
	require.NoError(t, tg.Act(menu[0], target.Click()))

	links, _ = tg.Query(target.ByRole("link", "Мої замовлення"))
	visible, _ = links[0].Visible()
	assert.True(t, visible)
	require.NoError(t, tg.Act(links[0], target.Click()))
	assert.Equal(t, "http://app.test/orders", tg.CurrentURL())
}

func TestTarget_CloseIsFinal(t *testing.T) {
	t.Parallel()

	p := &Provider{NewApp: func() App { return NewRepairHub() }}
	tgt, err := p.Acquire(context.Background(), target.Options{Locale: "uk"})
	require.NoError(t, err)
	require.NoError(t, tgt.Close())
	require.NoError(t, tgt.Close())
	_, err = tgt.Screenshot(true)
	require.ErrorIs(t, err, ErrClosed)
	assert.True(t, p.Targets()[0].Closed())
	assert.Equal(t, "uk", p.Options()[0].Locale)
}

func TestTarget_WaitUntil(t *testing.T) {
	t.Parallel()

	tg := New(NewRepairHub(), target.Options{Locale: "pl"})
	require.NoError(t, tg.Navigate("http://app.test/", time.Second))
	require.NoError(t, tg.WaitUntil("document.documentElement.lang", 50*time.Millisecond))
	require.Error(t, tg.WaitUntil("window.missing", 10*time.Millisecond))
}

func TestTarget_Evaluate(t *testing.T) {
	t.Parallel()

	tg := New(NewRepairHub(), target.Options{Locale: "pl"})
	require.NoError(t, tg.Navigate("http://app.test/", time.Second))
	lang, err := tg.Evaluate("document.documentElement.lang")
	require.NoError(t, err)
	assert.True(t, target.Truthy(lang))
	href, err := tg.Evaluate("window.location.href")
	require.NoError(t, err)
	assert.Contains(t, href, "app.test")
	_, err = tg.Evaluate("window.missing")
	require.Error(t, err)
}
