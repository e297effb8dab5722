package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_Matches(t *testing.T) {
	t.Parallel()

	loose := ByText("Add New Item")
	assert.True(t, loose.Matches("  add new   item "))
	assert.True(t, loose.Matches("+ Add New Item"))
	assert.False(t, loose.Matches("Add Item"))

	exact := ByRole("button", "Create").WithExact()
	assert.True(t, exact.Matches("Create"))
	assert.False(t, exact.Matches("Create item"))
	assert.False(t, exact.Matches("create"))
}

func TestSelector_ModifiersReturnCopies(t *testing.T) {
	t.Parallel()

	base := ByPlaceholder("Title")
	first := base.WithFirst()
	assert.False(t, base.First)
	assert.True(t, first.First)
	assert.Equal(t, `placeholder="Title" first`, first.String())
	assert.Equal(t, `role=link[name="Портфоліо"] exact`, ByRole("link", "Портфоліо").WithExact().String())
}

func TestSelector_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, ByRole("heading", "").Validate())
	require.Error(t, ByRole("", "x").Validate())
	require.Error(t, ByCSS("").Validate())
	require.Error(t, Selector{Kind: "xpath", Value: "//a"}.Validate())
}

func TestAction_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Click().Validate())
	require.NoError(t, Fill("").Validate())
	require.Error(t, SelectOption("").Validate())
	require.Error(t, Action{Kind: "hover"}.Validate())
	assert.Equal(t, `fill("iphone")`, Fill("iphone").String())
}

func TestLookupViewport(t *testing.T) {
	t.Parallel()

	vp, err := LookupViewport(" Mobile ")
	require.NoError(t, err)
	assert.Equal(t, Viewport{Name: "mobile", Width: 375, Height: 667}, vp)
	_, err = LookupViewport("watch")
	require.Error(t, err)
	assert.Equal(t, []string{"desktop", "laptop", "mobile", "tablet"}, ViewportNames())
	assert.Equal(t, 1920, Desktop.Width)
}
