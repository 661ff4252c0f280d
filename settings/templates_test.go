package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/settings"
)

func seededStore() *settings.TemplateStore {
	return settings.NewTemplateStore(map[int]settings.Template{
		1: {Subject: "default level 1"},
		2: {Subject: "default level 2"},
	})
}

func TestTemplateGet_FallsBackToDefault(t *testing.T) {
	ts := seededStore()

	tmpl, err := ts.Get("acme", 1)

	require.NoError(t, err)
	assert.Equal(t, "default level 1", tmpl.Subject)
}

func TestTemplateGet_EntityOverridePreferred(t *testing.T) {
	ts := seededStore()
	ts.Put("acme", 1, settings.Template{Subject: "acme level 1"})

	tmpl, err := ts.Get("acme", 1)
	require.NoError(t, err)
	assert.Equal(t, "acme level 1", tmpl.Subject)

	other, err := ts.Get("other", 1)
	require.NoError(t, err)
	assert.Equal(t, "default level 1", other.Subject)
}

func TestTemplateGet_NoTemplateAtAll_NotFound(t *testing.T) {
	ts := seededStore()

	_, err := ts.Get("acme", 3)

	assert.ErrorIs(t, err, billing.ErrTemplateNotFound)
}

func TestTemplatePut_InvalidatesCachedLookups(t *testing.T) {
	// GIVEN: A cached default lookup for (acme, 1)
	// WHEN: Installing an acme override for level 1
	// THEN: The next lookup returns the override, not the cached default

	ts := seededStore()

	tmpl, err := ts.Get("acme", 1)
	require.NoError(t, err)
	require.Equal(t, "default level 1", tmpl.Subject)

	ts.Put("acme", 1, settings.Template{Subject: "acme level 1"})

	tmpl, err = ts.Get("acme", 1)
	require.NoError(t, err)
	assert.Equal(t, "acme level 1", tmpl.Subject)
}

func TestTemplateInvalidate_DropsEntityRowsOnly(t *testing.T) {
	ts := seededStore()

	_, err := ts.Get("acme", 1)
	require.NoError(t, err)
	_, err = ts.Get("other", 1)
	require.NoError(t, err)

	ts.Invalidate("acme")

	// Both still resolve; invalidation only forces a re-read.
	tmpl, err := ts.Get("acme", 1)
	require.NoError(t, err)
	assert.Equal(t, "default level 1", tmpl.Subject)
}
