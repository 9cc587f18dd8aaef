package prefs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferenceLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetPreference("theme", "light")
	require.NoError(t, err)
	assert.Equal(t, "light", v)

	require.NoError(t, s.SetPreference(ctx, "  theme ", "dark"))
	require.NoError(t, s.SetPreference(ctx, "maxRecent", 10))
	require.NoError(t, s.SetPreference(ctx, "snap", false))
	require.NoError(t, s.SetPreference(ctx, "lastStore", nil))

	v, err = s.GetPreference("theme", "light")
	require.NoError(t, err)
	assert.Equal(t, "dark", v)

	v, err = s.GetPreference("maxRecent", nil)
	require.NoError(t, err)
	assert.Equal(t, json.Number("10"), v)

	all, err := s.Preferences()
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Contains(t, all, "lastStore")

	require.NoError(t, s.DeletePreference(ctx, "theme"))
	require.NoError(t, s.DeletePreference(ctx, "never-set"))

	v, err = s.GetPreference("theme", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSetPreferenceValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetPreference(ctx, "", "x"), ErrEmptyKey)
	assert.ErrorIs(t, s.SetPreference(ctx, "   ", "x"), ErrEmptyKey)
	assert.ErrorIs(t, s.SetPreference(ctx, "colors", []string{"red"}), ErrInvalidPreference)
	assert.ErrorIs(t, s.SetPreference(ctx, "nested", map[string]any{"a": 1}), ErrInvalidPreference)
}
