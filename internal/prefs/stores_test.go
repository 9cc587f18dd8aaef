package prefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"debrief/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var isoPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)

func newCatalogDir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, catalog.WriteMinimal(dir, name, "test catalog"))
	return dir
}

func TestRegisterListRemoveScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := newCatalogDir(t, "catalog-a")

	reg, err := s.RegisterStore(ctx, dir, "  Alpha ")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", reg.Name)

	stores, err := s.ListStores()
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, "Alpha", stores[0].Name)
	assert.Regexp(t, isoPattern, stores[0].LastAccessed)

	require.NoError(t, s.RemoveStore(ctx, dir))

	stores, err = s.ListStores()
	require.NoError(t, err)
	assert.Empty(t, stores)
	assert.FileExists(t, filepath.Join(dir, catalog.CatalogFile), "catalog files must be untouched")
}

func TestRegisterUsesClockAndNotes(t *testing.T) {
	fixed := time.Date(2024, 6, 15, 10, 30, 0, 0, time.FixedZone("X", 3600))
	s := newTestStore(t, WithClock(func() time.Time { return fixed }))
	dir := newCatalogDir(t, "b")

	reg, err := s.RegisterStore(context.Background(), dir, "Bravo", WithNotes("exercise data"))
	require.NoError(t, err)
	assert.Equal(t, "2024-06-15T09:30:00.000Z", reg.LastAccessed)
	assert.Equal(t, "exercise data", reg.Notes)

	got, err := s.GetStore(dir)
	require.NoError(t, err)
	assert.Equal(t, *reg, *got)
}

func TestRegisterDuplicateIsRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := newCatalogDir(t, "dup")

	_, err := s.RegisterStore(ctx, dir, "First")
	require.NoError(t, err)

	// A relative path with redundant segments resolves to the same key.
	wd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(wd, filepath.Join(dir, "..", filepath.Base(dir)))
	require.NoError(t, err)

	_, err = s.RegisterStore(ctx, rel, "Second")
	var exists *StoreExistsError
	require.True(t, errors.As(err, &exists), "got %v", err)
	assert.ErrorIs(t, err, ErrConfig)

	stores, err := s.ListStores()
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func TestRegisterValidatesCatalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := s.RegisterStore(ctx, dir, "Empty")
	var invalid *InvalidCatalogError
	require.ErrorAs(t, err, &invalid)
	assert.NoFileExists(t, s.Path(), "no write happens when validation fails")

	reg, err := s.RegisterStore(ctx, dir, "Empty", SkipValidation())
	require.NoError(t, err)
	assert.Equal(t, "Empty", reg.Name)
}

func TestRegisterInputValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RegisterStore(ctx, "", "Name", SkipValidation())
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = s.RegisterStore(ctx, t.TempDir(), "   ", SkipValidation())
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRemoveUnknownStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := newCatalogDir(t, "known")
	_, err := s.RegisterStore(ctx, dir, "Known")
	require.NoError(t, err)

	err = s.RemoveStore(ctx, filepath.Join(t.TempDir(), "unknown"))
	var notFound *StoreNotFoundError
	require.ErrorAs(t, err, &notFound)

	stores, err := s.ListStores()
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func TestGetStoreNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetStore(t.TempDir())
	var notFound *StoreNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestStorePathsPreserveOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newCatalogDir(t, "a")
	b := newCatalogDir(t, "b")
	_, err := s.RegisterStore(ctx, b, "B")
	require.NoError(t, err)
	_, err = s.RegisterStore(ctx, a, "A")
	require.NoError(t, err)

	got, err := s.StorePaths()
	require.NoError(t, err)
	ra, _ := ResolvePath(a)
	rb, _ := ResolvePath(b)
	assert.Equal(t, []string{rb, ra}, got)
}

func TestTouchStoreUpdatesLastAccessed(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	dir := newCatalogDir(t, "touch")

	_, err := s.RegisterStore(ctx, dir, "Touch")
	require.NoError(t, err)

	now = now.Add(48 * time.Hour)
	require.NoError(t, s.TouchStore(ctx, dir))

	got, err := s.GetStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03T00:00:00.000Z", got.LastAccessed)

	var notFound *StoreNotFoundError
	assert.ErrorAs(t, s.TouchStore(ctx, filepath.Join(t.TempDir(), "missing")), &notFound)
}

func TestLastAccessedHasMillisecondPrecision(t *testing.T) {
	at := time.Date(2024, 6, 15, 9, 30, 0, 123456789, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return at }))
	dir := newCatalogDir(t, "ms")

	reg, err := s.RegisterStore(context.Background(), dir, "Ms")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-15T09:30:00.123Z", reg.LastAccessed)
}
