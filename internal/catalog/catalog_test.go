package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CatalogFile), []byte(body), 0644))
	return dir
}

func TestValidateAcceptsMinimalCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteMinimal(dir, "alpha", "Alpha store"))
	assert.NoError(t, Validate(dir))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"invalid json", `{not json`, "invalid JSON"},
		{"not an object", `[1,2]`, "must be a JSON object"},
		{"missing fields", `{"type":"Catalog","id":"x"}`, "missing required fields: stac_version, description, links"},
		{"wrong type", `{"type":"Collection","stac_version":"1.0.0","id":"x","description":"d","links":[]}`, "type must be 'Catalog'"},
		{"links not array", `{"type":"Catalog","stac_version":"1.0.0","id":"x","description":"d","links":{}}`, "links must be an array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeCatalog(t, tt.body)
			err := Validate(dir)

			var invalid *InvalidCatalogError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, dir, invalid.Path)
			assert.Contains(t, invalid.Reason, tt.reason)
		})
	}
}

func TestValidateMissingCatalogFile(t *testing.T) {
	dir := t.TempDir()
	err := Validate(dir)

	var invalid *InvalidCatalogError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "no catalog.json found", invalid.Reason)
}
