// Package catalog performs offline structural validation of STAC catalogs.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CatalogFile is the root document every STAC catalog directory must contain.
const CatalogFile = "catalog.json"

// requiredFields per the STAC Catalog specification, in report order.
var requiredFields = []string{"type", "stac_version", "id", "description", "links"}

// InvalidCatalogError reports why a directory is not a usable STAC catalog.
type InvalidCatalogError struct {
	Path   string
	Reason string
}

func (e *InvalidCatalogError) Error() string {
	return fmt.Sprintf("invalid STAC catalog at %s: %s", e.Path, e.Reason)
}

// Validate checks that dir holds a catalog.json that is a JSON object with
// the required fields, type "Catalog", and an array of links.
func Validate(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, CatalogFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &InvalidCatalogError{Path: dir, Reason: "no catalog.json found"}
		}
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return &InvalidCatalogError{Path: dir, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return &InvalidCatalogError{Path: dir, Reason: "catalog.json must be a JSON object"}
	}

	var missing []string
	for _, field := range requiredFields {
		if _, ok := obj[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &InvalidCatalogError{Path: dir, Reason: "missing required fields: " + strings.Join(missing, ", ")}
	}

	if typ, _ := obj["type"].(string); typ != "Catalog" {
		return &InvalidCatalogError{Path: dir, Reason: fmt.Sprintf("type must be 'Catalog', got '%v'", obj["type"])}
	}

	if _, ok := obj["links"].([]any); !ok {
		return &InvalidCatalogError{Path: dir, Reason: "links must be an array"}
	}

	return nil
}

// WriteMinimal creates a minimal valid catalog.json in dir. It is used when
// initialising a local store without the STAC service and by tests.
func WriteMinimal(dir, id, description string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	doc := map[string]any{
		"type":         "Catalog",
		"stac_version": "1.0.0",
		"id":           id,
		"description":  description,
		"links":        []any{},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, CatalogFile), append(data, '\n'), 0644)
}
