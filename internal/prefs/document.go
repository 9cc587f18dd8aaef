package prefs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"
)

// DefaultVersion is the schema version written to new documents.
const DefaultVersion = "1.0.0"

// TimestampLayout is the lastAccessed format: ISO 8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Document is the on-disk configuration shared with the TypeScript and
// Python tooling. Field names and order are part of that contract.
type Document struct {
	Version     string              `json:"version"`
	Stores      []StoreRegistration `json:"stores"`
	Preferences map[string]any      `json:"preferences"`
}

// StoreRegistration records a STAC catalog the user has registered.
type StoreRegistration struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	LastAccessed string `json:"lastAccessed"`
	Notes        string `json:"notes,omitempty"`
}

// DefaultDocument returns an empty document.
func DefaultDocument() *Document {
	return &Document{
		Version:     DefaultVersion,
		Stores:      []StoreRegistration{},
		Preferences: map[string]any{},
	}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := &Document{
		Version:     d.Version,
		Stores:      make([]StoreRegistration, len(d.Stores)),
		Preferences: make(map[string]any, len(d.Preferences)),
	}
	copy(c.Stores, d.Stores)
	for k, v := range d.Preferences {
		c.Preferences[k] = v
	}
	return c
}

// FindStore returns the index of the registration for path, or -1.
func (d *Document) FindStore(path string) int {
	for i, s := range d.Stores {
		if s.Path == path {
			return i
		}
	}
	return -1
}

func (d *Document) normalize() {
	if d.Stores == nil {
		d.Stores = []StoreRegistration{}
	}
	if d.Preferences == nil {
		d.Preferences = map[string]any{}
	}
}

// Validate checks d against the shared schema.
func (d *Document) Validate() error {
	if !versionPattern.MatchString(d.Version) {
		return fmt.Errorf("version %q is not MAJOR.MINOR.PATCH", d.Version)
	}
	for i, s := range d.Stores {
		if s.Path == "" {
			return fmt.Errorf("stores[%d]: path cannot be empty", i)
		}
		if s.Name == "" {
			return fmt.Errorf("stores[%d]: name cannot be empty", i)
		}
		if _, err := time.Parse(time.RFC3339Nano, s.LastAccessed); err != nil {
			return fmt.Errorf("stores[%d]: lastAccessed must be an ISO 8601 datetime", i)
		}
	}
	for k, v := range d.Preferences {
		if _, err := normalizePreference(v); err != nil {
			return fmt.Errorf("preferences[%q]: %w", k, err)
		}
	}
	return nil
}

// wireDocument detects missing top-level fields, which Document alone
// cannot distinguish from empty ones.
type wireDocument struct {
	Version     *string              `json:"version"`
	Stores      *[]StoreRegistration `json:"stores"`
	Preferences *map[string]any      `json:"preferences"`
}

var errSyntax = errors.New("invalid JSON")

// decodeDocument parses and validates data. Errors wrapping errSyntax mean
// the bytes were not JSON at all; any other error is a schema failure.
func decodeDocument(data []byte) (*Document, error) {
	if !json.Valid(data) {
		return nil, errSyntax
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var w wireDocument
	if err := dec.Decode(&w); err != nil {
		return nil, err
	}
	if w.Version == nil || w.Stores == nil || w.Preferences == nil {
		return nil, errors.New("version, stores and preferences are required")
	}

	doc := &Document{Version: *w.Version, Stores: *w.Stores, Preferences: *w.Preferences}
	doc.normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// encodeDocument renders d the way the other implementations do: two-space
// indent, no HTML escaping, no trailing newline.
func encodeDocument(d *Document) ([]byte, error) {
	d.normalize()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// normalizePreference accepts the scalar JSON types and rejects everything
// else. Integers and floats are kept as given; json.Number is used for
// values read from disk so they round-trip unchanged.
func normalizePreference(v any) (any, error) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, ErrInvalidPreference
		}
		return val, nil
	case nil, string, bool, json.Number,
		float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val, nil
	default:
		return nil, ErrInvalidPreference
	}
}
