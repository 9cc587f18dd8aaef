package prefs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"debrief/internal/logging"
)

type registerOptions struct {
	notes          string
	skipValidation bool
}

// RegisterOption configures RegisterStore.
type RegisterOption func(*registerOptions)

// WithNotes attaches free-text notes to the registration.
func WithNotes(notes string) RegisterOption {
	return func(o *registerOptions) { o.notes = notes }
}

// SkipValidation registers the path without checking catalog.json.
func SkipValidation() RegisterOption {
	return func(o *registerOptions) { o.skipValidation = true }
}

// ResolvePath normalises a store path into its identity key: absolute,
// cleaned, and with symlinks evaluated when the path exists.
func ResolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// RegisterStore adds a STAC catalog to the registered stores.
func (s *Store) RegisterStore(ctx context.Context, path, name string, opts ...RegisterOption) (*StoreRegistration, error) {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	if !o.skipValidation {
		if err := s.validator(resolved); err != nil {
			return nil, err
		}
	}

	reg := StoreRegistration{
		Path:         resolved,
		Name:         name,
		LastAccessed: s.now().UTC().Format(TimestampLayout),
		Notes:        o.notes,
	}

	_, err = s.Update(ctx, func(doc *Document) error {
		if doc.FindStore(resolved) >= 0 {
			return &StoreExistsError{Path: resolved}
		}
		doc.Stores = append(doc.Stores, reg)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Config("Registered store %q at %s", name, resolved)
	return &reg, nil
}

// ListStores returns a copy of the registered stores.
func (s *Store) ListStores() ([]StoreRegistration, error) {
	doc, err := s.Read()
	if err != nil {
		return nil, err
	}
	out := make([]StoreRegistration, len(doc.Stores))
	copy(out, doc.Stores)
	return out, nil
}

// GetStore returns the registration for path.
func (s *Store) GetStore(path string) (*StoreRegistration, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}
	doc, err := s.Read()
	if err != nil {
		return nil, err
	}
	i := doc.FindStore(resolved)
	if i < 0 {
		return nil, &StoreNotFoundError{Path: resolved}
	}
	reg := doc.Stores[i]
	return &reg, nil
}

// RemoveStore drops the registration for path. The catalog on disk is not
// touched.
func (s *Store) RemoveStore(ctx context.Context, path string) error {
	resolved, err := ResolvePath(path)
	if err != nil {
		return err
	}
	_, err = s.Update(ctx, func(doc *Document) error {
		i := doc.FindStore(resolved)
		if i < 0 {
			return &StoreNotFoundError{Path: resolved}
		}
		doc.Stores = append(doc.Stores[:i], doc.Stores[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	logging.Config("Removed store %s", resolved)
	return nil
}

// StorePaths returns the paths of every registered store, in order.
func (s *Store) StorePaths() ([]string, error) {
	stores, err := s.ListStores()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(stores))
	for i, st := range stores {
		out[i] = st.Path
	}
	return out, nil
}

// TouchStore sets the registration's lastAccessed to now.
func (s *Store) TouchStore(ctx context.Context, path string) error {
	resolved, err := ResolvePath(path)
	if err != nil {
		return err
	}
	now := s.now().UTC().Format(TimestampLayout)
	_, err = s.Update(ctx, func(doc *Document) error {
		i := doc.FindStore(resolved)
		if i < 0 {
			return &StoreNotFoundError{Path: resolved}
		}
		doc.Stores[i].LastAccessed = now
		return nil
	})
	return err
}
