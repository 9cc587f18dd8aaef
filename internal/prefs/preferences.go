package prefs

import (
	"context"
	"strings"
)

// GetPreference returns the value stored under key, or def when absent.
func (s *Store) GetPreference(key string, def any) (any, error) {
	doc, err := s.Read()
	if err != nil {
		return nil, err
	}
	if v, ok := doc.Preferences[key]; ok {
		return v, nil
	}
	return def, nil
}

// Preferences returns a copy of all preferences.
func (s *Store) Preferences() (map[string]any, error) {
	doc, err := s.Read()
	if err != nil {
		return nil, err
	}
	return doc.Clone().Preferences, nil
}

// SetPreference stores value under the trimmed key.
func (s *Store) SetPreference(ctx context.Context, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	value, err := normalizePreference(value)
	if err != nil {
		return err
	}
	_, err = s.Update(ctx, func(doc *Document) error {
		doc.Preferences[key] = value
		return nil
	})
	return err
}

// DeletePreference removes key. Deleting an absent key is not an error.
func (s *Store) DeletePreference(ctx context.Context, key string) error {
	_, err := s.Update(ctx, func(doc *Document) error {
		delete(doc.Preferences, key)
		return nil
	})
	return err
}
