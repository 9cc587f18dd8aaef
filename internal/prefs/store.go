// Package prefs owns the shared debrief configuration document: STAC store
// registrations and user preferences. The document lives in one JSON file
// that other processes (and other language implementations) read and write
// concurrently, so every mutation goes through Store.Update, which holds a
// cross-process lock and replaces the file atomically.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"debrief/internal/atomicfile"
	"debrief/internal/catalog"
	"debrief/internal/logging"
	"debrief/internal/paths"
)

// Store reads and updates one configuration file.
type Store struct {
	path      string
	lockOpts  atomicfile.LockOptions
	now       func() time.Time
	validator func(dir string) error
}

// Option configures a Store.
type Option func(*Store)

// WithLockOptions overrides the lock retry/staleness policy.
func WithLockOptions(opts atomicfile.LockOptions) Option {
	return func(s *Store) { s.lockOpts = opts }
}

// WithClock overrides the time source used for lastAccessed.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCatalogValidator overrides the catalog check run by RegisterStore.
func WithCatalogValidator(fn func(dir string) error) Option {
	return func(s *Store) { s.validator = fn }
}

// New returns a Store for the config file at path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:      path,
		lockOpts:  atomicfile.DefaultLockOptions(),
		now:       time.Now,
		validator: catalog.Validate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns a Store for the platform config file.
func Open(opts ...Option) (*Store, error) {
	path, err := paths.ConfigFile()
	if err != nil {
		return nil, err
	}
	return New(path, opts...), nil
}

// Path returns the config file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the current document. A missing, unparsable, or
// schema-invalid file yields the default document; nothing is written
// back. Only unexpected I/O failures are returned as errors.
func (s *Store) Read() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.ConfigDebug("Config file %s not found, using defaults", s.path)
			return DefaultDocument(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	doc, err := decodeDocument(data)
	if err != nil {
		if errors.Is(err, errSyntax) {
			logging.ConfigWarn("Config file %s corrupted (invalid JSON), using defaults", s.path)
		} else {
			logging.ConfigWarn("Config validation failed for %s: %v", s.path, err)
		}
		return DefaultDocument(), nil
	}
	return doc, nil
}

// Update applies fn to the current document under the config lock and
// atomically writes the result. If fn returns an error nothing is written
// and the error is returned unchanged.
func (s *Store) Update(ctx context.Context, fn func(*Document) error) (*Document, error) {
	if err := s.ensureFile(); err != nil {
		return nil, err
	}

	lock, err := atomicfile.Acquire(ctx, s.path, s.lockOpts)
	if err != nil {
		logging.Get(logging.CategoryConfig).Error("Could not acquire lock on %s: %v", s.path, err)
		return nil, err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			logging.ConfigWarn("%v", rerr)
		}
	}()

	doc, err := s.Read()
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	if err := s.writeLocked(doc); err != nil {
		return nil, err
	}
	logging.ConfigDebug("Config updated in %s", s.path)
	return doc, nil
}

// Write replaces the document wholesale under the config lock.
func (s *Store) Write(ctx context.Context, doc *Document) error {
	_, err := s.Update(ctx, func(cur *Document) error {
		*cur = *doc.Clone()
		return nil
	})
	return err
}

func (s *Store) writeLocked(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("%w: refusing to write invalid config: %v", ErrConfig, err)
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(s.path, data, 0644)
}

// ensureFile makes sure the directory exists and the file holds at least
// the default document, so the lock has a target.
func (s *Store) ensureFile() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat config: %w", err)
	}

	data, err := encodeDocument(DefaultDocument())
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("failed to create config: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	return nil
}
