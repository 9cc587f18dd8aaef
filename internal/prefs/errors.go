package prefs

import (
	"errors"
	"fmt"

	"debrief/internal/catalog"
)

// ErrConfig is matched (via errors.Is) by every domain error this package
// returns from a mutation.
var ErrConfig = errors.New("config error")

var (
	ErrEmptyPath         = fmt.Errorf("%w: path cannot be empty", ErrConfig)
	ErrEmptyName         = fmt.Errorf("%w: name cannot be empty", ErrConfig)
	ErrEmptyKey          = fmt.Errorf("%w: key cannot be empty", ErrConfig)
	ErrInvalidPreference = fmt.Errorf("%w: preference values must be a string, number, boolean or null", ErrConfig)
)

// InvalidCatalogError is returned when registering a path that is not a
// STAC catalog.
type InvalidCatalogError = catalog.InvalidCatalogError

// StoreExistsError is returned when registering a path that is already
// registered.
type StoreExistsError struct {
	Path string
}

func (e *StoreExistsError) Error() string {
	return fmt.Sprintf("store already registered: %s", e.Path)
}

func (e *StoreExistsError) Is(target error) bool { return target == ErrConfig }

// StoreNotFoundError is returned when operating on an unregistered path.
type StoreNotFoundError struct {
	Path string
}

func (e *StoreNotFoundError) Error() string {
	return fmt.Sprintf("store not found: %s", e.Path)
}

func (e *StoreNotFoundError) Is(target error) bool { return target == ErrConfig }
