package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the profiles YAML file was not found.
	ErrConfigNotFound = errors.New("profile configuration file not found")

	// ErrInvalidYAML indicates the profiles file failed to parse.
	ErrInvalidYAML = errors.New("invalid profile YAML")

	// ErrLegacyShape indicates a profile used the pre-§6.3 flat
	// driver:/model: shape instead of the nested agents map.
	ErrLegacyShape = errors.New("legacy flat profile shape is no longer supported")

	// ErrValidationFailed indicates a parsed profile failed field validation.
	ErrValidationFailed = errors.New("profile validation failed")

	// ErrProfileNotFound indicates a requested profile name has no entry.
	ErrProfileNotFound = errors.New("profile not found")
)

// LoadError wraps a failure to read or parse the profiles file with the
// path that was being loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LegacyShapeError reports a profile written in the flat driver:/model:
// shape spec.md §6.3 retired, and carries the migrated YAML a user can
// paste back in to fix it.
type LegacyShapeError struct {
	Profile      string
	MigratedYAML string
}

func (e *LegacyShapeError) Error() string {
	return fmt.Sprintf("%v: profile %q uses the legacy flat driver:/model: shape; migrate it to:\n%s",
		ErrLegacyShape, e.Profile, e.MigratedYAML)
}

func (e *LegacyShapeError) Unwrap() error {
	return ErrLegacyShape
}

// ValidationError wraps go-playground/validator's field errors with the
// profile they belong to.
type ValidationError struct {
	Profile string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: profile %q: %v", ErrValidationFailed, e.Profile, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
