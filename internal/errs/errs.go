// Package errs defines Amelia's error taxonomy (spec.md §7): a small set of
// error kinds, not Go types per subsystem, so callers can branch with
// errors.Is/As regardless of which component produced the failure.
package errs

import (
	"errors"
	"fmt"
)

// TransientProviderError wraps an LLM/API timeout, 5xx, or network flap.
// Retried per profile RetryConfig; promoted to workflow failure on
// exhaustion (spec.md §7 kind 1).
type TransientProviderError struct {
	Provider string
	Cause    error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient provider error (%s): %v", e.Provider, e.Cause)
}

func (e *TransientProviderError) Unwrap() error { return e.Cause }

// SchemaValidationError indicates an LLM output failed schema validation.
// Never retried at the workflow level; the producing node catches it and
// routes into a revise loop or regex fallback (spec.md §7 kind 2).
type SchemaValidationError struct {
	Schema string
	Cause  error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation error (%s): %v", e.Schema, e.Cause)
}

func (e *SchemaValidationError) Unwrap() error { return e.Cause }

// SandboxError reports a container startup, exec, or teardown failure
// (spec.md §7 kind 4).
type SandboxError struct {
	Op    string
	Cause error
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox error during %s: %v", e.Op, e.Cause)
}

func (e *SandboxError) Unwrap() error { return e.Cause }

// IngestionError surfaces through the knowledge events domain only; it
// never affects orchestrator workflows (spec.md §7 kind 5).
type IngestionError struct {
	Cause error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion error: %v", e.Cause)
}

func (e *IngestionError) Unwrap() error { return e.Cause }

// AuthError indicates an invalid or expired device/pairing token
// (spec.md §7 kind 6). Maps to HTTP 401/410 at the httpapi boundary.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth error: " + e.Reason }

// ErrTokenExpired and ErrTokenUsed distinguish the two AuthError causes the
// pairing flow needs to tell apart at the HTTP layer (410 vs 401).
var (
	ErrTokenExpired  = errors.New("pairing token expired")
	ErrTokenUsed     = errors.New("pairing token already used")
	ErrDeviceRevoked = errors.New("device token revoked")
)

// IsRetryable reports whether err is a TransientProviderError, the only
// kind the retry policy is allowed to act on (spec.md §7).
func IsRetryable(err error) bool {
	var t *TransientProviderError
	return errors.As(err, &t)
}
