// Package sandbox implements the transport-agnostic container sandbox
// protocol (spec.md §4.3): a Docker-backed default plus the LLM/git proxy
// and network allowlist generator that keep provider credentials out of
// the container filesystem.
package sandbox

import (
	"context"
)

// Provider is the transport-agnostic sandbox protocol every agent with
// sandbox_config.mode=container talks to.
//
// Implementations can use:
//   - A local Docker daemon (see docker.go, the default).
//   - Any other container runtime reachable from this process.
type Provider interface {
	// EnsureRunning starts the sandbox container for name if it is not
	// already running, applying the network allowlist script when
	// configured.
	EnsureRunning(ctx context.Context, name string, cfg Config) error

	// ExecStream runs command inside the running sandbox and streams each
	// stdout line to the returned channel, closing it on exit. The error
	// channel carries at most one value: the process's exit error, if any.
	ExecStream(ctx context.Context, name, command string, opts ExecOptions) (<-chan string, <-chan error)

	// Teardown stops and removes the named sandbox container.
	Teardown(ctx context.Context, name string) error

	// HealthCheck reports whether the named sandbox is running and
	// responsive.
	HealthCheck(ctx context.Context, name string) error
}

// Config describes how to start a sandbox container.
type Config struct {
	Image                   string
	NetworkAllowlistEnabled bool
	AllowedHosts            []string
	ProxyHost               string
	ProxyPort               int
}

// ExecOptions parameterizes one ExecStream call.
type ExecOptions struct {
	Cwd   string
	Env   map[string]string
	Stdin string
}
