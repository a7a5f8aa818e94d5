package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/amelia-orch/amelia/internal/state"
)

const validYAML = `
profiles:
  default:
    agents:
      architect: { driver: api, model: claude-opus, options: { max_iterations: 3 } }
      developer: { driver: api, model: claude-sonnet }
      reviewer:  { driver: api, model: claude-sonnet, options: { max_iterations: 2 } }
    sandbox: { mode: none }
    tracker: noop
    working_dir: /work
    plan_output_dir: /work/plans
    retry: { max_attempts: 3, base_delay_ms: 1000000000, max_delay_ms: 30000000000 }
    max_task_review_iterations: 2
    auto_approve_reviews: true
`

func TestParse_ValidDocument(t *testing.T) {
	profiles, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := profiles["default"]
	if !ok {
		t.Fatal("expected profile \"default\"")
	}
	if p.Name != "default" {
		t.Errorf("expected Name filled from map key, got %q", p.Name)
	}
	arch, ok := p.Agents[state.RoleArchitect]
	if !ok || arch.Model != "claude-opus" {
		t.Errorf("expected architect agent with model claude-opus, got %+v", arch)
	}
}

func TestParse_LegacyFlatShapeRejectedWithMigratedYAML(t *testing.T) {
	const legacy = `
profiles:
  default:
    driver: api
    model: claude-opus
`
	_, err := Parse([]byte(legacy))
	if err == nil {
		t.Fatal("expected legacy shape to be rejected")
	}
	var lse *LegacyShapeError
	if !errors.As(err, &lse) {
		t.Fatalf("expected *LegacyShapeError, got %T: %v", err, err)
	}
	if lse.MigratedYAML == "" {
		t.Error("expected migrated YAML to be rendered in the error")
	}
	if !errors.Is(err, ErrLegacyShape) {
		t.Error("expected errors.Is(err, ErrLegacyShape)")
	}
}

func TestParse_ValidationFailureOnMissingRequiredField(t *testing.T) {
	const missingModel = `
profiles:
  default:
    agents:
      architect: { driver: api }
    working_dir: /work
`
	_, err := Parse([]byte(missingModel))
	if err == nil {
		t.Fatal("expected validation error for missing model")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoad_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	profiles, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 1 {
		t.Errorf("expected 1 profile, got %d", len(profiles))
	}
}

func TestPath_JoinsProfilesYAML(t *testing.T) {
	got := Path("/etc/amelia")
	want := filepath.Join("/etc/amelia", "profiles.yaml")
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}
