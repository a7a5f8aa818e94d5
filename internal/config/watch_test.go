package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeProfiles(t *testing.T, path, yaml string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	writeProfiles(t, path, validYAML)

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("failed to build watcher: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	const second = `
profiles:
  default:
    agents:
      architect: { driver: api, model: claude-opus-2 }
      developer: { driver: api, model: claude-sonnet }
      reviewer:  { driver: api, model: claude-sonnet }
    working_dir: /work
`
	time.Sleep(50 * time.Millisecond)
	writeProfiles(t, path, second)

	select {
	case update := <-w.Updates():
		if update.Err != nil {
			t.Fatalf("unexpected reload error: %v", update.Err)
		}
		if update.Profiles["default"].Agents["architect"].Model != "claude-opus-2" {
			t.Errorf("expected reloaded model claude-opus-2, got %+v", update.Profiles["default"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced reload")
	}
}

func TestWatcher_ReportsReloadErrorsWithoutCrashing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	writeProfiles(t, path, validYAML)

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("failed to build watcher: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	writeProfiles(t, path, "profiles:\n  default:\n    driver: api\n    model: x\n")

	select {
	case update := <-w.Updates():
		if update.Err == nil {
			t.Fatal("expected the legacy-shape reload to report an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced reload")
	}
}
