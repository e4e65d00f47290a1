package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.ServerURL() != defaultServerURL {
		t.Fatalf("server url = %q, want %q", cfg.ServerURL(), defaultServerURL)
	}
	if cfg.SelectionGrace() != 4*time.Second {
		t.Fatalf("selection grace = %v, want 4s", cfg.SelectionGrace())
	}
	if cfg.Project.Visibility.LazyThreshold != defaultLazyThreshold {
		t.Fatalf("lazy threshold = %d, want %d", cfg.Project.Visibility.LazyThreshold, defaultLazyThreshold)
	}
}

func TestNewReadsProjectConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
version: 1
server:
  url: https://quorum.internal:9000/
meeting:
  selection_grace_seconds: 9
visibility:
  lazy_threshold: 50
  recent_window: 20
`)

	cfg, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.ServerURL() != "https://quorum.internal:9000" {
		t.Fatalf("server url = %q, want trailing slash trimmed", cfg.ServerURL())
	}
	if cfg.SelectionGrace() != 9*time.Second {
		t.Fatalf("selection grace = %v, want 9s", cfg.SelectionGrace())
	}
	if cfg.Project.Visibility.RecentWindow != 20 {
		t.Fatalf("recent window = %d, want 20", cfg.Project.Visibility.RecentWindow)
	}
	// Unset fields fall back to defaults, not zero.
	if cfg.MessageInterval() != 5*time.Second {
		t.Fatalf("message interval = %v, want default 5s", cfg.MessageInterval())
	}
}

func TestNewRejectsBadServerURL(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
server:
  url: ftp://example.com
`)

	if _, err := New(dir); err == nil {
		t.Fatal("expected error for non-http server url")
	}
}

func TestNewRejectsRecentWindowAboveLazyThreshold(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
visibility:
  lazy_threshold: 10
  recent_window: 15
`)

	if _, err := New(dir); err == nil {
		t.Fatal("expected error when recent_window exceeds lazy_threshold")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
server:
  url: http://file-wins.example
`)
	t.Setenv("QUORUM_SERVER_URL", "http://env-wins.example")
	t.Setenv("QUORUM_SELECTION_GRACE", "7")

	cfg, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.ServerURL() != "http://env-wins.example" {
		t.Fatalf("server url = %q, want env override", cfg.ServerURL())
	}
	if cfg.SelectionGrace() != 7*time.Second {
		t.Fatalf("selection grace = %v, want 7s", cfg.SelectionGrace())
	}
}

func TestInitCreatesLayoutOnce(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, sub := range []string{"logs", "exports"} {
		if _, err := os.Stat(filepath.Join(dir, QuorumDir, sub)); err != nil {
			t.Fatalf("missing %s dir: %v", sub, err)
		}
	}
	path := filepath.Join(dir, QuorumDir, "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Init must not clobber an existing config.
	if err := Init(dir); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "version: 1\n" {
		t.Fatalf("Init overwrote existing config: %q", data)
	}
}

func writeConfig(t *testing.T, projectDir, contents string) {
	t.Helper()
	quorumDir := filepath.Join(projectDir, QuorumDir)
	if err := os.MkdirAll(quorumDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(quorumDir, "config.yaml"), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}
