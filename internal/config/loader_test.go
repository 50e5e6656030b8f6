package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.MaxDuration() != 8*time.Hour {
		t.Errorf("MaxDuration = %v, want 8h", cfg.Session.MaxDuration())
	}
	if cfg.Retry.UsageLimitCap() != 5*time.Hour {
		t.Errorf("UsageLimitCap = %v, want 5h", cfg.Retry.UsageLimitCap())
	}
	if cfg.Retry.DefaultCap() != 15*time.Minute {
		t.Errorf("DefaultCap = %v, want 15m", cfg.Retry.DefaultCap())
	}
	if !cfg.Retry.JitterEnabled() {
		t.Error("jitter should default to enabled")
	}
	if cfg.Worker.Kind != "claude" {
		t.Errorf("Worker.Kind = %q, want claude", cfg.Worker.Kind)
	}
}

func TestLoadMissingFilesAreSkipped(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("Load() with missing files error = %v", err)
	}
	if cfg.Branch.Prefix != "taskdriver/" {
		t.Errorf("Prefix = %q, want default", cfg.Branch.Prefix)
	}
}

func TestLoadMalformedJSONFails(t *testing.T) {
	dir := t.TempDir()
	bad := writeConfig(t, dir, "bad.json", "{not json")

	if _, err := Load(bad, ""); err == nil {
		t.Error("Load() should fail on malformed JSON")
	}
}

func TestLoadProjectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	global := writeConfig(t, dir, "global.json", `{
		"session": {"max_duration_minutes": 120},
		"worker": {"kind": "codex"}
	}`)
	project := writeConfig(t, dir, "project.json", `{
		"session": {"max_duration_minutes": 60}
	}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.MaxDurationMinutes != 60 {
		t.Errorf("MaxDurationMinutes = %d, want project value 60", cfg.Session.MaxDurationMinutes)
	}
	// Key absent from project config keeps the global value.
	if cfg.Worker.Kind != "codex" {
		t.Errorf("Worker.Kind = %q, want global value codex", cfg.Worker.Kind)
	}
	// Key absent everywhere keeps the default.
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want default 5", cfg.Retry.MaxAttempts)
	}
}

func TestJitterExplicitFalse(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "cfg.json", `{"retry": {"jitter": false}}`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retry.JitterEnabled() {
		t.Error("jitter: false should disable jitter")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Session.MaxDurationMinutes = 90
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() after Save error = %v", err)
	}
	if loaded.Session.MaxDurationMinutes != 90 {
		t.Errorf("MaxDurationMinutes = %d, want 90", loaded.Session.MaxDurationMinutes)
	}
}
