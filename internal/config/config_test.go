package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "SNAPSHOT_BACKEND", "STATE_TTL_HOURS", "LIMITS_FILE", "RESTORE_ON_START"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.SnapshotBackend != BackendSQLite {
		t.Errorf("Expected sqlite backend, got %s", cfg.SnapshotBackend)
	}
	if cfg.StateTTL != 24*time.Hour {
		t.Errorf("Expected 24h TTL, got %v", cfg.StateTTL)
	}
	if !cfg.RestoreOnStart {
		t.Error("Expected RestoreOnStart to default to true")
	}
	if cfg.Limits.FontSizeMax != 84 {
		t.Errorf("Expected font size max 84, got %d", cfg.Limits.FontSizeMax)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("SNAPSHOT_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error for unknown backend")
	}
}

func TestLoad_Durations(t *testing.T) {
	t.Setenv("RENDER_TIMEOUT", "3s")
	t.Setenv("SESSION_SWEEP_INTERVAL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RenderTimeout != 3*time.Second {
		t.Errorf("Expected 3s render timeout, got %v", cfg.RenderTimeout)
	}
	if cfg.SessionSweepInterval != 10*time.Second {
		t.Errorf("Expected fallback 10s sweep interval, got %v", cfg.SessionSweepInterval)
	}
}

func TestLoadLimits_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pjsk_config.yaml")
	yaml := "font_size_max: 96\noffset_step: 24\nstate_ttl_hours: 12\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	tuning, err := LoadLimits(path)
	if err != nil {
		t.Fatalf("LoadLimits failed: %v", err)
	}
	if tuning.Limits.FontSizeMax != 96 {
		t.Errorf("Expected font size max 96, got %d", tuning.Limits.FontSizeMax)
	}
	if tuning.Limits.OffsetStep != 24 {
		t.Errorf("Expected offset step 24, got %d", tuning.Limits.OffsetStep)
	}
	if tuning.Limits.FontSizeMin != 18 {
		t.Errorf("Expected default font size min 18, got %d", tuning.Limits.FontSizeMin)
	}
	if tuning.Limits.LineSpacingStep != 0.1 {
		t.Errorf("Expected default spacing step 0.1, got %v", tuning.Limits.LineSpacingStep)
	}
	if tuning.StateTTL != 12*time.Hour {
		t.Errorf("Expected 12h TTL, got %v", tuning.StateTTL)
	}
}

func TestLoadLimits_RejectsInvertedRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	if err := os.WriteFile(path, []byte("font_size_min: 90\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLimits(path); err == nil {
		t.Fatal("Expected error for min > max")
	}
}

func TestLoad_UsesLimitsFileTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	if err := os.WriteFile(path, []byte("state_ttl_hours: 6\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIMITS_FILE", path)
	t.Setenv("STATE_TTL_HOURS", "")
	os.Unsetenv("STATE_TTL_HOURS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StateTTL != 6*time.Hour {
		t.Errorf("Expected 6h TTL from limits file, got %v", cfg.StateTTL)
	}
}
