package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL == "" || cfg.API.TimeoutSeconds <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg.API)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".coach", "config.yaml")

	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://coach.example.com"
	cfg.Member.Email = "member@example.com"
	cfg.Post.Slug = "testing-101"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.API.BaseURL != cfg.API.BaseURL {
		t.Errorf("base url = %q, want %q", loaded.API.BaseURL, cfg.API.BaseURL)
	}
	if loaded.Member.Email != cfg.Member.Email {
		t.Errorf("email = %q, want %q", loaded.Member.Email, cfg.Member.Email)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COACH_API_BASE", "https://override.example.com")
	t.Setenv("QC_TEST_SKIP_ACCESS", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://override.example.com" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if !cfg.SkipAccessCheck {
		t.Error("QC_TEST_SKIP_ACCESS=1 should enable the bypass")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.API.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty base url should fail validation")
	}
}
