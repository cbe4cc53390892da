package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agendazap/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("AGENDAZAP_DB", "test.db")

	yamlContent := `
database:
  path: "${AGENDAZAP_DB}"
scheduling:
  timezone: "UTC"
  debounce_window: 2s
  proposal_ttl: 10m
  turns:
    afternoon_start: "13:00"
    evening_start: "19:00"
api:
  enabled: true
  auth:
    api_keys:
      - key: "k1"
        name: "dialogue"
        permissions: ["check", "book"]
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("expected database path test.db, got %s", cfg.Database.Path)
	}
	if cfg.Scheduling.DebounceWindow != 2*time.Second {
		t.Errorf("expected debounce window 2s, got %s", cfg.Scheduling.DebounceWindow)
	}
	if cfg.Scheduling.ProposalTTL != 10*time.Minute {
		t.Errorf("expected proposal ttl 10m, got %s", cfg.Scheduling.ProposalTTL)
	}
	if cfg.Scheduling.Turns.AfternoonStart != "13:00" {
		t.Errorf("expected afternoon start 13:00, got %s", cfg.Scheduling.Turns.AfternoonStart)
	}
	if !cfg.API.HTTP.Enabled {
		t.Errorf("expected http api enabled when api is enabled")
	}
	if len(cfg.API.Auth.APIKeys) != 1 || cfg.API.Auth.APIKeys[0].Name != "dialogue" {
		t.Errorf("expected 1 api key named dialogue")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduling.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "bad turn boundary", mutate: func(c *Config) { c.Scheduling.Turns.EveningStart = "7pm" }, wantErr: true},
		{
			name: "inverted turn bands",
			mutate: func(c *Config) {
				c.Scheduling.Turns.AfternoonStart = "18:00"
				c.Scheduling.Turns.EveningStart = "12:00"
			},
			wantErr: true,
		},
		{name: "bad reminder time", mutate: func(c *Config) { c.Scheduling.ReminderTime = "8h" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Redis.Enabled = true }, wantErr: true},
		{name: "google without sheet", mutate: func(c *Config) { c.Google.Enabled = true }, wantErr: true},
		{
			name: "duplicate api key",
			mutate: func(c *Config) {
				c.API.Auth.APIKeys = []APIClientKey{{Key: "a", Name: "one"}, {Key: "a", Name: "two"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Scheduling.ReminderTime != "08:00" {
		t.Errorf("expected default reminder time 08:00, got %s", cfg.Scheduling.ReminderTime)
	}
	if cfg.Scheduling.DebounceWindow != models.DefaultDebounceWindow {
		t.Errorf("expected default debounce window %s, got %s", models.DefaultDebounceWindow, cfg.Scheduling.DebounceWindow)
	}
	if cfg.Scheduling.ProposalTTL != models.DefaultProposalTTL {
		t.Errorf("expected default proposal ttl %s, got %s", models.DefaultProposalTTL, cfg.Scheduling.ProposalTTL)
	}
	if cfg.Scheduling.Turns.AfternoonStart != "12:00" || cfg.Scheduling.Turns.EveningStart != "18:00" {
		t.Errorf("unexpected default turn bands %+v", cfg.Scheduling.Turns)
	}
	if cfg.Scheduling.Timezone != models.DefaultTimezone {
		t.Errorf("expected default timezone %s, got %s", models.DefaultTimezone, cfg.Scheduling.Timezone)
	}
	if len(cfg.Scheduling.AffirmativeTokens) == 0 {
		t.Error("expected default affirmative tokens")
	}
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default http port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Scheduling.RateLimitMessages != models.RateLimitMessages {
		t.Errorf("expected default rate limit messages %d, got %d", models.RateLimitMessages, cfg.Scheduling.RateLimitMessages)
	}
}

func TestValidateAPIKeys(t *testing.T) {
	tests := []struct {
		name    string
		keys    []APIClientKey
		wantErr bool
	}{
		{name: "Valid keys", keys: []APIClientKey{{Key: "a"}, {Key: "b"}}},
		{name: "Empty key", keys: []APIClientKey{{Key: "", Name: "broken"}}, wantErr: true},
		{name: "No keys", keys: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKeys(tt.keys)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKeys() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
