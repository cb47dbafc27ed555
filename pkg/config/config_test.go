package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SectionHeading != "## Tasks" || cfg.DateFormat != "2006-01-02" || cfg.Workers != 4 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Interval != 15*time.Minute || cfg.StateBackend != "file" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "vault_dir: /notes\nsection_heading: \"### Todo\"\nworkers: 2\ninterval: 5m\ntask_list: Work\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TODO_INTEGRATOR_TASK_LIST", "Personal")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VaultDir != "/notes" || cfg.SectionHeading != "### Todo" || cfg.Workers != 2 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Interval != 5*time.Minute {
		t.Errorf("expected 5m interval, got %s", cfg.Interval)
	}
	if cfg.TaskList != "Personal" {
		t.Errorf("environment should override the file, got %q", cfg.TaskList)
	}
	if cfg.DateFormat != "2006-01-02" {
		t.Errorf("unset keys keep defaults, got %q", cfg.DateFormat)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.VaultDir = "/vault"
	cfg.TaskList = "Errands"
	cfg.Interval = 90 * time.Second
	cfg.RetentionDays = 30

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.VaultDir != "/vault" || got.TaskList != "Errands" || got.Interval != 90*time.Second || got.RetentionDays != 30 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		if err != nil {
			t.Fatal(err)
		}
		cfg.VaultDir = "/vault"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no vault", func(c *Config) { c.VaultDir = "" }, "vault_dir"},
		{"bad heading", func(c *Config) { c.SectionHeading = "Tasks" }, "section_heading"},
		{"bad date format", func(c *Config) { c.DateFormat = "Monday" }, "date_format"},
		{"bad backend", func(c *Config) { c.StateBackend = "redis" }, "state_backend"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"negative retention", func(c *Config) { c.RetentionDays = -1 }, "retention_days"},
		{"zero interval", func(c *Config) { c.Interval = 0 }, "interval"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestResolvedStatePath(t *testing.T) {
	cfg := &Config{StatePath: "/tmp/state.db", StateBackend: "sqlite"}
	if got, _ := cfg.ResolvedStatePath(); got != "/tmp/state.db" {
		t.Errorf("explicit path not used, got %s", got)
	}

	cfg = &Config{StateBackend: "sqlite"}
	got, err := cfg.ResolvedStatePath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "state.db" || !strings.Contains(got, AppName) {
		t.Errorf("unexpected default sqlite path %s", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/notes"); got != filepath.Join(home, "notes") {
		t.Errorf("got %s", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("got %s", got)
	}
}
