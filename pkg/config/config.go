package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/tasktext"
)

const (
	AppName    = "todo-integrator"
	configFile = "config.yaml"
	envPrefix  = "TODO_INTEGRATOR"
)

// Config is the user configuration. Keys are shared by the YAML file and
// the TODO_INTEGRATOR_* environment variables.
type Config struct {
	VaultDir        string        `mapstructure:"vault_dir"`
	DailyDir        string        `mapstructure:"daily_dir"`
	DateFormat      string        `mapstructure:"date_format"`
	SectionHeading  string        `mapstructure:"section_heading"`
	TaskList        string        `mapstructure:"task_list"`
	StateBackend    string        `mapstructure:"state_backend"`
	StatePath       string        `mapstructure:"state_path"`
	Workers         int           `mapstructure:"workers"`
	MatchWindowDays int           `mapstructure:"match_window_days"`
	RetentionDays   int           `mapstructure:"retention_days"`
	Interval        time.Duration `mapstructure:"interval"`
	Listen          string        `mapstructure:"listen"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	NoteTemplate    bool          `mapstructure:"note_template"`
}

var defaults = map[string]any{
	"vault_dir":         "",
	"daily_dir":         "",
	"date_format":       "2006-01-02",
	"section_heading":   "## Tasks",
	"task_list":         "",
	"state_backend":     "file",
	"state_path":        "",
	"workers":           4,
	"match_window_days": 0,
	"retention_days":    0,
	"interval":          "15m",
	"listen":            "",
	"log_level":         "info",
	"log_format":        "text",
	"note_template":     false,
}

// Dir is the per-user configuration directory that also holds the OAuth
// credentials and the default state files.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path (the default path when empty). A
// missing file yields the defaults; environment variables override both.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := newViper()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.VaultDir = expandHome(cfg.VaultDir)
	cfg.StatePath = expandHome(cfg.StatePath)
	return &cfg, nil
}

// Save writes cfg as YAML to path (the default path when empty).
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	doc := map[string]any{
		"vault_dir":         cfg.VaultDir,
		"daily_dir":         cfg.DailyDir,
		"date_format":       cfg.DateFormat,
		"section_heading":   cfg.SectionHeading,
		"task_list":         cfg.TaskList,
		"state_backend":     cfg.StateBackend,
		"state_path":        cfg.StatePath,
		"workers":           cfg.Workers,
		"match_window_days": cfg.MatchWindowDays,
		"retention_days":    cfg.RetentionDays,
		"interval":          cfg.Interval.String(),
		"listen":            cfg.Listen,
		"log_level":         cfg.LogLevel,
		"log_format":        cfg.LogFormat,
		"note_template":     cfg.NoteTemplate,
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0600)
}

// Validate checks the settings a sync run depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.VaultDir == "" {
		errs = append(errs, errors.New("vault_dir is required"))
	}
	if err := tasktext.ValidateHeading(c.SectionHeading); err != nil {
		errs = append(errs, fmt.Errorf("section_heading: %w", err))
	}
	if !validDateFormat(c.DateFormat) {
		errs = append(errs, fmt.Errorf("date_format %q does not round-trip a calendar date", c.DateFormat))
	}
	switch c.StateBackend {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("state_backend %q (valid: file, sqlite, memory)", c.StateBackend))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.MatchWindowDays < 0 {
		errs = append(errs, fmt.Errorf("match_window_days must not be negative"))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("retention_days must not be negative"))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("log_format %q (valid: text, json, logfmt)", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ResolvedStatePath is where the identity map lives: StatePath when set,
// otherwise a location under Dir() suited to the backend.
func (c *Config) ResolvedStatePath() (string, error) {
	if c.StatePath != "" {
		return c.StatePath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if c.StateBackend == "sqlite" {
		return filepath.Join(dir, "state.db"), nil
	}
	return filepath.Join(dir, "state"), nil
}

func validDateFormat(layout string) bool {
	if layout == "" {
		return false
	}
	want := time.Date(2024, time.November, 23, 0, 0, 0, 0, time.UTC)
	got, err := time.Parse(layout, want.Format(layout))
	return err == nil && got.Equal(want)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
