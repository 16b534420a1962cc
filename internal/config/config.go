// Package config resolves shellguard's startup settings.
// Resolution order: built-in defaults, then the optional YAML settings
// file, then SHELLGUARD_* environment variables. Settings are resolved
// once at startup and never change for the process lifetime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "shellguard"

// Settings holds all runtime configuration.
type Settings struct {
	// ExecTimeout bounds each command execution.
	ExecTimeout time.Duration `yaml:"exec_timeout" envconfig:"EXEC_TIMEOUT"`
	// MaxOutputLines caps captured stdout/stderr line counts.
	MaxOutputLines int `yaml:"max_output_lines" envconfig:"MAX_OUTPUT_LINES"`
	// AllowedDirs are the absolute roots that absolute-path command
	// arguments must fall under. Comma-separated in the environment.
	AllowedDirs []string `yaml:"allowed_dirs" envconfig:"ALLOWED_DIRS"`
	// AuditEnabled toggles audit log appends.
	AuditEnabled bool `yaml:"audit_enabled" envconfig:"AUDIT_ENABLED"`
	// Shell is the command interpreter; empty means /bin/sh.
	Shell string `yaml:"shell" envconfig:"SHELL"`
	// PolicyPath is the persisted policy override file.
	PolicyPath string `yaml:"policy_path" envconfig:"POLICY_PATH"`
	// AuditLogPath is the append-only JSONL audit log.
	AuditLogPath string `yaml:"audit_log_path" envconfig:"AUDIT_LOG_PATH"`
}

// DefaultSettings returns the built-in configuration. Allowed dirs
// default to the process working directory; persisted files live under
// ~/.shellguard.
func DefaultSettings() Settings {
	base := defaultDir()
	wd, err := os.Getwd()
	if err != nil {
		wd = string(os.PathSeparator)
	}
	return Settings{
		ExecTimeout:    30 * time.Second,
		MaxOutputLines: 100,
		AllowedDirs:    []string{wd},
		AuditEnabled:   true,
		PolicyPath:     filepath.Join(base, "policy.json"),
		AuditLogPath:   filepath.Join(base, "audit.jsonl"),
	}
}

// DefaultPath returns the default settings file location.
func DefaultPath() string {
	return filepath.Join(defaultDir(), "config.yaml")
}

// Load resolves settings from defaults, the YAML file at path (missing
// file is fine, invalid YAML is an error), and the environment.
func Load(path string) (Settings, error) {
	cfg := DefaultSettings()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}

	// Environment variables win over the file. Fields without a
	// matching variable are left untouched.
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Settings{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// normalize validates bounds and canonicalizes allowed directory roots:
// absolute, cleaned, trailing separator appended.
func (s *Settings) normalize() error {
	if s.ExecTimeout <= 0 {
		return fmt.Errorf("exec timeout must be positive, got %s", s.ExecTimeout)
	}
	if s.MaxOutputLines <= 0 {
		return fmt.Errorf("max output lines must be positive, got %d", s.MaxOutputLines)
	}
	if len(s.AllowedDirs) == 0 {
		return fmt.Errorf("at least one allowed directory is required")
	}

	sep := string(os.PathSeparator)
	roots := make([]string, 0, len(s.AllowedDirs))
	for _, d := range s.AllowedDirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			return fmt.Errorf("resolve allowed directory %q: %w", d, err)
		}
		abs = filepath.Clean(abs)
		if abs != sep {
			abs += sep
		}
		roots = append(roots, abs)
	}
	s.AllowedDirs = roots
	return nil
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "shellguard")
	}
	return filepath.Join(home, ".shellguard")
}
