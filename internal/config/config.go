// Package config loads the didsdk configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Security SecurityConfig `yaml:"security"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type StoreConfig struct {
	Root          string `yaml:"root"`
	RetainBackups *bool  `yaml:"retainBackups"`
}

type SecurityConfig struct {
	PasswordAttemptsPerMinute float64 `yaml:"passwordAttemptsPerMinute"`
	PasswordBurst             int     `yaml:"passwordBurst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfilePath"`
}

func Default() Config {
	retain := true
	return Config{
		Store: StoreConfig{
			Root:          defaultStoreRoot(),
			RetainBackups: &retain,
		},
		Security: SecurityConfig{
			PasswordAttemptsPerMinute: 6,
			PasswordBurst:             5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// RetainBackups resolves the optional flag to its default.
func (c Config) RetainBackups() bool {
	return c.Store.RetainBackups == nil || *c.Store.RetainBackups
}

// Load reads configPath, or the first readable default candidate when
// configPath is empty, merges it over Default and applies environment
// overrides. A missing default candidate is not an error.
func Load(configPath string) (Config, error) {
	cfg := Default()

	candidates := make([]string, 0, 2)
	explicit := strings.TrimSpace(configPath) != ""
	if explicit {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"didsdk.yaml",
			"configs/didsdk.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

// Merge copies every set field of src over dst.
func Merge(dst *Config, src Config) {
	if src.Store.Root != "" {
		dst.Store.Root = src.Store.Root
	}
	if src.Store.RetainBackups != nil {
		v := *src.Store.RetainBackups
		dst.Store.RetainBackups = &v
	}
	if src.Security.PasswordAttemptsPerMinute != 0 {
		dst.Security.PasswordAttemptsPerMinute = src.Security.PasswordAttemptsPerMinute
	}
	if src.Security.PasswordBurst != 0 {
		dst.Security.PasswordBurst = src.Security.PasswordBurst
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
	if src.Metrics.TextfilePath != "" {
		dst.Metrics.TextfilePath = src.Metrics.TextfilePath
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if root := envString("DIDSDK_STORE_ROOT"); root != "" {
		cfg.Store.Root = root
	}
	retain := envBoolWithFallback("DIDSDK_STORE_RETAIN_BACKUPS", cfg.RetainBackups())
	cfg.Store.RetainBackups = &retain
	cfg.Security.PasswordBurst = envBoundedIntWithFallback("DIDSDK_PASSWORD_BURST", cfg.Security.PasswordBurst, 1, 100)
	if level := envString("DIDSDK_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := envString("DIDSDK_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
	if path := envString("DIDSDK_METRICS_TEXTFILE"); path != "" {
		cfg.Metrics.TextfilePath = path
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Store.Root) == "" {
		return errors.New("config: store.root is required")
	}
	if c.Security.PasswordAttemptsPerMinute < 0 {
		return errors.New("config: security.passwordAttemptsPerMinute must not be negative")
	}
	if c.Security.PasswordBurst < 0 {
		return errors.New("config: security.passwordBurst must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unsupported log.format %q", c.Log.Format)
	}
	return nil
}

func defaultStoreRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".didstore"
	}
	return filepath.Join(home, ".didstore")
}
