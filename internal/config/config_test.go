package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "didsdk.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  root: /var/lib/didstore
  retainBackups: false
log:
  format: json
metrics:
  textfilePath: /tmp/didsdk.prom
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Store.Root != "/var/lib/didstore" {
		t.Fatalf("unexpected root: %q", cfg.Store.Root)
	}
	if cfg.RetainBackups() {
		t.Fatal("retainBackups=false must be honoured")
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "info" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Security.PasswordBurst != 5 {
		t.Fatalf("unset fields must keep defaults, got %d", cfg.Security.PasswordBurst)
	}
	if cfg.Metrics.TextfilePath != "/tmp/didsdk.prom" {
		t.Fatalf("unexpected metrics path: %q", cfg.Metrics.TextfilePath)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, "store:\n  root: /from/file\n")
	t.Setenv("DIDSDK_STORE_ROOT", "/from/env")
	t.Setenv("DIDSDK_STORE_RETAIN_BACKUPS", "off")
	t.Setenv("DIDSDK_LOG_LEVEL", "debug")
	t.Setenv("DIDSDK_PASSWORD_BURST", "1000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Store.Root != "/from/env" || cfg.RetainBackups() || cfg.Log.Level != "debug" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Security.PasswordBurst != 100 {
		t.Fatalf("burst must be clamped, got %d", cfg.Security.PasswordBurst)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("explicit missing config must fail")
	}
	if _, err := Load(writeConfig(t, "store: [")); err == nil {
		t.Fatal("invalid yaml must fail")
	}
	if _, err := Load(writeConfig(t, "log:\n  format: xml\n")); err == nil {
		t.Fatal("unsupported log format must fail")
	}
}

func TestLoadWithoutCandidatesUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DIDSDK_STORE_ROOT", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Store.Root == "" || !cfg.RetainBackups() {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestEnvBoolWithFallback(t *testing.T) {
	t.Setenv("DIDSDK_TEST_BOOL", "maybe")
	if !envBoolWithFallback("DIDSDK_TEST_BOOL", true) {
		t.Fatal("unparsable value must fall back")
	}
	t.Setenv("DIDSDK_TEST_BOOL", "YES")
	if !envBoolWithFallback("DIDSDK_TEST_BOOL", false) {
		t.Fatal("yes must parse as true")
	}
}
