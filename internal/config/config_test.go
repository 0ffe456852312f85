package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Name = "dev"
	return cfg
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "machine.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MachineBin != "docker-machine" {
		t.Errorf("MachineBin = %q, want docker-machine", cfg.MachineBin)
	}
	if cfg.ComposeBin != "docker-compose" {
		t.Errorf("ComposeBin = %q, want docker-compose", cfg.ComposeBin)
	}
	if cfg.TaskTimeout != 540*time.Second {
		t.Errorf("TaskTimeout = %v, want 9m0s", cfg.TaskTimeout)
	}
	if !cfg.AllowProvisionFailure {
		t.Error("AllowProvisionFailure should default to true")
	}
	if cfg.Cwd == "" {
		t.Error("Cwd should default to the working directory")
	}
	if cfg.Env == nil || cfg.Options == nil {
		t.Error("maps should be initialised")
	}

	// Each call gets its own maps
	other := DefaultConfig()
	cfg.Env["A"] = "1"
	if _, ok := other.Env["A"]; ok {
		t.Error("DefaultConfig instances share state")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		field  string // empty = valid
	}{
		{"valid", func(*Config) {}, ""},
		{"no driver", func(c *Config) { c.Driver = "" }, ""},
		{"aws", func(c *Config) { c.Driver = "amazonec2" }, ""},
		{"api disabled", func(c *Config) { c.APIAddr = "" }, ""},
		{"missing name", func(c *Config) { c.Name = "" }, "name"},
		{"bad name", func(c *Config) { c.Name = "-dev" }, "name"},
		{"name with space", func(c *Config) { c.Name = "my dev" }, "name"},
		{"other driver", func(c *Config) { c.Driver = "virtualbox" }, ""},
		{"aws alias", func(c *Config) { c.Driver = "aws" }, ""},
		{"bad driver", func(c *Config) { c.Driver = "Virtual Box" }, "driver"},
		{"empty cwd", func(c *Config) { c.Cwd = "" }, "cwd"},
		{"empty machine bin", func(c *Config) { c.MachineBin = "" }, "machine_bin"},
		{"empty compose bin", func(c *Config) { c.ComposeBin = "" }, "compose_bin"},
		{"zero timeout", func(c *Config) { c.TaskTimeout = 0 }, "task_timeout"},
		{"empty env key", func(c *Config) { c.Env[""] = "x" }, "env"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"bad api addr", func(c *Config) { c.APIAddr = "localhost" }, "api_addr"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(cfg)

			err := Validate(cfg)
			if tc.field == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("Validate() = nil, want error for %s", tc.field)
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %v is not a ValidationError", err)
			}
			if ve.Field != tc.field {
				t.Errorf("Field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Name = ""
	cfg.LogFormat = "xml"
	cfg.TaskTimeout = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, field := range []string{"name", "log_format", "task_timeout"} {
		if !strings.Contains(err.Error(), field+":") {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
name: staging
driver: amazonec2
options:
  amazonec2-instance-type: t3.small
env:
  COMPOSE_PROJECT_NAME: web
task_timeout: 2m
start_services: true
log_format: text
`)

	cfg := DefaultConfig()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Name != "staging" || cfg.Driver != "amazonec2" {
		t.Errorf("Name/Driver = %q/%q", cfg.Name, cfg.Driver)
	}
	if cfg.Options["amazonec2-instance-type"] != "t3.small" {
		t.Errorf("Options = %v", cfg.Options)
	}
	if cfg.Env["COMPOSE_PROJECT_NAME"] != "web" {
		t.Errorf("Env = %v", cfg.Env)
	}
	if cfg.TaskTimeout != 2*time.Minute {
		t.Errorf("TaskTimeout = %v, want 2m", cfg.TaskTimeout)
	}
	if !cfg.StartServices {
		t.Error("StartServices should be true")
	}
	// Absent keys keep defaults
	if cfg.MachineBin != "docker-machine" {
		t.Errorf("MachineBin = %q, want default", cfg.MachineBin)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), DefaultConfig()); err == nil {
		t.Error("missing file should fail")
	}

	path := writeFile(t, "nmae: typo\n")
	if err := LoadFile(path, DefaultConfig()); err == nil {
		t.Error("unknown key should fail")
	}
}

func TestBindFlags_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	b := BindFlags(fs, cfg)

	if err := fs.Parse([]string{"--name", "dev"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := b.Resolve(fs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Name != "dev" || got.TaskTimeout != 540*time.Second {
		t.Errorf("Resolve() = %+v", got)
	}
}

func TestBindFlags_FlagsOverrideFile(t *testing.T) {
	path := writeFile(t, `
name: from-file
driver: amazonec2
log_level: warn
env:
  FROM_FILE: "1"
  SHARED: file
options:
  amazonec2-region: us-east-1
`)

	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	b := BindFlags(fs, cfg)

	err := fs.Parse([]string{
		"--config", path,
		"-n", "from-flag",
		"--timeout", "30s",
		"--env", "SHARED=flag",
		"--option", "amazonec2-region=eu-west-1",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got, err := b.Resolve(fs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if b.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q", b.ConfigFile())
	}
	if got.Name != "from-flag" {
		t.Errorf("Name = %q, want from-flag (flag wins)", got.Name)
	}
	if got.Driver != "amazonec2" {
		t.Errorf("Driver = %q, want amazonec2 (from file)", got.Driver)
	}
	if got.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (from file)", got.LogLevel)
	}
	if got.TaskTimeout != 30*time.Second {
		t.Errorf("TaskTimeout = %v, want 30s", got.TaskTimeout)
	}
	if got.Env["FROM_FILE"] != "1" || got.Env["SHARED"] != "flag" {
		t.Errorf("Env = %v", got.Env)
	}
	if got.Options["amazonec2-region"] != "eu-west-1" {
		t.Errorf("Options = %v", got.Options)
	}
}

func TestBindFlags_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	b := BindFlags(fs, cfg)

	if err := fs.Parse([]string{"--log-format", "xml"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := b.Resolve(fs); err == nil {
		t.Error("Resolve should validate")
	}
}
