// Package config provides configuration management for go-docker-machine.
//
// Precedence, lowest first: DefaultConfig, the YAML file named by --config,
// then flags set on the command line.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for one managed machine.
type Config struct {
	// Machine
	Name    string            `yaml:"name"`
	Cwd     string            `yaml:"cwd"`     // working directory for every task (compose project dir)
	Driver  string            `yaml:"driver"`  // digitalocean, amazonec2 (aws), another driver, or empty for options only
	Options map[string]string `yaml:"options"` // extra or overriding "create" options, without the leading --
	Env     map[string]string `yaml:"env"`     // added to the inherited environment

	// Tasks
	MachineBin            string        `yaml:"machine_bin"`
	ComposeBin            string        `yaml:"compose_bin"`
	TaskTimeout           time.Duration `yaml:"task_timeout"`
	AllowProvisionFailure bool          `yaml:"allow_provision_failure"`
	StartServices         bool          `yaml:"start_services"`

	// Observability
	LogFormat string `yaml:"log_format"` // json, text
	LogLevel  string `yaml:"log_level"`
	Verbose   bool   `yaml:"verbose"`
	APIAddr   string `yaml:"api_addr"`   // empty disables the HTTP API
	HistoryDB string `yaml:"history_db"` // empty disables persistent history

	// Dashboard / diagnostics
	TUIEnabled    bool `yaml:"tui"`
	SkipPreflight bool `yaml:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	return &Config{
		Cwd:     cwd,
		Driver:  "digitalocean",
		Options: map[string]string{},
		Env:     map[string]string{},

		// Tasks
		MachineBin:  "docker-machine",
		ComposeBin:  "docker-compose",
		TaskTimeout: 540 * time.Second,
		// "create" fails when the machine already exists
		AllowProvisionFailure: true,

		// Observability
		LogFormat: "json",
		LogLevel:  "info",
		APIAddr:   "127.0.0.1:17092",
	}
}

// LoadFile reads a YAML config file into cfg. Keys absent from the file keep
// their current values; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
