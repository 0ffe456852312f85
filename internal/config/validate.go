package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"

	"github.com/randomizedcoder/go-docker-machine/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// docker-machine accepts alphanumerics, dots and dashes, starting with an
// alphanumeric.
var machineName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.-]*$`)

// Driver names are lower-case plugin names (digitalocean, amazonec2,
// virtualbox, generic, ...). "aws" is accepted as an alias of amazonec2.
var driverName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	switch {
	case cfg.Name == "":
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "machine name is required",
		})
	case !machineName.MatchString(cfg.Name):
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("must match %s (got %q)", machineName, cfg.Name),
		})
	}

	if cfg.Driver != "" && !driverName.MatchString(cfg.Driver) {
		errs = append(errs, ValidationError{
			Field:   "driver",
			Message: fmt.Sprintf("must be a docker-machine driver name such as 'digitalocean', 'amazonec2' or 'generic' (got %q)", cfg.Driver),
		})
	}

	if cfg.Cwd == "" {
		errs = append(errs, ValidationError{
			Field:   "cwd",
			Message: "must not be empty",
		})
	}

	if cfg.MachineBin == "" {
		errs = append(errs, ValidationError{
			Field:   "machine_bin",
			Message: "must not be empty",
		})
	}
	if cfg.ComposeBin == "" {
		errs = append(errs, ValidationError{
			Field:   "compose_bin",
			Message: "must not be empty",
		})
	}

	if cfg.TaskTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "task_timeout",
			Message: "must be positive",
		})
	}

	for key := range cfg.Env {
		if key == "" {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: "variable name must not be empty",
			})
			break
		}
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if !logging.ValidLevel(cfg.LogLevel) {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}

	if cfg.APIAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.APIAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "api_addr",
				Message: err.Error(),
			})
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
