// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// versionTimeout bounds each `<bin> version` probe.
const versionTimeout = 10 * time.Second

// Each running task holds two pipes plus the child's own descriptors.
const minFileDescriptors = 64

// ComposeFiles are the project file names docker-compose looks for.
var ComposeFiles = []string{"compose.yaml", "compose.yml", "docker-compose.yml", "docker-compose.yaml"}

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll verifies.
type Options struct {
	MachineBin string
	ComposeBin string
	Cwd        string

	// NeedCompose adds the docker-compose binary and project file checks.
	NeedCompose bool

	// DriverOptions are the create options; credentials for known drivers
	// must be present.
	DriverOptions map[string]string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 6),
		Passed: true,
	}

	result.add(checkFileDescriptors())
	result.add(checkBinary(ctx, "docker_machine", opts.MachineBin))
	result.add(checkWorkingDir(opts.Cwd))
	if opts.DriverOptions != nil {
		result.add(checkCredentials(opts.DriverOptions))
	}
	if opts.NeedCompose {
		result.add(checkBinary(ctx, "docker_compose", opts.ComposeBin))
		result.add(checkComposeFile(opts.Cwd))
	}
	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := int(min(limit.Cur, 1<<30))
	return Check{
		Name:     "file_descriptors",
		Required: minFileDescriptors,
		Actual:   actual,
		Passed:   actual >= minFileDescriptors,
	}
}

// checkBinary runs `<path> version` and reports the version it prints.
func checkBinary(ctx context.Context, name, path string) Check {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "version").Output()
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, ParseVersion(string(output))),
	}
}

// ParseVersion extracts the version from the first line of
// `docker-machine version` / `docker-compose version`:
//
//	docker-machine version 0.16.2, build bd45ab13
//	Docker Compose version v2.24.5
func ParseVersion(output string) string {
	first, _, _ := strings.Cut(output, "\n")
	fields := strings.Fields(first)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return strings.TrimSuffix(fields[i+1], ",")
		}
	}
	return "unknown"
}

// checkWorkingDir verifies the task working directory exists.
func checkWorkingDir(dir string) Check {
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		return Check{Name: "working_dir", Passed: false, Message: err.Error()}
	case !info.IsDir():
		return Check{Name: "working_dir", Passed: false, Message: dir + " is not a directory"}
	}
	return Check{Name: "working_dir", Passed: true, Message: dir}
}

// checkComposeFile warns when cwd holds no compose project file.
func checkComposeFile(dir string) Check {
	for _, name := range ComposeFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return Check{Name: "compose_file", Passed: true, Message: name}
		}
	}
	return Check{
		Name:    "compose_file",
		Passed:  true,
		Warning: true,
		Message: "no compose file in " + dir,
	}
}

// credentialKeys lists the options each driver cannot create without.
var credentialKeys = map[string][]string{
	"digitalocean": {"digitalocean-access-token"},
	"amazonec2":    {"amazonec2-access-key", "amazonec2-secret-key"},
}

// checkCredentials verifies the driver's credential options are set.
func checkCredentials(opts map[string]string) Check {
	driver := opts["driver"]
	keys, known := credentialKeys[driver]
	if !known {
		return Check{Name: "credentials", Passed: true, Message: fmt.Sprintf("driver %q not checked", driver)}
	}

	var missing []string
	for _, k := range keys {
		if opts[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Check{
			Name:    "credentials",
			Passed:  false,
			Message: fmt.Sprintf("%s: missing %s", driver, strings.Join(missing, ", ")),
		}
	}
	return Check{Name: "credentials", Passed: true, Message: driver}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "docker_machine":
		return "install docker-machine or set --machine-bin"
	case "docker_compose":
		return "install docker-compose or set --compose-bin"
	case "working_dir":
		return "create the directory or set --cwd"
	case "credentials":
		return "set DO_API_TOKEN or AWS_ACCESS_KEY/AWS_SECRET_KEY, or pass --option"
	default:
		return "see documentation"
	}
}
