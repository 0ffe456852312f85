package preflight

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") || !strings.Contains(s, "100") {
			t.Errorf("Should contain actual and required values: %s", s)
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{Name: "test_check", Passed: false, Message: "boom"}
		if s := c.String(); !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})
}

// fakeBinary writes a script that answers `version` like docker-machine.
func fakeBinary(t *testing.T, versionLine string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "bin")
	script := "#!/bin/sh\necho '" + versionLine + "'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func findCheck(t *testing.T, result *Result, name string) Check {
	t.Helper()
	for _, c := range result.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("Expected %s check in results", name)
	return Check{}
}

func TestRunAll_Passes(t *testing.T) {
	bin := fakeBinary(t, "docker-machine version 0.16.2, build bd45ab13")

	result := RunAll(context.Background(), Options{
		MachineBin:    bin,
		Cwd:           t.TempDir(),
		DriverOptions: map[string]string{"driver": "digitalocean", "digitalocean-access-token": "tok"},
	})

	if !result.Passed {
		var b bytes.Buffer
		PrintResults(&b, result)
		t.Fatalf("RunAll failed:\n%s", b.String())
	}

	machine := findCheck(t, result, "docker_machine")
	if !strings.Contains(machine.Message, "version 0.16.2") {
		t.Errorf("Message should carry the version: %s", machine.Message)
	}

	fd := findCheck(t, result, "file_descriptors")
	if fd.Actual <= 0 || fd.Required <= 0 {
		t.Errorf("file_descriptors actual=%d required=%d", fd.Actual, fd.Required)
	}
}

func TestRunAll_MissingBinary(t *testing.T) {
	result := RunAll(context.Background(), Options{
		MachineBin: "/nonexistent/docker-machine",
		Cwd:        t.TempDir(),
	})

	check := findCheck(t, result, "docker_machine")
	if check.Passed {
		t.Error("docker_machine check should fail with invalid path")
	}
	if !strings.Contains(check.Message, "not found") {
		t.Errorf("Message should mention 'not found': %s", check.Message)
	}
	if result.Passed {
		t.Error("Result should fail when docker-machine is not found")
	}
}

func TestRunAll_WorkingDir(t *testing.T) {
	bin := fakeBinary(t, "docker-machine version 0.16.2")
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dir  string
		pass bool
	}{
		{"exists", t.TempDir(), true},
		{"missing", filepath.Join(t.TempDir(), "nope"), false},
		{"not a directory", file, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RunAll(context.Background(), Options{MachineBin: bin, Cwd: tt.dir})
			if got := findCheck(t, result, "working_dir").Passed; got != tt.pass {
				t.Errorf("working_dir passed = %v, want %v", got, tt.pass)
			}
		})
	}
}

func TestRunAll_Compose(t *testing.T) {
	machineBin := fakeBinary(t, "docker-machine version 0.16.2")
	composeBin := fakeBinary(t, "Docker Compose version v2.24.5")

	dir := t.TempDir()
	opts := Options{MachineBin: machineBin, ComposeBin: composeBin, Cwd: dir, NeedCompose: true}

	result := RunAll(context.Background(), opts)
	file := findCheck(t, result, "compose_file")
	if !file.Passed || !file.Warning {
		t.Errorf("missing compose file should warn, got %+v", file)
	}
	if !result.Passed {
		t.Error("a compose file warning must not fail the run")
	}
	if c := findCheck(t, result, "docker_compose"); !strings.Contains(c.Message, "v2.24.5") {
		t.Errorf("docker_compose message = %s", c.Message)
	}

	if err := os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	file = findCheck(t, RunAll(context.Background(), opts), "compose_file")
	if file.Warning || file.Message != "docker-compose.yml" {
		t.Errorf("compose file check = %+v", file)
	}
}

func TestCheckCredentials(t *testing.T) {
	tests := []struct {
		name string
		opts map[string]string
		pass bool
	}{
		{"do with token", map[string]string{"driver": "digitalocean", "digitalocean-access-token": "t"}, true},
		{"do without token", map[string]string{"driver": "digitalocean"}, false},
		{"aws partial", map[string]string{"driver": "amazonec2", "amazonec2-access-key": "a"}, false},
		{"aws complete", map[string]string{"driver": "amazonec2", "amazonec2-access-key": "a", "amazonec2-secret-key": "s"}, true},
		{"unknown driver", map[string]string{"driver": "virtualbox"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkCredentials(tt.opts); got.Passed != tt.pass {
				t.Errorf("Passed = %v, want %v (%s)", got.Passed, tt.pass, got.Message)
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"docker-machine version 0.16.2, build bd45ab13\n", "0.16.2"},
		{"docker-compose version 1.29.2, build 5becea4c\ndocker-py version: 5.0.0", "1.29.2"},
		{"Docker Compose version v2.24.5", "v2.24.5"},
		{"garbage", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		if got := ParseVersion(tt.in); got != tt.want {
			t.Errorf("ParseVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "docker_machine", Passed: false, Message: "not found"},
			{Name: "working_dir", Passed: true, Message: "/tmp"},
		},
	}

	var b bytes.Buffer
	PrintResults(&b, result)
	out := b.String()

	if !strings.HasPrefix(out, "Preflight checks:") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "Fix: install docker-machine") {
		t.Errorf("missing fix suggestion: %q", out)
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Errorf("fix shown for passing check: %q", out)
	}
}
