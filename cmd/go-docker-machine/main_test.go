package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-docker-machine/internal/controller"
	"github.com/randomizedcoder/go-docker-machine/internal/store"
	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

const fakeMachine = `#!/bin/sh
case "$1" in
create) echo "Host already exists: \"$2\"" >&2; exit 1 ;;
start)  echo "Machine \"$2\" is already running." ;;
ip)     echo 203.0.113.9 ;;
env)    echo 'export DOCKER_HOST="tcp://203.0.113.9:2376"' ;;
status) echo Running ;;
*)      echo "unexpected $1" >&2; exit 2 ;;
esac
`

func writeFakeMachine(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "docker-machine")
	require.NoError(t, os.WriteFile(path, []byte(fakeMachine), 0o755))
	return path
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func commonArgs(t *testing.T, bin string) []string {
	return []string{
		"--name", "dev",
		"--driver", "",
		"--option", "driver=generic",
		"--cwd", t.TempDir(),
		"--machine-bin", bin,
		"--skip-preflight",
		"--api-addr", "",
		"--log-level", "error",
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t,
		[]string{"up", "down", "services", "logs", "status", "copy-to", "copy-from", "version"},
		names)

	for _, flag := range []string{"name", "cwd", "driver", "option", "env", "timeout", "api-addr", "history-db", "tui", "config"} {
		require.NotNil(t, root.PersistentFlags().Lookup(flag), "missing --%s", flag)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "go-docker-machine: dev")
}

func TestCopyTo_RequiresTwoArgs(t *testing.T) {
	_, err := execute(t, "copy-to", "only-one")
	require.Error(t, err)
}

func TestUp_InvalidConfig(t *testing.T) {
	_, err := execute(t, "up", "--name", "not a name", "--skip-preflight")
	require.ErrorContains(t, err, "configuration")
}

func TestUp_EndToEnd(t *testing.T) {
	bin := writeFakeMachine(t)
	db := filepath.Join(t.TempDir(), "history.db")

	out, err := execute(t, append(commonArgs(t, bin), "--history-db", db, "up")...)
	require.NoError(t, err)
	require.Contains(t, out, "203.0.113.9")

	s, err := store.NewSQLiteStore(db)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.List(context.Background(), "dev", 10)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	require.Equal(t, "provision_machine", recs[0].Name)
	require.Equal(t, task.StateSucceeded, recs[0].State, "create fails but is allowed to")
	require.Equal(t, 1, recs[0].ExitCode)
	require.Equal(t, "get_machine_status", recs[4].Name)
}

func TestStatus_PrintsMachine(t *testing.T) {
	bin := writeFakeMachine(t)

	out, err := execute(t, append(commonArgs(t, bin), "status")...)
	require.NoError(t, err)
	require.Contains(t, out, "Docker machine dev, 203.0.113.9, Running")
}

func TestDown_HaltsOnError(t *testing.T) {
	bin := writeFakeMachine(t)

	// The fake rejects stop/kill (allowed to fail) and rm (not allowed)
	_, err := execute(t, append(commonArgs(t, bin), "down")...)

	var taskErr *controller.TaskError
	require.ErrorAs(t, err, &taskErr)
}

func TestStatus_AnyDriverName(t *testing.T) {
	bin := writeFakeMachine(t)

	for _, driver := range []string{"virtualbox", "aws"} {
		t.Run(driver, func(t *testing.T) {
			args := append(commonArgs(t, bin), "--driver", driver, "status")
			out, err := execute(t, args...)
			require.NoError(t, err)
			require.Contains(t, out, "Docker machine dev, 203.0.113.9, Running")
		})
	}
}
