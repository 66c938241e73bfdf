package toolexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestOSExecutorSuccess(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	var out bytes.Buffer
	x := &OSExecutor{Output: &out}

	err := x.Run(context.Background(), Command{
		Path: "/bin/sh",
		Args: []string{"-c", "echo built > marker; echo $CRATESIG_TEST"},
		Dir:  dir,
		Env:  []string{"CRATESIG_TEST=hello"},
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "marker")); err != nil {
		t.Error("command did not run in Dir")
	}
	if !strings.Contains(out.String(), "hello") {
		t.Errorf("output = %q, want env value", out.String())
	}
}

func TestOSExecutorExitError(t *testing.T) {
	requireShell(t)
	x := &OSExecutor{}

	err := x.Run(context.Background(), Command{
		Path: "/bin/sh",
		Args: []string{"-c", "echo 'COLLISION: foo' >&2; exit 3"},
	})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if exitErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", exitErr.ExitCode)
	}
	if !strings.Contains(exitErr.Output, "COLLISION: foo") {
		t.Errorf("Output = %q, want captured stderr", exitErr.Output)
	}
	if !IsExitError(err) {
		t.Error("IsExitError() = false")
	}
}

func TestOSExecutorMissingBinary(t *testing.T) {
	x := &OSExecutor{}
	err := x.Run(context.Background(), Command{Path: filepath.Join(t.TempDir(), "nope")})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsExitError(err) {
		t.Error("missing binary should not be reported as an exit error")
	}
	var execErr *exec.Error
	var pathErr *os.PathError
	if !errors.As(err, &execErr) && !errors.As(err, &pathErr) {
		t.Errorf("error = %T %v, want exec or path error", err, err)
	}
}

func TestCommandString(t *testing.T) {
	c := Command{Path: "cargo", Args: []string{"build", "--release"}}
	if c.String() != "cargo build --release" {
		t.Errorf("String() = %q", c.String())
	}
}

func TestTail(t *testing.T) {
	in := strings.Repeat("line\n", 50) + "last\n"
	got := tail(in, 3)
	if got != "line\nline\nlast" {
		t.Errorf("tail() = %q", got)
	}
}
