// Package toolexec runs external programs (cargo and the FLAIR tools).
//
// Stages depend on the [Executor] interface rather than os/exec directly, so
// tests can substitute a fake that creates the files a real tool would.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// tailLines is how much captured output an ExitError keeps.
const tailLines = 20

// Command describes one process invocation.
type Command struct {
	Path string   // executable name or path
	Args []string // arguments, without the executable
	Dir  string   // working directory; empty means the current one
	Env  []string // extra KEY=VALUE pairs appended to the environment
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Executor runs commands to completion.
type Executor interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitError reports a command that ran but did not succeed.
type ExitError struct {
	Command  Command
	ExitCode int    // -1 if the process did not exit normally
	Output   string // last lines of combined stdout/stderr
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command.Path, e.ExitCode)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// OSExecutor runs commands with os/exec.
//
// Combined output is always captured for error reports and additionally
// copied to Output when it is non-nil (e.g. os.Stderr under --verbose).
type OSExecutor struct {
	Output io.Writer
}

// Run starts cmd and waits for it. A process that could not be started is
// returned as the underlying *exec.Error or *os.PathError; a non-zero exit
// as *ExitError.
func (x *OSExecutor) Run(ctx context.Context, cmd Command) error {
	//nolint:gosec // G204: commands are built from configuration, not user input
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	if x.Output != nil {
		w = io.MultiWriter(&buf, x.Output)
	}
	c.Stdout = w
	c.Stderr = w

	err := c.Run()
	if err == nil {
		return nil
	}

	if c.ProcessState == nil {
		// Never started: not found, not executable, bad Dir.
		return err
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &ExitError{Command: cmd, ExitCode: code, Output: tail(buf.String(), tailLines), Err: err}
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// IsExitError reports whether err is a non-zero exit of a started process.
func IsExitError(err error) bool {
	return errors.As(err, new(*ExitError))
}
