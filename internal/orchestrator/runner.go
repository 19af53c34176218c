package orchestrator

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Command is one workload execution.
type Command struct {
	Line   string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

type Runner interface {
	// Run executes the command to completion and returns its exit code.
	// The error is reserved for commands that could not be started.
	Run(ctx context.Context, cmd Command) (int, error)
}

// ShellRunner runs the command line through "<Shell> -c".
type ShellRunner struct {
	Shell string
}

func (r ShellRunner) Run(ctx context.Context, cmd Command) (int, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	c := exec.CommandContext(ctx, shell, "-c", cmd.Line)
	c.Env = append(os.Environ(), cmd.Env...)
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr

	if err := c.Start(); err != nil {
		return -1, err
	}
	err := c.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}
