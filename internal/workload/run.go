// Package workload runs the main program once the sidecars are ready.
package workload

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// Runner spawns the main workload and reports its exit status.
type Runner struct {
	log *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	return &Runner{log: log}
}

// Run executes command with args, passing our stdin, stdout and stderr
// through unmodified, and blocks until it exits. The returned status is the
// workload's own exit code (0-255); termination by signal or any
// unrepresentable status collapses to 1. A non-nil error means the process
// could not be spawned at all, in which case the status is 1.
func (r *Runner) Run(command string, args []string) (int, error) {
	cmd := exec.Command(command, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	r.log.Info("Running main workload", zap.String("command", command), zap.Strings("args", args))
	err := cmd.Run()
	status, err := exitStatus(err)
	if err != nil {
		return status, fmt.Errorf("failed to execute %q: %w", command, err)
	}

	r.log.Info("Main workload finished", zap.String("command", command), zap.Int("status", status))
	return status, nil
}

// exitStatus translates the error from exec.Cmd.Run into a process exit
// code. Launch failures keep their error; a workload that ran and exited,
// however badly, is not an error here.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if c := exitErr.ExitCode(); c >= 0 && c <= 255 {
			return c, nil
		}
		return 1, nil
	}
	return 1, err
}
