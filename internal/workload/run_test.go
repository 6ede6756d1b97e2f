package workload

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRunPropagatesExitCode(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))

	status, err := r.Run("sh", []string{"-c", "exit 0"})
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	status, err = r.Run("sh", []string{"-c", "exit 7"})
	require.NoError(t, err)
	assert.Equal(t, 7, status)
}

func TestRunLaunchFailure(t *testing.T) {
	r := NewRunner(zaptest.NewLogger(t))

	status, err := r.Run("/no/such/binary", nil)
	require.Error(t, err)
	assert.Equal(t, 1, status)
}

func TestExitStatus(t *testing.T) {
	status, err := exitStatus(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	// A real ExitError carrying a normal exit code.
	runErr := exec.Command("sh", "-c", "exit 42").Run()
	status, err = exitStatus(runErr)
	require.NoError(t, err)
	assert.Equal(t, 42, status)

	// Anything that is not an ExitError is a launch failure.
	status, err = exitStatus(errors.New("fork failed"))
	require.Error(t, err)
	assert.Equal(t, 1, status)
}

func TestExitStatusSignalCollapsesToOne(t *testing.T) {
	// A process that kills itself produces an ExitError with no
	// representable exit code.
	runErr := exec.Command("sh", "-c", "kill -TERM $$").Run()
	require.Error(t, runErr)

	status, err := exitStatus(runErr)
	require.NoError(t, err)
	assert.Equal(t, 1, status)
}
