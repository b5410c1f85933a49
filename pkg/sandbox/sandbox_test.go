package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func shellExecutor(t *testing.T, timeout time.Duration) *ProcessExecutor {
	t.Helper()
	return NewProcessExecutor(ProcessConfig{
		Timeout:       timeout,
		Interpreter:   "/bin/sh",
		WorkspaceRoot: t.TempDir(),
		Logger:        zerolog.Nop(),
	})
}

func TestExecuteRejectsUnsupportedLanguage(t *testing.T) {
	executor := shellExecutor(t, time.Second)

	result := executor.Execute(context.Background(), Request{Code: "puts 'hi'", Language: "ruby"})

	require.Equal(t, 1, result.ExitCode)
	require.Equal(t, "Unsupported Language", result.Error)
	require.False(t, result.Success())
}

func TestExecuteCapturesStdout(t *testing.T) {
	executor := shellExecutor(t, 2*time.Second)

	result := executor.Execute(context.Background(), Request{Code: "echo hello", Language: "python"})

	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, "hello\n", result.Stdout)
	require.Empty(t, result.Error)
	require.True(t, result.Success())
}

func TestExecuteReportsNonZeroExitWithoutSandboxError(t *testing.T) {
	executor := shellExecutor(t, 2*time.Second)

	result := executor.Execute(context.Background(), Request{
		Code:     "echo oops >&2\nexit 3",
		Language: "python",
	})

	require.Equal(t, 3, result.ExitCode)
	require.Equal(t, "oops\n", result.Stderr)
	// A failing program is a student error, not an executor error.
	require.Empty(t, result.Error)
	require.False(t, result.Success())
}

func TestExecuteTimesOut(t *testing.T) {
	executor := shellExecutor(t, 300*time.Millisecond)

	start := time.Now()
	result := executor.Execute(context.Background(), Request{Code: "sleep 5", Language: "python"})

	require.Less(t, time.Since(start), 3*time.Second)
	require.Equal(t, 1, result.ExitCode)
	require.Equal(t, "Timeout", result.Stderr)
	require.Equal(t, "Execution Timed Out", result.Error)
}

func TestExecuteKillsSpawnedChildren(t *testing.T) {
	executor := shellExecutor(t, 300*time.Millisecond)

	// A background child inherits the stdout pipe; the run must still end at
	// the deadline instead of waiting for the child.
	start := time.Now()
	result := executor.Execute(context.Background(), Request{
		Code:     "sleep 5 &\nsleep 5",
		Language: "python",
	})

	require.Less(t, time.Since(start), 3*time.Second)
	require.Equal(t, "Execution Timed Out", result.Error)
}

func TestResultSuccess(t *testing.T) {
	require.True(t, Result{ExitCode: 0}.Success())
	require.False(t, Result{ExitCode: 1}.Success())
	require.False(t, Result{ExitCode: 0, Error: "boom"}.Success())
}
