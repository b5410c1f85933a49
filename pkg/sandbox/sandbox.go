package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	execDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aula",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Duration of sandboxed code executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	execTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aula",
		Subsystem: "sandbox",
		Name:      "execution_timeouts_total",
		Help:      "Number of executions stopped at the timeout boundary",
	}, []string{"backend"})

	execFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aula",
		Subsystem: "sandbox",
		Name:      "execution_failures_total",
		Help:      "Number of executions that ended in an error",
	}, []string{"backend"})
)

// TestCase accompanies a code submission. The sandbox itself does not assert
// on expected output; graders do.
type TestCase struct {
	Input    string
	Expected string
}

// Request describes one code execution.
type Request struct {
	Code      string
	Language  string
	TestCases []TestCase
}

// Result is the structured outcome of a sandboxed run. A run is successful
// exactly when the process exited zero and no sandbox-level error occurred.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Error    string `json:"error,omitempty"`
}

// Success reports whether the execution completed cleanly.
func (r Result) Success() bool {
	return r.ExitCode == 0 && r.Error == ""
}

// Executor runs untrusted student code. Implementations never return a Go
// error: every failure mode is folded into the Result. Executors hold no
// shared state and are safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, req Request) Result
}

// ProcessConfig tunes the child-process executor.
type ProcessConfig struct {
	// Timeout is the wall-clock budget per run.
	Timeout time.Duration
	// Interpreter overrides the python binary. Tests use it to substitute a
	// shell.
	Interpreter string
	// WorkspaceRoot is where single-use temp dirs are created.
	WorkspaceRoot string
	Logger        zerolog.Logger
}

// ProcessExecutor runs submissions as a plain child process with stdout and
// stderr captured. Only python is supported.
type ProcessExecutor struct {
	timeout     time.Duration
	interpreter string
	root        string
	logger      zerolog.Logger
}

// NewProcessExecutor constructs the default executor.
func NewProcessExecutor(cfg ProcessConfig) *ProcessExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &ProcessExecutor{
		timeout:     cfg.Timeout,
		interpreter: cfg.Interpreter,
		root:        cfg.WorkspaceRoot,
		logger:      logger.With().Str("component", "process_executor").Logger(),
	}
}

// Execute writes the code into a single-use temp dir, runs it, and returns a
// structured result. The temp dir is removed on every exit path.
func (e *ProcessExecutor) Execute(parent context.Context, req Request) Result {
	if strings.ToLower(strings.TrimSpace(req.Language)) != "python" {
		return Result{
			ExitCode: 1,
			Stderr:   "Only Python is supported by the process executor",
			Error:    "Unsupported Language",
		}
	}

	workspace, err := os.MkdirTemp(e.root, "run-")
	if err != nil {
		execFailures.WithLabelValues("process").Inc()
		return Result{ExitCode: 1, Stderr: err.Error(), Error: err.Error()}
	}
	defer os.RemoveAll(workspace)

	source := filepath.Join(workspace, "main.py")
	if err := os.WriteFile(source, []byte(req.Code), 0600); err != nil {
		execFailures.WithLabelValues("process").Inc()
		return Result{ExitCode: 1, Stderr: err.Error(), Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.interpreter, "main.py")
	cmd.Dir = workspace
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Student code may spawn its own children. Run the interpreter in a fresh
	// process group and kill the whole group at the deadline; WaitDelay stops
	// the run from hanging on pipes a surviving grandchild still holds.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return err
		}
		return os.ErrProcessDone
	}
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	execDuration.WithLabelValues("process").Observe(time.Since(start).Seconds())

	if ctx.Err() == context.DeadlineExceeded {
		execTimeouts.WithLabelValues("process").Inc()
		return Result{
			ExitCode: 1,
			Stdout:   stdout.String(),
			Stderr:   "Timeout",
			Error:    "Execution Timed Out",
		}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// The program ran and exited non-zero: that is a student error,
			// not a sandbox error.
			return Result{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
		}

		execFailures.WithLabelValues("process").Inc()
		return Result{ExitCode: 1, Stderr: runErr.Error(), Error: runErr.Error()}
	}

	return Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
}
