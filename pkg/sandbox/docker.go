package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
)

type dockerLanguage struct {
	Image    string
	FileName string
	Command  []string
}

// DockerConfig groups docker executor configuration values.
type DockerConfig struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkspaceRoot string
	Logger        zerolog.Logger
}

// DockerExecutor runs submissions inside throwaway containers with the
// network disabled. Selected over the process executor by configuration when
// stronger isolation is wanted.
type DockerExecutor struct {
	client    *client.Client
	cfg       DockerConfig
	logger    zerolog.Logger
	languages map[string]dockerLanguage
}

// NewDockerExecutor constructs a Docker backed executor.
func NewDockerExecutor(cfg DockerConfig) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		logger: logger.With().Str("component", "docker_executor").Logger(),
		languages: map[string]dockerLanguage{
			"python": {
				Image:    "python:3.11-alpine",
				FileName: "main.py",
				Command:  []string{"python", "main.py"},
			},
			"javascript": {
				Image:    "node:20-alpine",
				FileName: "main.js",
				Command:  []string{"node", "main.js"},
			},
		},
	}, nil
}

// Execute runs the submission in a single-use container. All failure modes
// fold into the Result; the container and workspace are removed on every path.
func (e *DockerExecutor) Execute(parent context.Context, req Request) Result {
	lang, ok := e.languages[strings.ToLower(strings.TrimSpace(req.Language))]
	if !ok {
		return Result{
			ExitCode: 1,
			Stderr:   "Language not supported by the docker executor",
			Error:    "Unsupported Language",
		}
	}

	workspace, err := os.MkdirTemp(e.cfg.WorkspaceRoot, "run-")
	if err != nil {
		execFailures.WithLabelValues("docker").Inc()
		return Result{ExitCode: 1, Stderr: err.Error(), Error: err.Error()}
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, lang.FileName), []byte(req.Code), 0600); err != nil {
		execFailures.WithLabelValues("docker").Inc()
		return Result{ExitCode: 1, Stderr: err.Error(), Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(parent, e.cfg.Timeout)
	defer cancel()

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    e.cfg.MemoryLimitMB * 1024 * 1024,
			CPUShares: e.cfg.CPUShares,
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workspace,
			Target: "/workspace",
		}},
	}

	containerCfg := &container.Config{
		Image:           lang.Image,
		Cmd:             lang.Command,
		WorkingDir:      "/workspace",
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}

	start := time.Now()

	resp, err := e.client.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		execFailures.WithLabelValues("docker").Inc()
		return Result{ExitCode: 1, Stderr: err.Error(), Error: err.Error()}
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancelRemove := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelRemove()
		if err := e.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		execFailures.WithLabelValues("docker").Inc()
		return Result{ExitCode: 1, Stderr: err.Error(), Error: err.Error()}
	}

	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	result := Result{}
	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	execDuration.WithLabelValues("docker").Observe(time.Since(start).Seconds())

	timedOut := errors.Is(waitErr, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded
	if timedOut {
		execTimeouts.WithLabelValues("docker").Inc()
		killCtx, cancelKill := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelKill()
		if err := e.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
		}
	} else if waitErr != nil {
		execFailures.WithLabelValues("docker").Inc()
		return Result{ExitCode: 1, Stderr: waitErr.Error(), Error: waitErr.Error()}
	}

	logReader, err := e.client.ContainerLogs(parent, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err == nil {
		defer logReader.Close()
		stdout, stderr, splitErr := splitDockerLogs(logReader)
		if splitErr != nil {
			e.logger.Error().Err(splitErr).Str("container_id", containerID).Msg("failed to read container logs")
		} else {
			result.Stdout = stdout
			result.Stderr = stderr
		}
	}

	if timedOut {
		result.ExitCode = 1
		result.Stderr = "Timeout"
		result.Error = "Execution Timed Out"
	}

	return result
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the executor's underlying client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
