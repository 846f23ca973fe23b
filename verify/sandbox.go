package verify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	defaultSandboxImage = "alpine:3"
	sandboxMemoryLimit  = 512 * 1024 * 1024
	sandboxCPULimit     = 1e9 // one CPU in nano-cpus
)

// Sandbox runs acceptance scripts inside a Docker container instead of on
// the host. Criteria come from remote peers, so the container gets the work
// dir bind-mounted, one CPU, capped memory, and no network.
type Sandbox struct {
	client    client.APIClient
	available bool
	image     string
}

// NewSandbox connects to the Docker daemon. If the daemon is unreachable the
// sandbox is still returned but not available; Run fails with an explicit
// error and callers fall back to another tier.
func NewSandbox(img string) *Sandbox {
	s := &Sandbox{image: img}
	if s.image == "" {
		s.image = defaultSandboxImage
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return s
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return s
	}
	s.client = cli
	s.available = true
	return s
}

// Available reports whether the Docker daemon was reachable at startup.
func (s *Sandbox) Available() bool {
	return s.available
}

// Close releases the Docker client.
func (s *Sandbox) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Run stages the criteria script in workDir and executes it inside a fresh
// container with workDir mounted at /workspace. Same verdict contract as
// RunScript.
func (s *Sandbox) Run(ctx context.Context, workDir, criteria string) (*Report, error) {
	if !s.available {
		return nil, fmt.Errorf("sandbox: docker not available")
	}

	scriptPath := filepath.Join(workDir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(criteria), 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: write acceptance script: %w", err)
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve work dir: %w", err)
	}

	if err := s.ensureImage(ctx); err != nil {
		return nil, fmt.Errorf("sandbox: pull image: %w", err)
	}

	created, err := s.client.ContainerCreate(ctx,
		&container.Config{
			Image:      s.image,
			Cmd:        []string{"sh", scriptName},
			WorkingDir: "/workspace",
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: absWorkDir,
				Target: "/workspace",
			}},
			Resources: container.Resources{
				Memory:   sandboxMemoryLimit,
				NanoCPUs: sandboxCPULimit,
			},
			NetworkMode: "none",
		},
		nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("sandbox: create container: %w", err)
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.client.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true})
	}()

	if err := s.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("sandbox: start container: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	var exitCode int64
	statusCh, errCh := s.client.ContainerWait(waitCtx, created.ID, container.WaitConditionNotRunning)
	timedOut := false
	select {
	case status := <-statusCh:
		exitCode = status.StatusCode
	case err := <-errCh:
		if waitCtx.Err() != nil {
			timedOut = true
		} else {
			return nil, fmt.Errorf("sandbox: wait: %w", err)
		}
	}

	stdout, stderr := s.collectLogs(created.ID)
	report := &Report{Stdout: stdout, Stderr: stderr}
	switch {
	case timedOut:
		report.Outcome = Failed
		report.Summary = truncate(fmt.Sprintf("Acceptance test timed out after %s", scriptTimeout), maxSummaryLen)
	case exitCode == 0:
		report.Outcome = Passed
		report.Summary = "All acceptance tests passed."
	default:
		detail := stderr
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", exitCode)
		}
		report.Outcome = Failed
		report.Summary = truncate("Acceptance test failed: "+detail, maxSummaryLen)
	}
	return report, nil
}

func (s *Sandbox) collectLogs(containerID string) (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logs, err := s.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", ""
	}
	defer func() { _ = logs.Close() }()
	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, logs)
	return stdout.String(), stderr.String()
}

func (s *Sandbox) ensureImage(ctx context.Context) error {
	if _, err := s.client.ImageInspect(ctx, s.image); err == nil {
		return nil
	}
	reader, err := s.client.ImagePull(ctx, s.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()
	_, err = io.Copy(io.Discard, reader)
	return err
}
