// Package docker adapts the Docker daemon to the container-engine
// collaborator: liveness, image prefetch, and compose bring-up.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"gridup/internal/adapter/run"
)

const readyTimeout = 2 * time.Minute

// Engine talks to the daemon over its API for image operations and
// shells out to the compose plugin for stack bring-up, which owns its
// own project-level idempotence.
type Engine struct {
	cli    client.APIClient
	runner run.Runner
}

// New connects to the daemon from the environment. The daemon may not be
// running yet; connection errors surface from Ready, not here.
func New(runner run.Runner) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if runner == nil {
		runner = run.Local{}
	}
	return &Engine{cli: cli, runner: runner}, nil
}

// NewWithClient injects an API client, for tests.
func NewWithClient(cli client.APIClient, runner run.Runner) *Engine {
	return &Engine{cli: cli, runner: runner}
}

// Ready blocks until the daemon answers a ping, bounded by readyTimeout.
// Right after package install the daemon can take a while to come up.
func (e *Engine) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if _, err := e.cli.Ping(ctx); err == nil {
			return nil
		} else if !client.IsErrConnectionFailed(err) {
			return fmt.Errorf("connect to container engine: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("container engine did not come up: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Pull fetches an image unless it is already present locally.
func (e *Engine) Pull(ctx context.Context, img string) error {
	if _, err := e.cli.ImageInspect(ctx, img); err == nil {
		slog.Debug("Image already present.", "image", img)
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", img, err)
	}

	slog.Info("Pulling image.", "image", img)
	resp, err := e.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer resp.Close()
	if _, err := io.Copy(io.Discard, resp); err != nil {
		return fmt.Errorf("pull image %s: read response: %w", img, err)
	}
	return nil
}

// ComposeUp brings the compose file's services up detached. Compose
// reconciles against running state, so re-running is a no-op.
func (e *Engine) ComposeUp(ctx context.Context, composePath string) error {
	if _, err := e.runner.Run(ctx, "docker", "compose", "-f", composePath, "up", "-d", "--wait"); err != nil {
		return fmt.Errorf("bring up compose services: %w", err)
	}
	return nil
}
