// Package gridcli drives the installed grid-manager binary for data-plane
// state that only the control plane itself can initialize.
package gridcli

import (
	"context"
	"fmt"
	"path/filepath"

	"gridup"
	"gridup/internal/adapter/run"
	"gridup/internal/artifact"
)

type ControlPlane struct {
	runner run.Runner
	binary string
	config string
}

// New binds the adapter to the install layout so readiness probes can run
// before any richer context exists.
func New(r run.Runner, installPath string) *ControlPlane {
	if r == nil {
		r = run.Local{}
	}
	return &ControlPlane{
		runner: r,
		binary: filepath.Join(installPath, "bin", "grid-manager"),
		config: filepath.Join(artifact.EtcDir(installPath), artifact.ManagerArtifact),
	}
}

// Ready asks the manager whether it can reach its state services. Fails
// until the half-stack has finished starting; the caller retries.
func (c *ControlPlane) Ready(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, c.binary, "status", "--config", c.config); err != nil {
		return fmt.Errorf("control plane not ready: %w", err)
	}
	return nil
}

// InitState performs the one-time bootstrapping the manager does on an
// empty state database: default domain and group, plus the shared
// storage volume when storage is provisioned. The manager itself skips
// work that is already done, so re-running is safe.
func (c *ControlPlane) InitState(ctx context.Context, cfg gridup.Config) error {
	if _, err := c.runner.Run(ctx, c.binary, "init", "--config", c.config); err != nil {
		return fmt.Errorf("initialize cluster state: %w", err)
	}
	if cfg.Storage.Enabled {
		if _, err := c.runner.Run(ctx, c.binary, "volume", "register",
			"--config", c.config, "--name", "shared", "--path", cfg.Storage.ExportPath); err != nil {
			return fmt.Errorf("register shared volume: %w", err)
		}
	}
	return nil
}
