// Package apt installs Debian packages for the provisioner.
package apt

import (
	"context"
	"fmt"

	"gridup/internal/adapter/run"
)

// Manager drives apt-get. Installs are idempotent: apt treats an already
// installed package as a no-op.
type Manager struct {
	runner  run.Runner
	updated bool
}

func New(r run.Runner) *Manager {
	if r == nil {
		r = run.Local{}
	}
	return &Manager{runner: r}
}

func (m *Manager) Install(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}
	if !m.updated {
		if _, err := m.runner.Run(ctx, "apt-get", "update", "-q"); err != nil {
			return fmt.Errorf("refresh package index: %w", err)
		}
		m.updated = true
	}
	args := append([]string{"install", "-y", "-q", "--no-install-recommends"}, packages...)
	if _, err := m.runner.Run(ctx, "apt-get", args...); err != nil {
		return fmt.Errorf("install packages: %w", err)
	}
	return nil
}
