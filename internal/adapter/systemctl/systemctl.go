// Package systemctl drives systemd on the host.
package systemctl

import (
	"context"
	"fmt"

	"gridup/internal/adapter/run"
)

type Supervisor struct {
	runner run.Runner
}

func New(r run.Runner) *Supervisor {
	if r == nil {
		r = run.Local{}
	}
	return &Supervisor{runner: r}
}

func (s *Supervisor) Reload(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("reload supervisor: %w", err)
	}
	return nil
}

func (s *Supervisor) Enable(ctx context.Context, unit string) error {
	if _, err := s.runner.Run(ctx, "systemctl", "enable", unit); err != nil {
		return fmt.Errorf("enable %s: %w", unit, err)
	}
	return nil
}

func (s *Supervisor) Start(ctx context.Context, unit string) error {
	if _, err := s.runner.Run(ctx, "systemctl", "start", unit); err != nil {
		return fmt.Errorf("start %s: %w", unit, err)
	}
	return nil
}

// Restart restarts a unit now; used by the file-sharing adapter when an
// export set changes.
func (s *Supervisor) Restart(ctx context.Context, unit string) error {
	if _, err := s.runner.Run(ctx, "systemctl", "restart", unit); err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	return nil
}
