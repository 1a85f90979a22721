// Package supervise generates process-supervision unit definitions and
// registers them with the host supervisor so the provisioned services
// survive reboots and crashes.
package supervise

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gridup"
)

const defaultUnitDir = "/etc/systemd/system"

// Supervisor drives the host process supervisor (systemctl in production).
type Supervisor interface {
	// Reload makes the supervisor re-read unit definitions.
	Reload(ctx context.Context) error
	// Enable marks a unit for start at boot. Enabling an enabled unit is a
	// no-op.
	Enable(ctx context.Context, unit string) error
	// Start starts a unit now. Starting a running unit is a no-op.
	Start(ctx context.Context, unit string) error
}

// Registrar writes unit files and activates them idempotently.
type Registrar struct {
	sup     Supervisor
	unitDir string
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithUnitDir overrides the unit file directory, for tests.
func WithUnitDir(dir string) Option {
	return func(r *Registrar) { r.unitDir = dir }
}

// New creates a Registrar writing into the supervisor's unit directory.
func New(sup Supervisor, opts ...Option) *Registrar {
	r := &Registrar{sup: sup, unitDir: defaultUnitDir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register writes this role's unit files and enables and starts each one.
// Unit files are only rewritten when their content changed, and the
// supervisor only reloads when at least one file was written — rerunning a
// completed provisioning touches nothing.
func (r *Registrar) Register(ctx context.Context, cfg gridup.Config) error {
	units := Units(cfg)

	wrote := false
	for _, u := range units {
		changed, err := r.writeUnit(u)
		if err != nil {
			return err
		}
		wrote = wrote || changed
	}

	if wrote {
		if err := r.sup.Reload(ctx); err != nil {
			return fmt.Errorf("reload supervisor: %w", err)
		}
	}

	for _, u := range units {
		if err := r.sup.Enable(ctx, u.Name); err != nil {
			return fmt.Errorf("enable %s: %w", u.Name, err)
		}
		if err := r.sup.Start(ctx, u.Name); err != nil {
			return fmt.Errorf("start %s: %w", u.Name, err)
		}
		slog.Info("Service registered.", "unit", u.Name)
	}
	return nil
}

func (r *Registrar) writeUnit(u Unit) (bool, error) {
	path := filepath.Join(r.unitDir, u.Name)
	data := u.Render()

	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}

	if err := os.MkdirAll(r.unitDir, 0o755); err != nil {
		return false, fmt.Errorf("create unit dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write unit %s: %w", u.Name, err)
	}
	return true, nil
}
