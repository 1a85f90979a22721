// Package preflight gates a provisioning run on host prerequisites:
// supported OS and architecture, a loadable GPU driver, and a sane clock.
// Everything here runs before the first side-effecting phase.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"gridup"
)

const (
	defaultNTPPool      = "pool.ntp.org"
	defaultNTPThreshold = 500 * time.Millisecond
)

// GPUProber inspects the host's GPU driver state.
// Production shells out to nvidia-smi and modprobe; tests use a fake.
type GPUProber interface {
	// DriverVersion returns the loaded driver's version string, or an
	// error when no driver responds.
	DriverVersion(ctx context.Context) (string, error)
	// ModuleLoaded reports whether the kernel module is currently loaded.
	ModuleLoaded(ctx context.Context) (bool, error)
	// DriverInstalled reports whether a driver package is present on disk,
	// loaded or not.
	DriverInstalled(ctx context.Context) (bool, error)
}

// Validator checks host prerequisites. The zero value is not usable;
// construct with New.
type Validator struct {
	prober GPUProber

	ntpPool      string
	ntpThreshold time.Duration
	ntpOffset    func(pool string) (time.Duration, error)

	goos   string
	goarch string
}

// Option configures a Validator.
type Option func(*Validator)

// WithNTPOffset replaces the NTP offset query, for tests.
func WithNTPOffset(fn func(pool string) (time.Duration, error)) Option {
	return func(v *Validator) { v.ntpOffset = fn }
}

// WithPlatform overrides the detected OS/arch, for tests.
func WithPlatform(goos, goarch string) Option {
	return func(v *Validator) { v.goos, v.goarch = goos, goarch }
}

// New creates a Validator probing GPU state through prober.
func New(prober GPUProber, opts ...Option) *Validator {
	v := &Validator{
		prober:       prober,
		ntpPool:      defaultNTPPool,
		ntpThreshold: defaultNTPThreshold,
		ntpOffset:    ntpOffset,
		goos:         runtime.GOOS,
		goarch:       runtime.GOARCH,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run validates every prerequisite and returns the detected GPU driver
// version (empty when hardware setup is skipped). A driver that is
// installed but not loaded returns ErrRebootRequired: the operator must
// reboot and re-invoke the run, which is safe because every phase is
// idempotent.
func (v *Validator) Run(ctx context.Context, cfg gridup.Config) (string, error) {
	if v.goos != "linux" {
		return "", fmt.Errorf("%w: unsupported OS %q, only linux hosts can be provisioned", gridup.ErrValidation, v.goos)
	}
	switch v.goarch {
	case "amd64", "arm64":
	default:
		return "", fmt.Errorf("%w: unsupported architecture %q", gridup.ErrValidation, v.goarch)
	}
	if release := kernelRelease(); release != "" {
		slog.Debug("host kernel", "release", release)
	}

	v.checkClock()

	if cfg.SkipHardware {
		return "", nil
	}
	return v.checkDriver(ctx)
}

func (v *Validator) checkDriver(ctx context.Context) (string, error) {
	loaded, err := v.prober.ModuleLoaded(ctx)
	if err != nil {
		return "", fmt.Errorf("probe GPU kernel module: %w", err)
	}
	if loaded {
		version, err := v.prober.DriverVersion(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: GPU module loaded but driver not responding: %v", gridup.ErrPrerequisite, err)
		}
		return version, nil
	}

	installed, err := v.prober.DriverInstalled(ctx)
	if err != nil {
		return "", fmt.Errorf("probe GPU driver package: %w", err)
	}
	if installed {
		return "", fmt.Errorf("%w: GPU driver is installed but the kernel module is not loaded; reboot this host and re-run the same command", gridup.ErrRebootRequired)
	}
	return "", fmt.Errorf("%w: no GPU driver found; install the vendor driver first or pass --skip-hardware", gridup.ErrPrerequisite)
}

// checkClock warns on clock skew. Cluster auth tokens are time-sensitive,
// but an unreachable NTP pool must not fail an otherwise valid run.
func (v *Validator) checkClock() {
	offset, err := v.ntpOffset(v.ntpPool)
	if err != nil {
		slog.Warn("NTP check failed, skipping clock validation", "pool", v.ntpPool, "err", err)
		return
	}
	if offset < 0 {
		offset = -offset
	}
	if offset > v.ntpThreshold {
		slog.Warn("host clock is skewed; cluster authentication may misbehave",
			"offset", offset, "threshold", v.ntpThreshold)
	}
}
