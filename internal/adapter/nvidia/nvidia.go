// Package nvidia probes the host GPU driver state.
package nvidia

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gridup/internal/adapter/run"
)

// procDriverVersion exists only while the kernel module is loaded, which
// makes it the loaded/installed discriminator.
const procDriverVersion = "/proc/driver/nvidia/version"

type Prober struct {
	runner run.Runner
}

func New(r run.Runner) *Prober {
	if r == nil {
		r = run.Local{}
	}
	return &Prober{runner: r}
}

func (p *Prober) DriverVersion(ctx context.Context) (string, error) {
	out, err := p.runner.Run(ctx, "nvidia-smi", "--query-gpu=driver_version", "--format=csv,noheader")
	if err != nil {
		return "", fmt.Errorf("query driver version: %w", err)
	}
	version, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	if version == "" {
		return "", fmt.Errorf("driver reported no version")
	}
	return version, nil
}

func (p *Prober) ModuleLoaded(_ context.Context) (bool, error) {
	_, err := os.Stat(procDriverVersion)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe kernel module: %w", err)
}

func (p *Prober) DriverInstalled(ctx context.Context) (bool, error) {
	// modinfo finds the module on disk whether or not it is loaded.
	if _, err := p.runner.Run(ctx, "modinfo", "nvidia"); err != nil {
		return false, nil
	}
	return true, nil
}
