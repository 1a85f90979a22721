// Package provision sequences a full node bring-up. Phases run strictly in
// order on a single control thread; the first failure aborts the whole run
// with no rollback. Every phase is idempotent, so re-invoking the same
// command from the start is the recovery path — some failures (a GPU
// driver that needs a reboot to load) cannot be fixed within one run at
// all.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gridup"
	"gridup/internal/artifact"
	"gridup/internal/cudaver"
	"gridup/internal/secrets"
)

const (
	// Control-plane readiness after first start: the state database has to
	// finish initializing before InitState can run.
	defaultReadyAttempts = 20
	defaultReadyInterval = 3 * time.Second
)

// Base OS packages every node needs before anything else.
var basePackages = []string{"docker.io", "docker-compose-v2", "curl"}

// Orchestrator drives a provisioning run. Collaborators are injected;
// there is no global state. Fields below the collaborators hold state
// resolved by earlier phases for later ones.
type Orchestrator struct {
	Config       gridup.Config
	Preflight    Validator
	Topology     TopologyConfigurator
	Storage      StorageConfigurator
	Packages     PackageManager
	Engine       ContainerEngine
	ControlPlane ControlPlane
	Supervision  UnitRegistrar
	Artifacts    ArtifactWriter

	// NewSecrets defaults to secrets.Generate; injectable for tests.
	NewSecrets func() (secrets.Bundle, error)

	ReadyAttempts int
	ReadyInterval time.Duration
	Sleep         func(time.Duration)

	driver     string
	resolution cudaver.Resolution
	identity   gridup.NodeIdentity
	bundle     secrets.Bundle
}

// Plan computes the phase sequence for the configuration without applying
// anything. This is also the dry-run output.
func (o *Orchestrator) Plan() []Step {
	cfg := o.Config
	coordinator := cfg.Role == gridup.RoleCoordinator

	skipUnless := func(cond bool, reason string) (bool, string) {
		if cond {
			return false, ""
		}
		return true, reason
	}

	steps := make([]Step, 0, 10)
	add := func(p Phase, skip bool, reason string) {
		steps = append(steps, Step{Phase: p, Skip: skip, SkipReason: reason})
	}

	add(PhaseValidate, false, "")
	add(PhaseNetworkSetup, false, "")

	skip, reason := skipUnless(!cfg.SkipHardware, "hardware setup disabled")
	add(PhaseHardwareSetup, skip, reason)

	add(PhaseBaseInstall, false, "")
	add(PhaseRoleSetup, false, "")
	add(PhaseConfigGeneration, false, "")

	skip, reason = skipUnless(coordinator && cfg.Storage.Enabled, "coordinator-only, storage enabled")
	add(PhaseStorageInit, skip, reason)

	skip, reason = skipUnless(coordinator, "coordinator-only")
	add(PhaseStateInit, skip, reason)

	skip, reason = skipUnless(!cfg.SkipSupervision, "supervision disabled")
	add(PhaseSupervision, skip, reason)

	add(PhaseFinalize, false, "")
	return steps
}

// Run executes the plan to completion or first failure. The returned error
// wraps the failing phase name; callers check ErrRebootRequired to print
// operator instructions instead of a plain failure.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.NewSecrets == nil {
		o.NewSecrets = secrets.Generate
	}
	if o.ReadyAttempts == 0 {
		o.ReadyAttempts = defaultReadyAttempts
	}
	if o.ReadyInterval == 0 {
		o.ReadyInterval = defaultReadyInterval
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}

	run := map[Phase]func(context.Context) error{
		PhaseValidate:         o.validate,
		PhaseNetworkSetup:     o.networkSetup,
		PhaseHardwareSetup:    o.hardwareSetup,
		PhaseBaseInstall:      o.baseInstall,
		PhaseRoleSetup:        o.roleSetup,
		PhaseConfigGeneration: o.configGeneration,
		PhaseStorageInit:      o.storageInit,
		PhaseStateInit:        o.stateInit,
		PhaseSupervision:      o.supervision,
		PhaseFinalize:         o.finalize,
	}

	for _, step := range o.Plan() {
		if step.Skip {
			slog.Info("Phase skipped.", "phase", step.Phase, "reason", step.SkipReason)
			continue
		}
		slog.Info("Phase starting.", "phase", step.Phase)
		if err := run[step.Phase](ctx); err != nil {
			if errors.Is(err, gridup.ErrRebootRequired) {
				return fmt.Errorf("phase %s: %w", step.Phase, err)
			}
			return fmt.Errorf("phase %s failed: %w", step.Phase, err)
		}
	}
	return nil
}

func (o *Orchestrator) validate(ctx context.Context) error {
	if err := o.Config.Validate(); err != nil {
		return err
	}
	driver, err := o.Preflight.Run(ctx, o.Config)
	if err != nil {
		return err
	}
	o.driver = driver
	return nil
}

func (o *Orchestrator) networkSetup(ctx context.Context) error {
	id, err := o.Topology.Establish(ctx, o.Config)
	if err != nil {
		return err
	}
	o.identity = id
	return nil
}

func (o *Orchestrator) hardwareSetup(ctx context.Context) error {
	res, err := cudaver.Resolve(o.driver)
	if err != nil {
		return err
	}
	if res.Degraded {
		slog.Warn("GPU driver predates every supported toolkit; falling back to the oldest channel.",
			"driver", res.Driver, "toolkit", res.Toolkit)
	}
	o.resolution = res

	pkgs := []string{"nvidia-container-toolkit", toolkitPackage(res.Toolkit)}
	if err := o.Packages.Install(ctx, pkgs...); err != nil {
		return fmt.Errorf("install GPU toolkit: %w", err)
	}
	slog.Info("GPU toolkit selected.", "driver", res.Driver, "toolkit", res.Toolkit)
	return nil
}

func (o *Orchestrator) baseInstall(ctx context.Context) error {
	if err := o.Packages.Install(ctx, basePackages...); err != nil {
		return fmt.Errorf("install base packages: %w", err)
	}
	if err := o.Engine.Ready(ctx); err != nil {
		return fmt.Errorf("container engine not ready: %w", err)
	}

	if o.Config.SkipPrefetch {
		return nil
	}
	for _, img := range o.prefetchImages() {
		if err := o.Engine.Pull(ctx, img); err != nil {
			// Pre-fetch is an optimization; startup pulls again anyway.
			slog.Warn("Image pre-fetch failed; services will pull at start.", "image", img, "err", err)
		}
	}
	return nil
}

func (o *Orchestrator) prefetchImages() []string {
	if o.Config.Role == gridup.RoleCoordinator {
		return []string{artifact.StateDBImage, artifact.CacheImage}
	}
	return []string{computeRuntimeImage(o.resolution.Toolkit)}
}

func (o *Orchestrator) roleSetup(ctx context.Context) error {
	for _, sub := range []string{"bin", "etc", "var"} {
		if err := os.MkdirAll(filepath.Join(o.Config.InstallPath, sub), 0o755); err != nil {
			return fmt.Errorf("create install dir: %w", err)
		}
	}

	pkg := "grid-agent"
	if o.Config.Role == gridup.RoleCoordinator {
		pkg = "grid-manager"
	}
	if err := o.Packages.Install(ctx, pkg); err != nil {
		return fmt.Errorf("install %s: %w", pkg, err)
	}

	// Workers consume shared storage as part of their role setup; the
	// coordinator-side export has its own later phase.
	if o.Config.Role == gridup.RoleWorker && o.Config.Storage.Enabled {
		if err := o.Storage.Provision(ctx, o.Config, o.identity); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) configGeneration(ctx context.Context) error {
	bundle, err := o.NewSecrets()
	if err != nil {
		return fmt.Errorf("generate secrets: %w", err)
	}
	o.bundle = bundle

	arts, err := o.Artifacts.Render(ctx, artifact.Inputs{
		Config:   o.Config,
		Identity: o.identity,
		Secrets:  o.bundle,
		Toolkit:  o.resolution.Toolkit,
		Degraded: o.resolution.Degraded,
	})
	if err != nil {
		return err
	}
	return o.Artifacts.Write(artifact.EtcDir(o.Config.InstallPath), arts)
}

func (o *Orchestrator) storageInit(ctx context.Context) error {
	return o.Storage.Provision(ctx, o.Config, o.identity)
}

func (o *Orchestrator) stateInit(ctx context.Context) error {
	composePath := filepath.Join(artifact.EtcDir(o.Config.InstallPath), artifact.ComposeArtifact)
	if err := o.Engine.ComposeUp(ctx, composePath); err != nil {
		return fmt.Errorf("start state services: %w", err)
	}
	if err := o.awaitControlPlane(ctx); err != nil {
		return err
	}
	if err := o.ControlPlane.InitState(ctx, o.Config); err != nil {
		return fmt.Errorf("initialize cluster state: %w", err)
	}
	return nil
}

// awaitControlPlane polls readiness with a fixed attempt count and
// interval; the state database needs time to initialize on first boot.
func (o *Orchestrator) awaitControlPlane(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= o.ReadyAttempts; attempt++ {
		lastErr = o.ControlPlane.Ready(ctx)
		if lastErr == nil {
			return nil
		}
		slog.Debug("control plane not ready yet", "attempt", attempt, "max", o.ReadyAttempts)
		if attempt < o.ReadyAttempts {
			o.Sleep(o.ReadyInterval)
		}
	}
	return fmt.Errorf("%w: control plane not ready after %d attempts: %v",
		gridup.ErrNetwork, o.ReadyAttempts, lastErr)
}

func (o *Orchestrator) supervision(ctx context.Context) error {
	return o.Supervision.Register(ctx, o.Config)
}

func (o *Orchestrator) finalize(context.Context) error {
	attrs := []any{
		"role", o.Config.Role,
		"addr", o.identity.EffectiveAddr(),
	}
	if o.resolution.Toolkit != "" {
		attrs = append(attrs, "toolkit", o.resolution.Toolkit)
	}
	if o.Config.Role == gridup.RoleCoordinator {
		attrs = append(attrs,
			"env_script", filepath.Join(artifact.EtcDir(o.Config.InstallPath), artifact.EnvScriptArtifact))
	}
	slog.Info("Provisioning complete.", attrs...)
	return nil
}

func toolkitPackage(toolkit string) string {
	if toolkit == "" {
		return ""
	}
	out := make([]byte, 0, len(toolkit))
	for i := 0; i < len(toolkit); i++ {
		c := toolkit[i]
		if c == '.' {
			c = '-'
		}
		out = append(out, c)
	}
	return "cuda-runtime-" + string(out)
}

func computeRuntimeImage(toolkit string) string {
	if toolkit == "" {
		return "gridup/compute-runtime:cpu"
	}
	return "gridup/compute-runtime:cuda-" + toolkit
}
