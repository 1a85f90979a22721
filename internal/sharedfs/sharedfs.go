// Package sharedfs provisions the shared network filesystem that carries
// cross-node data (datasets, model artifacts, job workspaces). The
// coordinator exports it; every other node mounts it.
package sharedfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gridup"
	"gridup/pkg/netcalc"
)

const (
	// schemaMarker records the on-disk layout version of the export root.
	// It is written exactly once; later runs must never overwrite it, since
	// running services may have data in the old layout.
	schemaMarker  = ".gridup-schema"
	schemaVersion = "1\n"

	// inferredSubnetBits sizes the client network inferred from the local
	// address when no mesh CIDR is available.
	inferredSubnetBits = 24

	defaultProbeAttempts = 10
	defaultProbeInterval = 3 * time.Second
)

// Configurator exports or mounts the shared filesystem depending on role.
type Configurator struct {
	sharer FileSharer
	mounts MountTable

	probeAttempts int
	probeInterval time.Duration
	sleep         func(time.Duration)
}

// Option configures a Configurator.
type Option func(*Configurator)

// WithProbing overrides the export-availability retry budget, for tests.
func WithProbing(attempts int, interval time.Duration) Option {
	return func(c *Configurator) {
		c.probeAttempts = attempts
		c.probeInterval = interval
	}
}

// WithSleep replaces the retry sleep, for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Configurator) { c.sleep = fn }
}

// New creates a Configurator.
func New(sharer FileSharer, mounts MountTable, opts ...Option) *Configurator {
	c := &Configurator{
		sharer:        sharer,
		mounts:        mounts,
		probeAttempts: defaultProbeAttempts,
		probeInterval: defaultProbeInterval,
		sleep:         time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provision sets up shared storage for this node. A coordinator without an
// external endpoint becomes the exporter; everything else mounts from the
// resolved endpoint. No-op when storage is disabled.
func (c *Configurator) Provision(ctx context.Context, cfg gridup.Config, id gridup.NodeIdentity) error {
	if !cfg.Storage.Enabled {
		return nil
	}
	if cfg.Role == gridup.RoleCoordinator && cfg.Storage.Endpoint == "" {
		return c.export(ctx, cfg, id)
	}
	return c.mount(ctx, cfg)
}

func (c *Configurator) export(ctx context.Context, cfg gridup.Config, id gridup.NodeIdentity) error {
	dir := cfg.Storage.ExportPath
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := writeSchemaMarkerOnce(dir); err != nil {
		return err
	}

	clientNet, err := c.clientNetwork(cfg, id)
	if err != nil {
		return err
	}

	if err := c.sharer.InstallServer(ctx); err != nil {
		return fmt.Errorf("install file-sharing server: %w", err)
	}
	if err := c.sharer.RegisterExport(ctx, dir, clientNet); err != nil {
		return fmt.Errorf("register export %s: %w", dir, err)
	}
	if err := c.sharer.RestartServer(ctx); err != nil {
		return fmt.Errorf("restart file-sharing server: %w", err)
	}

	slog.Info("Shared storage exported.", "dir", dir, "clients", clientNet)
	return nil
}

// clientNetwork picks who may mount the export: the overlay CIDR when the
// mesh is active, otherwise the subnet around the node's own address.
func (c *Configurator) clientNetwork(cfg gridup.Config, id gridup.NodeIdentity) (netip.Prefix, error) {
	if cfg.MeshEnabled() {
		return cfg.MeshCIDR, nil
	}
	subnet, err := netcalc.ContainingSubnet(id.PrimaryAddr, inferredSubnetBits)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("infer client network from %s: %w", id.PrimaryAddr, err)
	}
	return subnet, nil
}

func (c *Configurator) mount(ctx context.Context, cfg gridup.Config) error {
	target := cfg.Storage.MountPath

	mounted, err := c.mounts.IsMounted(target)
	if err != nil {
		return fmt.Errorf("inspect mount table: %w", err)
	}
	if mounted {
		slog.Info("Shared storage already mounted.", "target", target)
		return nil
	}

	if err := c.sharer.InstallClient(ctx); err != nil {
		return fmt.Errorf("install file-sharing client: %w", err)
	}

	endpoint := cfg.StorageEndpoint()
	if endpoint == "" {
		return fmt.Errorf("%w: no shared storage endpoint available", gridup.ErrValidation)
	}
	if err := c.awaitExport(ctx, endpoint); err != nil {
		return err
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}
	if err := c.sharer.Mount(ctx, endpoint, target, cfg.Storage.MountOptions); err != nil {
		return fmt.Errorf("mount %s at %s: %w", endpoint, target, err)
	}
	if err := c.mounts.Persist(endpoint, target, cfg.Storage.MountOptions); err != nil {
		return fmt.Errorf("persist mount: %w", err)
	}

	slog.Info("Shared storage mounted.", "endpoint", endpoint, "target", target)
	return nil
}

// awaitExport polls the remote export with a fixed attempt count and
// interval; the coordinator may still be coming up when workers start.
func (c *Configurator) awaitExport(ctx context.Context, endpoint string) error {
	var lastErr error
	for attempt := 1; attempt <= c.probeAttempts; attempt++ {
		lastErr = c.sharer.ExportReachable(ctx, endpoint)
		if lastErr == nil {
			return nil
		}
		slog.Debug("shared storage export not reachable yet",
			"endpoint", endpoint, "attempt", attempt, "max", c.probeAttempts)
		if attempt < c.probeAttempts {
			c.sleep(c.probeInterval)
		}
	}
	return fmt.Errorf("%w: shared storage export %s unreachable after %d attempts: %v",
		gridup.ErrNetwork, endpoint, c.probeAttempts, lastErr)
}

func writeSchemaMarkerOnce(dir string) error {
	marker := filepath.Join(dir, schemaMarker)
	f, err := os.OpenFile(marker, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			slog.Debug("schema marker already present", "path", marker)
			return nil
		}
		return fmt.Errorf("write schema marker: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(schemaVersion); err != nil {
		return fmt.Errorf("write schema marker: %w", err)
	}
	return nil
}
