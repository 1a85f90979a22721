package sharedfs

import (
	"context"
	"net/netip"
)

// FileSharer drives the network file-sharing service (NFS in production,
// behind exportfs/mount shell-outs).
type FileSharer interface {
	// InstallServer installs the export-side service packages.
	InstallServer(ctx context.Context) error
	// InstallClient installs the mount-side support packages.
	InstallClient(ctx context.Context) error
	// RegisterExport makes dir available to clientNet. Re-registering the
	// same export is a no-op.
	RegisterExport(ctx context.Context, dir string, clientNet netip.Prefix) error
	// RestartServer restarts the exporting service so a new export takes
	// effect.
	RestartServer(ctx context.Context) error
	// ExportReachable probes whether the remote endpoint currently serves
	// its export.
	ExportReachable(ctx context.Context, endpoint string) error
	// Mount mounts the remote endpoint at target with the given options.
	Mount(ctx context.Context, endpoint, target, options string) error
}

// MountTable answers "is it mounted" from actual state instead of parsing
// expected failure text, and persists mounts for reboot survival.
type MountTable interface {
	// IsMounted reports whether target currently has a filesystem mounted.
	IsMounted(target string) (bool, error)
	// Persist records the mount for reboot survival. Persisting an entry
	// that already exists must not duplicate it.
	Persist(endpoint, target, options string) error
}
