package provision

import (
	"context"

	"gridup"
	"gridup/internal/artifact"
)

// Collaborator interfaces for everything the orchestrator mutates outside
// its own process. Production adapters shell out or use SDKs; tests
// inject fakes so phase logic is exercised without touching the host.

// PackageManager installs named OS packages. Installing an installed
// package is a no-op.
type PackageManager interface {
	Install(ctx context.Context, pkgs ...string) error
}

// ContainerEngine is the container runtime collaborator.
type ContainerEngine interface {
	// Ready blocks until the engine answers, or fails.
	Ready(ctx context.Context) error
	// Pull fetches an image. Pulling a present image is a no-op.
	Pull(ctx context.Context, image string) error
	// ComposeUp brings up the services of a compose file. Running it
	// against an already-up project is a no-op.
	ComposeUp(ctx context.Context, composePath string) error
}

// ControlPlane is the provisioned system's own CLI, invoked post-install
// for opaque data-plane configuration.
type ControlPlane interface {
	// Ready reports whether the control plane answers yet; polled with a
	// bounded retry budget after services start.
	Ready(ctx context.Context) error
	// InitState performs first-boot state initialization: default domain,
	// default group, and the shared storage volume registration.
	InitState(ctx context.Context, cfg gridup.Config) error
}

// Validator gates the run on host prerequisites and returns the detected
// GPU driver version.
type Validator interface {
	Run(ctx context.Context, cfg gridup.Config) (driverVersion string, err error)
}

// TopologyConfigurator establishes addressing and firewall scope.
type TopologyConfigurator interface {
	Establish(ctx context.Context, cfg gridup.Config) (gridup.NodeIdentity, error)
}

// StorageConfigurator exports or mounts the shared filesystem.
type StorageConfigurator interface {
	Provision(ctx context.Context, cfg gridup.Config, id gridup.NodeIdentity) error
}

// UnitRegistrar registers supervision units for this role.
type UnitRegistrar interface {
	Register(ctx context.Context, cfg gridup.Config) error
}

// ArtifactWriter renders and persists the configuration artifact set.
type ArtifactWriter interface {
	Render(ctx context.Context, in artifact.Inputs) ([]artifact.Artifact, error)
	Write(dir string, arts []artifact.Artifact) error
}
