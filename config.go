package gridup

import (
	"fmt"
	"net/netip"
	"path"
	"strings"
)

// Service port defaults. Workers additionally expose a contiguous range of
// compute-container ports starting at ComputePortBase.
const (
	DefaultManagerPort     = 8081
	DefaultAgentPort       = 6011
	DefaultStateDBPort     = 8101
	DefaultCachePort       = 8111
	DefaultComputePortBase = 30000
	DefaultComputePorts    = 1000

	DefaultInstallPath = "/opt/gridup"
	DefaultExportPath  = "/srv/gridup/shared"
	DefaultMountPath   = "/mnt/gridup/shared"

	// DefaultMeshCIDR is the overlay address space handed out by the mesh
	// agent (CGNAT range, the usual choice for overlay meshes).
	DefaultMeshCIDR = "100.64.0.0/10"
)

// Ports holds the listening ports of every provisioned service.
type Ports struct {
	Manager         int
	Agent           int
	StateDB         int
	Cache           int
	ComputePortBase int
	ComputePorts    int
}

// StorageOptions configures the shared network filesystem. An empty
// Endpoint on the coordinator means this node becomes the exporter;
// workers always mount from Endpoint (defaulting to the peer address).
type StorageOptions struct {
	Enabled      bool
	Endpoint     string
	ExportPath   string
	MountPath    string
	MountOptions string
}

// Config is the immutable provisioning configuration, created once from
// parsed flags and passed explicitly into every component. Derived
// addressing lives in NodeIdentity, not here.
type Config struct {
	Role        Role
	PeerAddr    netip.Addr // coordinator address; required for workers
	InstallPath string

	MeshToken string       // empty disables the overlay mesh
	MeshCIDR  netip.Prefix // overlay address space, mesh only

	Ports   Ports
	Storage StorageOptions

	SkipHardware    bool // skip GPU driver/toolkit setup
	SkipSupervision bool // skip systemd unit registration
	SkipPrefetch    bool // skip container image pre-pull
}

// DefaultPorts returns the standard service port assignment.
func DefaultPorts() Ports {
	return Ports{
		Manager:         DefaultManagerPort,
		Agent:           DefaultAgentPort,
		StateDB:         DefaultStateDBPort,
		Cache:           DefaultCachePort,
		ComputePortBase: DefaultComputePortBase,
		ComputePorts:    DefaultComputePorts,
	}
}

// MeshEnabled reports whether overlay mesh setup was requested.
func (c Config) MeshEnabled() bool {
	return strings.TrimSpace(c.MeshToken) != ""
}

// Validate checks the configuration before any phase runs. It returns a
// ValidationError-wrapped error so callers can distinguish operator
// mistakes from runtime failures.
func (c Config) Validate() error {
	switch c.Role {
	case RoleCoordinator, RoleWorker:
	case "":
		return fmt.Errorf("%w: role is required (coordinator or worker)", ErrValidation)
	default:
		return fmt.Errorf("%w: unknown role %q", ErrValidation, c.Role)
	}

	if c.Role == RoleWorker && !c.PeerAddr.IsValid() {
		return fmt.Errorf("%w: worker role requires the coordinator address (--peer)", ErrValidation)
	}
	if c.Role == RoleCoordinator && c.PeerAddr.IsValid() {
		return fmt.Errorf("%w: --peer is only valid for workers", ErrValidation)
	}

	if c.InstallPath == "" || !path.IsAbs(c.InstallPath) {
		return fmt.Errorf("%w: install path must be absolute, got %q", ErrValidation, c.InstallPath)
	}

	for _, p := range []struct {
		name string
		port int
	}{
		{"manager", c.Ports.Manager},
		{"agent", c.Ports.Agent},
		{"statedb", c.Ports.StateDB},
		{"cache", c.Ports.Cache},
	} {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("%w: %s port %d out of range", ErrValidation, p.name, p.port)
		}
	}
	if c.Ports.ComputePorts > 0 {
		last := c.Ports.ComputePortBase + c.Ports.ComputePorts - 1
		if c.Ports.ComputePortBase < 1 || last > 65535 {
			return fmt.Errorf("%w: compute port range %d-%d out of range",
				ErrValidation, c.Ports.ComputePortBase, last)
		}
	}

	if c.MeshEnabled() && !c.MeshCIDR.IsValid() {
		return fmt.Errorf("%w: mesh requires a valid overlay CIDR", ErrValidation)
	}

	if c.Storage.Enabled {
		if c.Role == RoleWorker && c.Storage.Endpoint == "" && !c.PeerAddr.IsValid() {
			return fmt.Errorf("%w: worker storage requires an endpoint or peer address", ErrValidation)
		}
		if c.Storage.MountPath == "" {
			return fmt.Errorf("%w: storage mount path is required", ErrValidation)
		}
	}

	return nil
}

// StorageEndpoint resolves where clients mount shared storage from:
// the explicit endpoint when given, otherwise the coordinator peer address
// with the default export path.
func (c Config) StorageEndpoint() string {
	if c.Storage.Endpoint != "" {
		return c.Storage.Endpoint
	}
	if c.PeerAddr.IsValid() {
		return c.PeerAddr.String() + ":" + c.Storage.ExportPath
	}
	return ""
}
