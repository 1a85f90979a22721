// Package gridup holds the shared types for provisioning a grid compute
// cluster: one coordinator node carrying the control plane and state
// services, plus any number of workers contributing compute capacity.
//
// All provisioning logic lives under internal/; this package defines the
// immutable run configuration and the node identity every component reads.
package gridup

import "net/netip"

// Role selects which side of the cluster a node is provisioned as.
type Role string

const (
	// RoleCoordinator hosts statedb, cache, and the manager control plane.
	RoleCoordinator Role = "coordinator"
	// RoleWorker runs the compute agent and dials the coordinator.
	RoleWorker Role = "worker"
)

// NodeIdentity is the node's addressing as discovered during network setup.
// MeshAddr is only set when the overlay mesh is active.
type NodeIdentity struct {
	PrimaryAddr netip.Addr
	MeshAddr    netip.Addr
}

// EffectiveAddr is the address other nodes should use to reach this one:
// the mesh-assigned address when present, the primary interface address
// otherwise.
func (n NodeIdentity) EffectiveAddr() netip.Addr {
	if n.MeshAddr.IsValid() {
		return n.MeshAddr
	}
	return n.PrimaryAddr
}
