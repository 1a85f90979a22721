package topology

import (
	"context"
	"net/netip"
)

// MeshAgent drives the external overlay-mesh agent on this host.
// Production shells out to the agent CLI; tests use a fake.
type MeshAgent interface {
	// Join authenticates this node into the mesh. Joining an already
	// joined mesh is a no-op.
	Join(ctx context.Context, token string) error
	// Address returns the mesh-assigned overlay address. Before the mesh
	// has converged the agent reports no address, which is returned as an
	// error and retried by the caller.
	Address(ctx context.Context) (netip.Addr, error)
}

// Firewall installs host firewall rules. Rule evaluation follows install
// order, so callers must install allows before denies for the same port.
type Firewall interface {
	Apply(ctx context.Context, rule Rule) error
}
