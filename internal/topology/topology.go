// Package topology establishes a node's effective address and scopes the
// host firewall to the cluster. With a mesh token the node joins the
// encrypted overlay and waits for its assigned address; without one the
// primary interface address is used directly.
package topology

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"gridup"
	"gridup/internal/check"
)

const (
	// Mesh address assignment happens within seconds of a successful join;
	// 30 × 2s is generous without stalling a broken run forever.
	defaultAddrAttempts = 30
	defaultAddrInterval = 2 * time.Second
)

// Configurator wires the mesh agent and firewall into a node identity.
type Configurator struct {
	mesh MeshAgent
	fw   Firewall

	addrAttempts int
	addrInterval time.Duration

	localAddr func() (netip.Addr, error)
	sleep     func(time.Duration)
}

// Option configures a Configurator.
type Option func(*Configurator)

// WithAddressPolling overrides the mesh address retry budget, for tests.
func WithAddressPolling(attempts int, interval time.Duration) Option {
	return func(c *Configurator) {
		c.addrAttempts = attempts
		c.addrInterval = interval
	}
}

// WithLocalAddr replaces primary-address discovery, for tests.
func WithLocalAddr(fn func() (netip.Addr, error)) Option {
	return func(c *Configurator) { c.localAddr = fn }
}

// WithSleep replaces the retry sleep, for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Configurator) { c.sleep = fn }
}

// New creates a Configurator using mesh for overlay membership and fw for
// host firewall mutation.
func New(mesh MeshAgent, fw Firewall, opts ...Option) *Configurator {
	c := &Configurator{
		mesh:         mesh,
		fw:           fw,
		addrAttempts: defaultAddrAttempts,
		addrInterval: defaultAddrInterval,
		localAddr:    primaryAddr,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Establish joins the mesh when enabled, resolves the node identity, and
// installs the firewall rule plan. It returns the identity other phases
// advertise to the rest of the cluster.
func (c *Configurator) Establish(ctx context.Context, cfg gridup.Config) (gridup.NodeIdentity, error) {
	var id gridup.NodeIdentity

	primary, err := c.localAddr()
	if err != nil {
		return id, fmt.Errorf("%w: discover primary address: %v", gridup.ErrNetwork, err)
	}
	id.PrimaryAddr = primary

	if cfg.MeshEnabled() {
		if err := c.mesh.Join(ctx, cfg.MeshToken); err != nil {
			return id, fmt.Errorf("%w: join mesh: %v", gridup.ErrNetwork, err)
		}
		addr, err := c.awaitMeshAddr(ctx)
		if err != nil {
			return id, err
		}
		id.MeshAddr = addr
		slog.Info("Joined overlay mesh.", "addr", addr)
	}

	rules := PlanRules(cfg)
	check.Assertf(len(rules) > 0 && rules[0].Action == ActionAllow && rules[0].Port == sshPort,
		"rule plan must open the remote shell first, got %v", rules)
	for _, rule := range rules {
		if err := c.fw.Apply(ctx, rule); err != nil {
			return id, fmt.Errorf("%w: apply firewall rule %s: %v", gridup.ErrNetwork, rule, err)
		}
	}

	slog.Info("Network topology established.", "effective_addr", id.EffectiveAddr())
	return id, nil
}

// awaitMeshAddr polls the agent for the assigned overlay address with a
// fixed attempt count and interval. Exhaustion is fatal.
func (c *Configurator) awaitMeshAddr(ctx context.Context) (netip.Addr, error) {
	var lastErr error
	for attempt := 1; attempt <= c.addrAttempts; attempt++ {
		addr, err := c.mesh.Address(ctx)
		if err == nil && addr.IsValid() {
			return addr, nil
		}
		lastErr = err
		slog.Debug("mesh address not assigned yet", "attempt", attempt, "max", c.addrAttempts)
		if attempt < c.addrAttempts {
			c.sleep(c.addrInterval)
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: mesh address not assigned after %d attempts: %v",
		gridup.ErrNetwork, c.addrAttempts, lastErr)
}
