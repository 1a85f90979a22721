// Package meshcli drives the tailscale agent that provides the overlay
// mesh. Joining and address discovery both go through the agent's own
// CLI; the agent daemon owns all tunnel state.
package meshcli

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"gridup/internal/adapter/run"
)

const defaultBinary = "tailscale"

type Agent struct {
	runner run.Runner
	binary string
}

// Option configures an Agent.
type Option func(*Agent)

// WithBinary overrides the agent binary name.
func WithBinary(bin string) Option {
	return func(a *Agent) { a.binary = bin }
}

func New(r run.Runner, opts ...Option) *Agent {
	if r == nil {
		r = run.Local{}
	}
	a := &Agent{runner: r, binary: defaultBinary}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Join authenticates into the mesh. The agent treats joining an already
// joined mesh with the same key as a no-op.
func (a *Agent) Join(ctx context.Context, token string) error {
	if _, err := a.runner.Run(ctx, a.binary, "up", "--authkey", token, "--accept-routes"); err != nil {
		return fmt.Errorf("join mesh: %w", err)
	}
	return nil
}

// Address returns this node's mesh IPv4 address. Until the mesh converges
// the agent prints nothing, which surfaces as an error here and is
// retried by the caller.
func (a *Agent) Address(ctx context.Context) (netip.Addr, error) {
	out, err := a.runner.Run(ctx, a.binary, "ip", "-4")
	if err != nil {
		return netip.Addr{}, fmt.Errorf("query mesh address: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	addr, err := netip.ParseAddr(strings.TrimSpace(line))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("mesh address not assigned yet: %w", err)
	}
	return addr, nil
}
