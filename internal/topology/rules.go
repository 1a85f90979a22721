package topology

import (
	"fmt"
	"net/netip"

	"gridup"
)

// Action is what a firewall rule does with matching traffic.
type Action uint8

const (
	ActionAllow Action = iota + 1
	ActionDeny
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

const sshPort = 22

// Rule scopes one port (or contiguous port range) to a source network.
// An invalid Source means any source.
type Rule struct {
	Action  Action
	Source  netip.Prefix
	Port    int
	PortEnd int // 0 for single-port rules
}

func (r Rule) String() string {
	src := "any"
	if r.Source.IsValid() {
		src = r.Source.String()
	}
	if r.PortEnd > r.Port {
		return fmt.Sprintf("%s %d-%d from %s", r.Action, r.Port, r.PortEnd, src)
	}
	return fmt.Sprintf("%s %d from %s", r.Action, r.Port, src)
}

// servicePorts returns the ports a node of the given role must accept,
// as (start, end) pairs. Coordinators expose the control plane and state
// services; workers expose agent RPC plus the compute-container range.
func servicePorts(cfg gridup.Config) [][2]int {
	if cfg.Role == gridup.RoleCoordinator {
		return [][2]int{
			{cfg.Ports.Manager, 0},
			{cfg.Ports.StateDB, 0},
			{cfg.Ports.Cache, 0},
		}
	}
	ports := [][2]int{{cfg.Ports.Agent, 0}}
	if cfg.Ports.ComputePorts > 0 {
		ports = append(ports, [2]int{
			cfg.Ports.ComputePortBase,
			cfg.Ports.ComputePortBase + cfg.Ports.ComputePorts - 1,
		})
	}
	return ports
}

// PlanRules computes the firewall rule sequence for this node. Remote
// administrative access stays open unconditionally. With the mesh active,
// every service port is allowed from the overlay CIDR and then denied from
// everywhere else — the allow must precede the deny because evaluation
// order decides precedence. Without the mesh there is nothing to scope to,
// so service ports are opened per port; a blanket allow-all is never
// emitted either way.
func PlanRules(cfg gridup.Config) []Rule {
	rules := []Rule{{Action: ActionAllow, Port: sshPort}}

	for _, p := range servicePorts(cfg) {
		if cfg.MeshEnabled() {
			rules = append(rules,
				Rule{Action: ActionAllow, Source: cfg.MeshCIDR, Port: p[0], PortEnd: p[1]},
				Rule{Action: ActionDeny, Port: p[0], PortEnd: p[1]},
			)
			continue
		}
		rules = append(rules, Rule{Action: ActionAllow, Port: p[0], PortEnd: p[1]})
	}

	return rules
}
