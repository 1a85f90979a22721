// Package ufw applies host firewall rules through the ufw front end.
package ufw

import (
	"context"
	"fmt"
	"strings"

	"gridup/internal/adapter/run"
	"gridup/internal/topology"
)

type Firewall struct {
	runner  run.Runner
	enabled bool
}

func New(r run.Runner) *Firewall {
	if r == nil {
		r = run.Local{}
	}
	return &Firewall{runner: r}
}

func (f *Firewall) Apply(ctx context.Context, rule topology.Rule) error {
	if _, err := f.runner.Run(ctx, "ufw", ruleArgs(rule)...); err != nil {
		return fmt.Errorf("apply rule %s: %w", rule, err)
	}
	// Enable only after the first rule is in, which planning guarantees is
	// the remote-shell allow. Enabling first would cut the session off.
	if !f.enabled {
		if _, err := f.runner.Run(ctx, "ufw", "--force", "enable"); err != nil {
			return fmt.Errorf("enable firewall: %w", err)
		}
		f.enabled = true
	}
	return nil
}

// ruleArgs translates one rule to a ufw command line. ufw treats adding
// an existing rule as a no-op, which keeps re-runs clean.
func ruleArgs(r topology.Rule) []string {
	port := fmt.Sprintf("%d", r.Port)
	if r.PortEnd > r.Port {
		port = fmt.Sprintf("%d:%d", r.Port, r.PortEnd)
	}
	args := []string{r.Action.String()}
	if r.Source.IsValid() {
		args = append(args, "from", r.Source.String(), "to", "any", "port", port, "proto", "tcp")
	} else {
		args = append(args, port+"/tcp")
	}
	return args
}

// String of the full command, for logging.
func Command(r topology.Rule) string {
	return "ufw " + strings.Join(ruleArgs(r), " ")
}
