// Package run is the exec plumbing shared by the shell-out adapters.
// Every external system without a Go SDK (package manager, supervisor,
// mesh agent, file sharing, firewall, control-plane CLI) goes through
// here, so phase logic never touches os/exec directly.
package run

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes a command and returns its combined output. It exists as
// an interface so adapters can be tested without a host to mutate.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Local runs commands on this host.
type Local struct{}

func (Local) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	slog.Debug("exec", "cmd", name, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if msg != "" {
			return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out.String(), nil
}

// Recorded is a Runner for tests: it records invocations and replays
// canned responses keyed by command name.
type Recorded struct {
	Commands []string
	Outputs  map[string]string
	Errs     map[string]error
}

func (r *Recorded) Run(_ context.Context, name string, args ...string) (string, error) {
	full := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.Commands = append(r.Commands, full)
	if err, ok := r.Errs[name]; ok && err != nil {
		return "", err
	}
	return r.Outputs[name], nil
}
