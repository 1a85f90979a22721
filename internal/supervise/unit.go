package supervise

import (
	"fmt"
	"strings"

	"gridup"
	"gridup/internal/artifact"
)

// Unit is a process-supervision unit definition, rendered field by field
// into the supervisor's own format.
type Unit struct {
	Name        string // file name, e.g. gridup-manager.service
	Description string
	After       []string
	Requires    []string
	ExecStart   string
	ExecStop    string
	WorkingDir  string
	Restart     string
	RemainAfter bool
	OneShot     bool
}

// Render produces the systemd unit file contents.
func (u Unit) Render() []byte {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", u.Description)
	for _, a := range u.After {
		fmt.Fprintf(&b, "After=%s\n", a)
	}
	for _, r := range u.Requires {
		fmt.Fprintf(&b, "Requires=%s\n", r)
	}

	b.WriteString("\n[Service]\n")
	if u.OneShot {
		b.WriteString("Type=oneshot\n")
	}
	if u.RemainAfter {
		b.WriteString("RemainAfterExit=yes\n")
	}
	if u.WorkingDir != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", u.WorkingDir)
	}
	fmt.Fprintf(&b, "ExecStart=%s\n", u.ExecStart)
	if u.ExecStop != "" {
		fmt.Fprintf(&b, "ExecStop=%s\n", u.ExecStop)
	}
	if u.Restart != "" {
		fmt.Fprintf(&b, "Restart=%s\nRestartSec=5\n", u.Restart)
	}

	b.WriteString("\n[Install]\nWantedBy=multi-user.target\n")
	return []byte(b.String())
}

// Units returns the unit set for this node's role. Coordinators supervise
// the container half-stack plus the manager; workers supervise the agent.
func Units(cfg gridup.Config) []Unit {
	etc := artifact.EtcDir(cfg.InstallPath)
	bin := cfg.InstallPath + "/bin"

	if cfg.Role == gridup.RoleWorker {
		return []Unit{{
			Name:        "gridup-agent.service",
			Description: "gridup compute agent",
			After:       []string{"network-online.target", "docker.service"},
			Requires:    []string{"docker.service"},
			ExecStart:   fmt.Sprintf("%s/grid-agent --config %s/%s", bin, etc, artifact.AgentArtifact),
			Restart:     "on-failure",
		}}
	}

	halfstack := Unit{
		Name:        "gridup-halfstack.service",
		Description: "gridup state services (statedb, cache)",
		After:       []string{"network-online.target", "docker.service"},
		Requires:    []string{"docker.service"},
		ExecStart:   fmt.Sprintf("/usr/bin/docker compose -f %s/%s up -d", etc, artifact.ComposeArtifact),
		ExecStop:    fmt.Sprintf("/usr/bin/docker compose -f %s/%s down", etc, artifact.ComposeArtifact),
		WorkingDir:  etc,
		OneShot:     true,
		RemainAfter: true,
	}
	manager := Unit{
		Name:        "gridup-manager.service",
		Description: "gridup cluster manager",
		After:       []string{"network-online.target", "gridup-halfstack.service"},
		Requires:    []string{"gridup-halfstack.service"},
		ExecStart:   fmt.Sprintf("%s/grid-manager --config %s/%s", bin, etc, artifact.ManagerArtifact),
		Restart:     "on-failure",
	}
	return []Unit{halfstack, manager}
}
