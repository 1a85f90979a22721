// Package artifact renders the per-service configuration files consumed at
// service startup. Rendering is deterministic: the same Configuration,
// identity, and secret bundle always produce byte-identical artifacts, so
// re-invoking a run overwrites files in place without drift.
package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"gridup"
	"gridup/internal/secrets"
)

// Artifact file names under <install>/etc.
const (
	ManagerArtifact   = "manager.yaml"
	AgentArtifact     = "agent.yaml"
	ComposeArtifact   = "compose.yaml"
	JoinTokenArtifact = "cluster-join.token"
	EnvScriptArtifact = "env-client.sh"
)

const bindAll = "0.0.0.0"

// Inputs is everything rendering depends on. Nothing else may influence
// artifact content.
type Inputs struct {
	Config   gridup.Config
	Identity gridup.NodeIdentity
	Secrets  secrets.Bundle
	// Toolkit is the resolved GPU toolkit channel; empty means no GPU.
	Toolkit  string
	Degraded bool
}

// BindAddr is the listen address for cluster-facing services: the overlay
// address when the mesh fronts the cluster, every interface otherwise.
func (in Inputs) BindAddr() string {
	if in.Config.MeshEnabled() && in.Identity.MeshAddr.IsValid() {
		return in.Identity.MeshAddr.String()
	}
	return bindAll
}

// Artifact is one rendered configuration file.
type Artifact struct {
	Name string
	Data []byte
	Mode fs.FileMode
}

// Render produces the artifact set for this node's role. Coordinator runs
// emit the manager config, the half-stack compose file, the cluster join
// token, and the client environment script; worker runs emit the agent
// config.
func Render(ctx context.Context, in Inputs) ([]Artifact, error) {
	if err := checkInputs(in); err != nil {
		return nil, err
	}
	if in.Config.Role == gridup.RoleCoordinator {
		return renderCoordinator(ctx, in)
	}
	return renderWorker(in)
}

func checkInputs(in Inputs) error {
	if !in.Identity.EffectiveAddr().IsValid() {
		return fmt.Errorf("%w: no effective address to render artifacts with", gridup.ErrConfiguration)
	}
	required := map[string]string{
		"cluster token":  in.Secrets.ClusterToken,
		"db password":    in.Secrets.DBPassword,
		"cache password": in.Secrets.CachePassword,
		"api access key": in.Secrets.APIAccessKey,
		"api secret key": in.Secrets.APISecretKey,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("%w: secret bundle is missing the %s", gridup.ErrConfiguration, name)
		}
	}
	return nil
}

func renderCoordinator(ctx context.Context, in Inputs) ([]Artifact, error) {
	cfg := in.Config
	addr := in.Identity.EffectiveAddr().String()

	shared := ""
	if cfg.Storage.Enabled {
		shared = cfg.Storage.ExportPath
	}

	manager := managerConfig{
		Service: managerService{
			BindAddr:      in.BindAddr(),
			Port:          cfg.Ports.Manager,
			AdvertiseAddr: addr,
		},
		StateDB: backendAuth{Host: addr, Port: cfg.Ports.StateDB, Password: in.Secrets.DBPassword},
		Cache:   backendAuth{Host: addr, Port: cfg.Ports.Cache, Password: in.Secrets.CachePassword},
		Cluster: clusterAuth{AuthToken: in.Secrets.ClusterToken},
		API:     apiKeypair{AccessKey: in.Secrets.APIAccessKey, SecretKey: in.Secrets.APISecretKey},
		GPU:     gpuConfig{Toolkit: in.Toolkit, Enabled: in.Toolkit != "", Degraded: in.Degraded},
		Paths:   pathConfig{Install: cfg.InstallPath, Shared: shared},
	}
	managerData, err := marshalYAML(ManagerArtifact, manager)
	if err != nil {
		return nil, err
	}

	composeData, err := marshalYAML(ComposeArtifact, halfstack(in))
	if err != nil {
		return nil, err
	}
	if err := validateCompose(ctx, composeData); err != nil {
		return nil, err
	}

	return []Artifact{
		{Name: ManagerArtifact, Data: managerData, Mode: 0o600},
		{Name: ComposeArtifact, Data: composeData, Mode: 0o600},
		{Name: JoinTokenArtifact, Data: []byte(in.Secrets.ClusterToken + "\n"), Mode: 0o600},
		{Name: EnvScriptArtifact, Data: envScript(in, addr), Mode: 0o700},
	}, nil
}

func renderWorker(in Inputs) ([]Artifact, error) {
	cfg := in.Config

	scratch := ""
	if cfg.Storage.Enabled {
		scratch = cfg.Storage.MountPath
	}

	agent := agentConfig{
		// Where the agent dials: the coordinator. Never the agent's own
		// address — the two directions of this relationship stay separate.
		Coordinator: coordinatorEndpoints{
			ManagerAddr: cfg.PeerAddr.String(),
			ManagerPort: cfg.Ports.Manager,
		},
		Agent: agentService{
			AdvertiseAddr:   in.Identity.EffectiveAddr().String(),
			Port:            cfg.Ports.Agent,
			ComputePortBase: cfg.Ports.ComputePortBase,
			ComputePorts:    cfg.Ports.ComputePorts,
		},
		Cluster: clusterAuth{AuthToken: in.Secrets.ClusterToken},
		GPU:     gpuConfig{Toolkit: in.Toolkit, Enabled: in.Toolkit != "", Degraded: in.Degraded},
		Paths:   pathConfig{Install: cfg.InstallPath, Shared: scratch},
	}
	data, err := marshalYAML(AgentArtifact, agent)
	if err != nil {
		return nil, err
	}

	return []Artifact{{Name: AgentArtifact, Data: data, Mode: 0o600}}, nil
}

// envScript exposes the client-facing access credentials. Secrets are
// embedded directly, same as every other artifact; the 0700 mode is the
// only guard.
func envScript(in Inputs, addr string) []byte {
	return fmt.Appendf(nil, `#!/bin/sh
# Client environment for the gridup cluster. Source this file.
export GRIDUP_ENDPOINT="http://%s:%d"
export GRIDUP_ACCESS_KEY="%s"
export GRIDUP_SECRET_KEY="%s"
`, addr, in.Config.Ports.Manager, in.Secrets.APIAccessKey, in.Secrets.APISecretKey)
}

func marshalYAML(name string, v any) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: render %s: %v", gridup.ErrConfiguration, name, err)
	}
	return data, nil
}

// EtcDir is where artifacts live under the install path.
func EtcDir(installPath string) string {
	return filepath.Join(installPath, "etc")
}

// Writer adapts the package functions to the orchestrator's
// artifact-writer collaborator.
type Writer struct{}

func (Writer) Render(ctx context.Context, in Inputs) ([]Artifact, error) {
	return Render(ctx, in)
}

func (Writer) Write(dir string, artifacts []Artifact) error {
	return WriteAll(dir, artifacts)
}

// WriteAll writes the artifact set under dir, replacing existing files
// deterministically. Overwrites are warned about once: the fresh secret
// bundle invalidates credentials already handed to running services.
func WriteAll(dir string, artifacts []Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	warned := false
	for _, a := range artifacts {
		path := filepath.Join(dir, a.Name)
		if _, err := os.Stat(path); err == nil && !warned {
			slog.Warn("Overwriting existing artifacts; previously issued credentials are now invalid.", "dir", dir)
			warned = true
		}
		if err := os.WriteFile(path, a.Data, a.Mode); err != nil {
			return fmt.Errorf("write artifact %s: %w", a.Name, err)
		}
		if err := os.Chmod(path, a.Mode); err != nil {
			return fmt.Errorf("chmod artifact %s: %w", a.Name, err)
		}
	}
	return nil
}
