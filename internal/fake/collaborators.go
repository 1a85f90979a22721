// Package fake provides call-recording fakes for every provisioning
// collaborator port. Tests construct the real orchestrator with these
// injected, then assert on recorded calls instead of mutated hosts.
package fake

import (
	"context"
	"fmt"

	"gridup"
	"gridup/internal/artifact"
)

// Validator fakes the preflight gate.
type Validator struct {
	CallRecorder
	Driver string
	Err    error
}

func (v *Validator) Run(_ context.Context, cfg gridup.Config) (string, error) {
	v.record("Run", cfg.Role)
	return v.Driver, v.Err
}

// Topology fakes network establishment.
type Topology struct {
	CallRecorder
	Identity gridup.NodeIdentity
	Err      error
}

func (t *Topology) Establish(_ context.Context, cfg gridup.Config) (gridup.NodeIdentity, error) {
	t.record("Establish", cfg.MeshEnabled())
	return t.Identity, t.Err
}

// Storage fakes the shared filesystem configurator.
type Storage struct {
	CallRecorder
	Err error
}

func (s *Storage) Provision(_ context.Context, cfg gridup.Config, id gridup.NodeIdentity) error {
	s.record("Provision", cfg.Role, id.EffectiveAddr())
	return s.Err
}

// Packages fakes the OS package manager.
type Packages struct {
	CallRecorder
	Err error
}

func (p *Packages) Install(_ context.Context, pkgs ...string) error {
	args := make([]any, len(pkgs))
	for i, pkg := range pkgs {
		args[i] = pkg
	}
	p.record("Install", args...)
	return p.Err
}

// Installed flattens every package name passed to Install so far.
func (p *Packages) Installed() []string {
	var out []string
	for _, c := range p.Calls("Install") {
		for _, a := range c.Args {
			out = append(out, a.(string))
		}
	}
	return out
}

// Engine fakes the container engine.
type Engine struct {
	CallRecorder
	ReadyErr   error
	PullErr    error
	ComposeErr error
}

func (e *Engine) Ready(context.Context) error {
	e.record("Ready")
	return e.ReadyErr
}

func (e *Engine) Pull(_ context.Context, image string) error {
	e.record("Pull", image)
	return e.PullErr
}

func (e *Engine) ComposeUp(_ context.Context, composePath string) error {
	e.record("ComposeUp", composePath)
	return e.ComposeErr
}

// ControlPlane fakes the provisioned system's own CLI. ReadyAfter is how
// many Ready calls fail before it reports healthy.
type ControlPlane struct {
	CallRecorder
	ReadyAfter int
	InitErr    error
	readyCalls int
}

func (c *ControlPlane) Ready(context.Context) error {
	c.record("Ready")
	c.readyCalls++
	if c.readyCalls <= c.ReadyAfter {
		return fmt.Errorf("control plane still starting")
	}
	return nil
}

func (c *ControlPlane) InitState(_ context.Context, cfg gridup.Config) error {
	c.record("InitState", cfg.Role)
	return c.InitErr
}

// Registrar fakes supervision registration.
type Registrar struct {
	CallRecorder
	Err error
}

func (r *Registrar) Register(_ context.Context, cfg gridup.Config) error {
	r.record("Register", cfg.Role)
	return r.Err
}

// Artifacts fakes rendering and persistence, recording the inputs the
// orchestrator resolved.
type Artifacts struct {
	CallRecorder
	RenderErr error
	WriteErr  error
	LastIn    artifact.Inputs
}

func (a *Artifacts) Render(_ context.Context, in artifact.Inputs) ([]artifact.Artifact, error) {
	a.record("Render", in.Config.Role, in.Toolkit)
	a.LastIn = in
	if a.RenderErr != nil {
		return nil, a.RenderErr
	}
	return []artifact.Artifact{{Name: "fake.yaml", Data: []byte("fake: true\n"), Mode: 0o600}}, nil
}

func (a *Artifacts) Write(dir string, arts []artifact.Artifact) error {
	a.record("Write", dir, len(arts))
	return a.WriteErr
}
