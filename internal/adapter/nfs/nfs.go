// Package nfs adapts the host NFS tooling to the shared-filesystem
// collaborator interfaces: exportfs and the exports drop-in directory on
// the serving side, showmount and mount on the consuming side.
package nfs

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"gridup/internal/adapter/run"
)

const (
	serverPackage = "nfs-kernel-server"
	clientPackage = "nfs-common"
	serverUnit    = "nfs-kernel-server"

	exportsFile = "/etc/exports.d/gridup.exports"
	exportOpts  = "rw,sync,no_subtree_check,no_root_squash"
)

// PackageInstaller is the slice of the package manager the sharer needs.
type PackageInstaller interface {
	Install(ctx context.Context, pkgs ...string) error
}

// UnitRestarter restarts a supervision unit.
type UnitRestarter interface {
	Restart(ctx context.Context, unit string) error
}

// Sharer implements sharedfs.FileSharer on the host NFS stack.
type Sharer struct {
	runner      run.Runner
	packages    PackageInstaller
	supervisor  UnitRestarter
	exportsPath string
}

// Option configures a Sharer.
type Option func(*Sharer)

// WithExportsPath overrides the exports drop-in file, for tests.
func WithExportsPath(path string) Option {
	return func(s *Sharer) { s.exportsPath = path }
}

func NewSharer(r run.Runner, packages PackageInstaller, supervisor UnitRestarter, opts ...Option) *Sharer {
	if r == nil {
		r = run.Local{}
	}
	s := &Sharer{runner: r, packages: packages, supervisor: supervisor, exportsPath: exportsFile}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sharer) InstallServer(ctx context.Context) error {
	return s.packages.Install(ctx, serverPackage)
}

func (s *Sharer) InstallClient(ctx context.Context) error {
	return s.packages.Install(ctx, clientPackage)
}

// RegisterExport writes the export line into the drop-in file. The file
// is rewritten whole, so re-registering the same export cannot duplicate
// it.
func (s *Sharer) RegisterExport(_ context.Context, dir string, clientNet netip.Prefix) error {
	line := ExportLine(dir, clientNet)
	if current, err := os.ReadFile(s.exportsPath); err == nil && strings.TrimSpace(string(current)) == line {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.exportsPath), 0o755); err != nil {
		return fmt.Errorf("create exports directory: %w", err)
	}
	if err := os.WriteFile(s.exportsPath, []byte(line+"\n"), 0o644); err != nil {
		return fmt.Errorf("write export entry: %w", err)
	}
	return nil
}

func (s *Sharer) RestartServer(ctx context.Context) error {
	return s.supervisor.Restart(ctx, serverUnit)
}

// ExportReachable asks the remote mountd for its export list. showmount
// fails until the server side is up, which drives the caller's retry
// loop.
func (s *Sharer) ExportReachable(ctx context.Context, endpoint string) error {
	host, _, ok := strings.Cut(endpoint, ":")
	if !ok {
		return fmt.Errorf("malformed storage endpoint %q", endpoint)
	}
	if _, err := s.runner.Run(ctx, "showmount", "-e", host); err != nil {
		return fmt.Errorf("storage endpoint %s not serving: %w", endpoint, err)
	}
	return nil
}

func (s *Sharer) Mount(ctx context.Context, endpoint, target, options string) error {
	args := []string{"-t", "nfs"}
	if options != "" {
		args = append(args, "-o", options)
	}
	args = append(args, endpoint, target)
	if _, err := s.runner.Run(ctx, "mount", args...); err != nil {
		return fmt.Errorf("mount %s at %s: %w", endpoint, target, err)
	}
	return nil
}

// ExportLine is the exports(5) entry for one directory and client scope.
func ExportLine(dir string, clientNet netip.Prefix) string {
	return fmt.Sprintf("%s %s(%s)", dir, clientNet, exportOpts)
}
