package nfs

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type noopInstaller struct{ pkgs []string }

func (n *noopInstaller) Install(_ context.Context, pkgs ...string) error {
	n.pkgs = append(n.pkgs, pkgs...)
	return nil
}

type noopRestarter struct{ units []string }

func (n *noopRestarter) Restart(_ context.Context, unit string) error {
	n.units = append(n.units, unit)
	return nil
}

func TestRegisterExportRewritesWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports.d", "gridup.exports")
	s := NewSharer(nil, &noopInstaller{}, &noopRestarter{}, WithExportsPath(path))
	net := netip.MustParsePrefix("100.64.0.0/10")

	for i := 0; i < 2; i++ {
		if err := s.RegisterExport(context.Background(), "/srv/gridup/shared", net); err != nil {
			t.Fatalf("RegisterExport() error = %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read exports: %v", err)
	}
	want := "/srv/gridup/shared 100.64.0.0/10(rw,sync,no_subtree_check,no_root_squash)\n"
	if string(data) != want {
		t.Errorf("exports = %q, want %q", data, want)
	}
}

func TestIsMountedReadsKernelTable(t *testing.T) {
	dir := t.TempDir()
	mounts := filepath.Join(dir, "mounts")
	table := strings.Join([]string{
		"sysfs /sys sysfs rw 0 0",
		"10.0.0.5:/srv/gridup/shared /mnt/gridup/shared nfs4 rw 0 0",
		"",
	}, "\n")
	if err := os.WriteFile(mounts, []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewMounts(WithTablePaths(mounts, filepath.Join(dir, "fstab")))

	mounted, err := m.IsMounted("/mnt/gridup/shared")
	if err != nil {
		t.Fatalf("IsMounted() error = %v", err)
	}
	if !mounted {
		t.Error("IsMounted() = false for present mount")
	}

	mounted, err = m.IsMounted("/mnt/other")
	if err != nil {
		t.Fatalf("IsMounted() error = %v", err)
	}
	if mounted {
		t.Error("IsMounted() = true for absent mount")
	}
}

func TestPersistDoesNotDuplicate(t *testing.T) {
	dir := t.TempDir()
	fstab := filepath.Join(dir, "fstab")
	m := NewMounts(WithTablePaths(filepath.Join(dir, "mounts"), fstab))

	for i := 0; i < 3; i++ {
		if err := m.Persist("10.0.0.5:/srv/gridup/shared", "/mnt/gridup/shared", "nfsvers=4.1"); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
	}

	data, err := os.ReadFile(fstab)
	if err != nil {
		t.Fatal(err)
	}
	want := "10.0.0.5:/srv/gridup/shared /mnt/gridup/shared nfs nfsvers=4.1 0 0\n"
	if string(data) != want {
		t.Errorf("fstab = %q, want %q", data, want)
	}
}

func TestInstallTargetsByRole(t *testing.T) {
	inst := &noopInstaller{}
	s := NewSharer(nil, inst, &noopRestarter{})

	if err := s.InstallServer(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.InstallClient(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(inst.pkgs) != 2 || inst.pkgs[0] != "nfs-kernel-server" || inst.pkgs[1] != "nfs-common" {
		t.Errorf("installed = %v", inst.pkgs)
	}
}
