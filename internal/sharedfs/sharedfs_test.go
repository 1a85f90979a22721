package sharedfs

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gridup"
)

type fakeSharer struct {
	serverInstalled bool
	clientInstalled bool
	exports         map[string]netip.Prefix
	restarts        int
	reachableAfter  int
	probes          int
	mountCalls      []string
}

func newFakeSharer() *fakeSharer {
	return &fakeSharer{exports: make(map[string]netip.Prefix)}
}

func (f *fakeSharer) InstallServer(context.Context) error { f.serverInstalled = true; return nil }
func (f *fakeSharer) InstallClient(context.Context) error { f.clientInstalled = true; return nil }
func (f *fakeSharer) RegisterExport(_ context.Context, dir string, net netip.Prefix) error {
	f.exports[dir] = net
	return nil
}
func (f *fakeSharer) RestartServer(context.Context) error { f.restarts++; return nil }
func (f *fakeSharer) ExportReachable(context.Context, string) error {
	f.probes++
	if f.probes <= f.reachableAfter {
		return fmt.Errorf("export not served yet")
	}
	return nil
}
func (f *fakeSharer) Mount(_ context.Context, endpoint, target, options string) error {
	f.mountCalls = append(f.mountCalls, endpoint+" "+target)
	return nil
}

type fakeMounts struct {
	mounted   map[string]bool
	persisted []string
}

func newFakeMounts() *fakeMounts { return &fakeMounts{mounted: make(map[string]bool)} }

func (f *fakeMounts) IsMounted(target string) (bool, error) { return f.mounted[target], nil }
func (f *fakeMounts) Persist(endpoint, target, options string) error {
	entry := endpoint + " " + target
	for _, p := range f.persisted {
		if p == entry {
			return nil
		}
	}
	f.persisted = append(f.persisted, entry)
	return nil
}

func coordConfig(t *testing.T, exportDir string) gridup.Config {
	t.Helper()
	return gridup.Config{
		Role:        gridup.RoleCoordinator,
		InstallPath: "/opt/gridup",
		Ports:       gridup.DefaultPorts(),
		Storage: gridup.StorageOptions{
			Enabled:    true,
			ExportPath: exportDir,
			MountPath:  gridup.DefaultMountPath,
		},
	}
}

func workerConfig(t *testing.T, mountDir string) gridup.Config {
	t.Helper()
	return gridup.Config{
		Role:        gridup.RoleWorker,
		PeerAddr:    netip.MustParseAddr("10.0.0.5"),
		InstallPath: "/opt/gridup",
		Ports:       gridup.DefaultPorts(),
		Storage: gridup.StorageOptions{
			Enabled:      true,
			ExportPath:   gridup.DefaultExportPath,
			MountPath:    mountDir,
			MountOptions: "rw,hard",
		},
	}
}

func identity(addr string) gridup.NodeIdentity {
	return gridup.NodeIdentity{PrimaryAddr: netip.MustParseAddr(addr)}
}

func TestProvisionDisabledIsNoOp(t *testing.T) {
	sharer := newFakeSharer()
	c := New(sharer, newFakeMounts(), WithSleep(func(time.Duration) {}))

	cfg := coordConfig(t, t.TempDir())
	cfg.Storage.Enabled = false
	if err := c.Provision(context.Background(), cfg, identity("10.0.0.5")); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if sharer.serverInstalled || sharer.clientInstalled {
		t.Error("storage work performed while disabled")
	}
}

func TestCoordinatorBecomesExporter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shared")
	sharer := newFakeSharer()
	c := New(sharer, newFakeMounts(), WithSleep(func(time.Duration) {}))

	if err := c.Provision(context.Background(), coordConfig(t, dir), identity("192.168.7.20")); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if !sharer.serverInstalled {
		t.Error("server support not installed")
	}
	if sharer.restarts != 1 {
		t.Errorf("restarts = %d, want 1", sharer.restarts)
	}
	// No mesh → client network inferred from the local subnet.
	want := netip.MustParsePrefix("192.168.7.0/24")
	if got := sharer.exports[dir]; got != want {
		t.Errorf("export client network = %s, want %s", got, want)
	}

	data, err := os.ReadFile(filepath.Join(dir, schemaMarker))
	if err != nil {
		t.Fatalf("schema marker: %v", err)
	}
	if string(data) != schemaVersion {
		t.Errorf("marker = %q, want %q", data, schemaVersion)
	}
}

func TestExporterUsesMeshCIDRWhenActive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shared")
	sharer := newFakeSharer()
	c := New(sharer, newFakeMounts(), WithSleep(func(time.Duration) {}))

	cfg := coordConfig(t, dir)
	cfg.MeshToken = "tskey-test"
	cfg.MeshCIDR = netip.MustParsePrefix(gridup.DefaultMeshCIDR)

	if err := c.Provision(context.Background(), cfg, identity("192.168.7.20")); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if got := sharer.exports[dir]; got != cfg.MeshCIDR {
		t.Errorf("export client network = %s, want mesh CIDR %s", got, cfg.MeshCIDR)
	}
}

func TestSchemaMarkerIsNeverOverwritten(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shared")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(dir, schemaMarker)
	if err := os.WriteFile(marker, []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(newFakeSharer(), newFakeMounts(), WithSleep(func(time.Duration) {}))
	if err := c.Provision(context.Background(), coordConfig(t, dir), identity("10.1.2.3")); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "0\n" {
		t.Errorf("marker rewritten to %q; an existing schema version must survive reruns", data)
	}
}

func TestWorkerMountsAfterExportBecomesReachable(t *testing.T) {
	mountDir := filepath.Join(t.TempDir(), "mnt")
	sharer := newFakeSharer()
	sharer.reachableAfter = 2
	mounts := newFakeMounts()
	c := New(sharer, mounts, WithProbing(5, time.Millisecond), WithSleep(func(time.Duration) {}))

	if err := c.Provision(context.Background(), workerConfig(t, mountDir), identity("10.0.0.9")); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if !sharer.clientInstalled {
		t.Error("client support not installed")
	}
	if sharer.probes != 3 {
		t.Errorf("probes = %d, want 3", sharer.probes)
	}
	wantEndpoint := "10.0.0.5:" + gridup.DefaultExportPath
	want := wantEndpoint + " " + mountDir
	if len(sharer.mountCalls) != 1 || sharer.mountCalls[0] != want {
		t.Errorf("mount calls = %v, want [%s]", sharer.mountCalls, want)
	}
	if len(mounts.persisted) != 1 {
		t.Errorf("persisted entries = %v, want one", mounts.persisted)
	}
}

func TestMountIsIdempotentWhenAlreadyMounted(t *testing.T) {
	mountDir := filepath.Join(t.TempDir(), "mnt")
	sharer := newFakeSharer()
	mounts := newFakeMounts()
	mounts.mounted[mountDir] = true
	c := New(sharer, mounts, WithSleep(func(time.Duration) {}))

	if err := c.Provision(context.Background(), workerConfig(t, mountDir), identity("10.0.0.9")); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if len(sharer.mountCalls) != 0 {
		t.Errorf("mount attempted on an already-mounted target: %v", sharer.mountCalls)
	}
	if len(mounts.persisted) != 0 {
		t.Errorf("duplicate persistent entry created: %v", mounts.persisted)
	}
}

func TestWorkerFailsWhenExportNeverReachable(t *testing.T) {
	sharer := newFakeSharer()
	sharer.reachableAfter = 1000
	c := New(sharer, newFakeMounts(), WithProbing(3, time.Millisecond), WithSleep(func(time.Duration) {}))

	err := c.Provision(context.Background(), workerConfig(t, filepath.Join(t.TempDir(), "mnt")), identity("10.0.0.9"))
	if !errors.Is(err, gridup.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if sharer.probes != 3 {
		t.Errorf("probes = %d, want exactly 3", sharer.probes)
	}
}
