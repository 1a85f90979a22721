package artifact

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"gridup"
	"gridup/internal/secrets"
)

func testSecrets() secrets.Bundle {
	return secrets.Bundle{
		DBPassword:    "db-pass-0000000000000000000000000000000000000000000000000000000000",
		CachePassword: "cache-pass-00000000000000000000000000000000000000000000000000000",
		ClusterToken:  "cluster-token-AAAA",
		APIAccessKey:  "GUtestaccesskey",
		APISecretKey:  "api-secret-000000000000000000000000000000000000000000000000000000",
	}
}

func coordInputs() Inputs {
	return Inputs{
		Config: gridup.Config{
			Role:        gridup.RoleCoordinator,
			InstallPath: "/opt/gridup",
			Ports:       gridup.DefaultPorts(),
		},
		Identity: gridup.NodeIdentity{PrimaryAddr: netip.MustParseAddr("192.168.1.10")},
		Secrets:  testSecrets(),
		Toolkit:  "12.1",
	}
}

func workerInputs() Inputs {
	return Inputs{
		Config: gridup.Config{
			Role:        gridup.RoleWorker,
			PeerAddr:    netip.MustParseAddr("10.0.0.5"),
			InstallPath: "/opt/gridup",
			Ports:       gridup.DefaultPorts(),
			MeshToken:   "tskey-test",
			MeshCIDR:    netip.MustParsePrefix(gridup.DefaultMeshCIDR),
		},
		Identity: gridup.NodeIdentity{
			PrimaryAddr: netip.MustParseAddr("192.168.1.11"),
			MeshAddr:    netip.MustParseAddr("100.64.0.7"),
		},
		Secrets: testSecrets(),
		Toolkit: "11.7",
	}
}

func artifactByName(t *testing.T, arts []Artifact, name string) Artifact {
	t.Helper()
	for _, a := range arts {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("artifact %s not rendered; got %d artifacts", name, len(arts))
	return Artifact{}
}

func unmarshalMap(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal artifact: %v", err)
	}
	return m
}

func dig(t *testing.T, m map[string]any, keys ...string) any {
	t.Helper()
	var cur any = m
	for _, k := range keys {
		mm, ok := cur.(map[string]any)
		if !ok {
			t.Fatalf("path %v: not a map at %q", keys, k)
		}
		cur, ok = mm[k]
		if !ok {
			t.Fatalf("path %v: key %q absent", keys, k)
		}
	}
	return cur
}

func TestRenderIsDeterministic(t *testing.T) {
	ctx := context.Background()
	for _, in := range []Inputs{coordInputs(), workerInputs()} {
		first, err := Render(ctx, in)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		second, err := Render(ctx, in)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if len(first) != len(second) {
			t.Fatalf("artifact count changed between renders: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if !bytes.Equal(first[i].Data, second[i].Data) {
				t.Errorf("%s: renders differ byte-wise", first[i].Name)
			}
		}
	}
}

func TestCoordinatorTrustPairsShareSecrets(t *testing.T) {
	in := coordInputs()
	arts, err := Render(context.Background(), in)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	manager := unmarshalMap(t, artifactByName(t, arts, ManagerArtifact).Data)
	compose := unmarshalMap(t, artifactByName(t, arts, ComposeArtifact).Data)

	// manager ↔ statedb
	dbPass := dig(t, manager, "statedb", "password")
	composeDB := dig(t, compose, "services", "statedb", "environment", "POSTGRES_PASSWORD")
	if dbPass != composeDB || dbPass != in.Secrets.DBPassword {
		t.Errorf("db password differs between artifacts: %v vs %v", dbPass, composeDB)
	}

	// manager ↔ cache
	cachePass := dig(t, manager, "cache", "password").(string)
	cacheCmd, ok := dig(t, compose, "services", "cache", "command").([]any)
	if !ok || len(cacheCmd) != 3 {
		t.Fatalf("unexpected cache command: %v", cacheCmd)
	}
	if cacheCmd[2] != cachePass || cachePass != in.Secrets.CachePassword {
		t.Errorf("cache password differs between artifacts: %v vs %v", cachePass, cacheCmd[2])
	}

	// manager ↔ agent: join token artifact carries the same value.
	token := strings.TrimSpace(string(artifactByName(t, arts, JoinTokenArtifact).Data))
	if dig(t, manager, "cluster", "auth-token") != token {
		t.Error("cluster token differs between manager artifact and join token")
	}

	// client → manager: env script carries the same keypair.
	env := string(artifactByName(t, arts, EnvScriptArtifact).Data)
	if !strings.Contains(env, dig(t, manager, "api", "access-key").(string)) ||
		!strings.Contains(env, dig(t, manager, "api", "secret-key").(string)) {
		t.Error("api keypair differs between manager artifact and env script")
	}
}

func TestCoordinatorWithoutMeshBindsAllInterfaces(t *testing.T) {
	arts, err := Render(context.Background(), coordInputs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	manager := unmarshalMap(t, artifactByName(t, arts, ManagerArtifact).Data)
	if got := dig(t, manager, "service", "bind-addr"); got != "0.0.0.0" {
		t.Errorf("bind-addr = %v, want 0.0.0.0", got)
	}
}

func TestCoordinatorWithMeshBindsOverlayAddress(t *testing.T) {
	in := coordInputs()
	in.Config.MeshToken = "tskey-test"
	in.Config.MeshCIDR = netip.MustParsePrefix(gridup.DefaultMeshCIDR)
	in.Identity.MeshAddr = netip.MustParseAddr("100.64.0.3")

	arts, err := Render(context.Background(), in)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	manager := unmarshalMap(t, artifactByName(t, arts, ManagerArtifact).Data)
	if got := dig(t, manager, "service", "bind-addr"); got != "100.64.0.3" {
		t.Errorf("bind-addr = %v, want mesh address", got)
	}
}

// The agent artifact keeps the dial-out direction (coordinator endpoints)
// and the advertise direction (its own reachable address) separate.
func TestWorkerAgentArtifactDirections(t *testing.T) {
	arts, err := Render(context.Background(), workerInputs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	agent := unmarshalMap(t, artifactByName(t, arts, AgentArtifact).Data)

	if got := dig(t, agent, "coordinator", "manager-addr"); got != "10.0.0.5" {
		t.Errorf("coordinator manager-addr = %v, want peer 10.0.0.5", got)
	}
	if got := dig(t, agent, "agent", "advertise-addr"); got != "100.64.0.7" {
		t.Errorf("advertise-addr = %v, want mesh-assigned 100.64.0.7", got)
	}
	if got := dig(t, agent, "agent", "compute-port-base"); got != gridup.DefaultComputePortBase {
		t.Errorf("compute-port-base = %v, want %d", got, gridup.DefaultComputePortBase)
	}
}

func TestRenderRejectsIncompleteSecretBundle(t *testing.T) {
	in := coordInputs()
	in.Secrets.ClusterToken = ""
	_, err := Render(context.Background(), in)
	if !errors.Is(err, gridup.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestWriteAllOverwritesDeterministically(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "etc")
	arts, err := Render(context.Background(), coordInputs())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if err := WriteAll(dir, arts); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if err := WriteAll(dir, arts); err != nil {
		t.Fatalf("WriteAll rerun: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(arts) {
		t.Errorf("dir has %d files, want %d (no duplicates on rerun)", len(entries), len(arts))
	}

	data, err := os.ReadFile(filepath.Join(dir, ManagerArtifact))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, artifactByName(t, arts, ManagerArtifact).Data) {
		t.Error("on-disk artifact differs from rendered bytes after rerun")
	}

	info, err := os.Stat(filepath.Join(dir, EnvScriptArtifact))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("env script mode = %v, want 0700", info.Mode().Perm())
	}
}
