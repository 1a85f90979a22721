package secrets

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestGenerateProducesIndependentSecrets(t *testing.T) {
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	values := map[string]string{
		"DBPassword":    b.DBPassword,
		"CachePassword": b.CachePassword,
		"ClusterToken":  b.ClusterToken,
		"APIAccessKey":  b.APIAccessKey,
		"APISecretKey":  b.APISecretKey,
	}
	seen := make(map[string]string)
	for name, v := range values {
		if v == "" {
			t.Errorf("%s is empty", name)
		}
		if prev, dup := seen[v]; dup {
			t.Errorf("%s and %s share the same value", name, prev)
		}
		seen[v] = name
	}
}

func TestGenerateEncodings(t *testing.T) {
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for name, v := range map[string]string{
		"DBPassword":   b.DBPassword,
		"APISecretKey": b.APISecretKey,
	} {
		if _, err := hex.DecodeString(v); err != nil {
			t.Errorf("%s is not hex: %v", name, err)
		}
		if len(v) != 64 {
			t.Errorf("%s length = %d, want 64", name, len(v))
		}
	}

	for name, v := range map[string]string{
		"ClusterToken": b.ClusterToken,
		"APIAccessKey": b.APIAccessKey,
	} {
		if strings.ContainsAny(v, "+/=") {
			t.Errorf("%s is not url-safe: %q", name, v)
		}
	}

	if !strings.HasPrefix(b.APIAccessKey, "GU") {
		t.Errorf("access key %q missing GU prefix", b.APIAccessKey)
	}
}

func TestGenerateIsFreshPerRun(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.ClusterToken == b.ClusterToken {
		t.Error("two runs produced the same cluster token")
	}
}
