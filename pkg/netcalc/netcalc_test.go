package netcalc

import (
	"net/netip"
	"testing"
)

func TestContainingSubnet(t *testing.T) {
	tests := []struct {
		addr string
		bits int
		want string
	}{
		{"10.2.3.4", 24, "10.2.3.0/24"},
		{"192.168.1.77", 24, "192.168.1.0/24"},
		{"172.16.9.1", 16, "172.16.0.0/16"},
		{"100.64.0.7", 10, "100.64.0.0/10"},
	}
	for _, tt := range tests {
		got, err := ContainingSubnet(netip.MustParseAddr(tt.addr), tt.bits)
		if err != nil {
			t.Fatalf("ContainingSubnet(%s, %d): %v", tt.addr, tt.bits, err)
		}
		if got.String() != tt.want {
			t.Errorf("ContainingSubnet(%s, %d) = %s, want %s", tt.addr, tt.bits, got, tt.want)
		}
	}
}

func TestContainingSubnetRejectsIPv6(t *testing.T) {
	if _, err := ContainingSubnet(netip.MustParseAddr("fd00::1"), 64); err == nil {
		t.Fatal("expected error for ipv6 address")
	}
}

func TestPrefixesOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"10.0.0.0/24", "10.0.0.128/25", true},
		{"10.0.0.0/24", "10.0.1.0/24", false},
		{"100.64.0.0/10", "100.100.0.0/16", true},
		{"192.168.0.0/16", "172.16.0.0/12", false},
	}
	for _, tt := range tests {
		got, err := PrefixesOverlap(netip.MustParsePrefix(tt.a), netip.MustParsePrefix(tt.b))
		if err != nil {
			t.Fatalf("PrefixesOverlap(%s, %s): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("PrefixesOverlap(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
