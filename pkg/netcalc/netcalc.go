// Package netcalc provides the IPv4 prefix arithmetic used when scoping
// firewall rules and shared-storage exports to a client network.
package netcalc

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"
)

// ContainingSubnet returns the subnet of the given size that contains addr,
// e.g. ContainingSubnet(10.2.3.4, 24) == 10.2.3.0/24. This is how the
// exporter infers its allowed client network when no overlay mesh supplies
// one.
func ContainingSubnet(addr netip.Addr, bits int) (netip.Prefix, error) {
	if !addr.Is4() {
		return netip.Prefix{}, fmt.Errorf("address %s is not ipv4", addr)
	}
	if bits < 0 || bits > 32 {
		return netip.Prefix{}, fmt.Errorf("invalid subnet size /%d", bits)
	}
	p, err := addr.Prefix(bits)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("subnet of %s: %w", addr, err)
	}
	return p, nil
}

// PrefixRange4 returns the first and last address of an IPv4 prefix as
// big-endian uint32 values.
func PrefixRange4(p netip.Prefix) (uint32, uint32, error) {
	p = p.Masked()
	if !p.Addr().Is4() {
		return 0, 0, fmt.Errorf("prefix %s is not ipv4", p)
	}
	b := p.Addr().As4()
	start := binary.BigEndian.Uint32(b[:])
	hostBits := 32 - p.Bits()
	if hostBits <= 0 {
		return start, start, nil
	}
	if hostBits >= 32 {
		return 0, math.MaxUint32, nil
	}
	size := uint32(1) << hostBits
	return start, start + size - 1, nil
}

// RangesOverlap reports whether [aStart,aEnd] and [bStart,bEnd] intersect.
func RangesOverlap(aStart, aEnd, bStart, bEnd uint32) bool {
	return !(aEnd < bStart || bEnd < aStart)
}

// PrefixesOverlap reports whether two IPv4 prefixes share any addresses.
func PrefixesOverlap(a, b netip.Prefix) (bool, error) {
	a = a.Masked()
	b = b.Masked()
	if !a.IsValid() || !b.IsValid() {
		return false, fmt.Errorf("invalid prefix")
	}
	aStart, aEnd, err := PrefixRange4(a)
	if err != nil {
		return false, err
	}
	bStart, bEnd, err := PrefixRange4(b)
	if err != nil {
		return false, err
	}
	return RangesOverlap(aStart, aEnd, bStart, bEnd), nil
}
