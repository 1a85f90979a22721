//go:build linux

package topology

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// primaryAddr returns the first global unicast IPv4 address on a
// non-loopback interface that is up. When no interface qualifies it falls
// back to the source address of the default route.
func primaryAddr() (netip.Addr, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("list links: %w", err)
	}

	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagLoopback != 0 || attrs.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if addr, ok := netip.AddrFromSlice(a.IP.To4()); ok && addr.IsGlobalUnicast() {
				return addr, nil
			}
		}
	}

	return routeSourceAddr()
}

// routeSourceAddr asks the kernel which source address it would use to
// reach a well-known public destination.
func routeSourceAddr() (netip.Addr, error) {
	routes, err := netlink.RouteGet(net.IPv4(1, 1, 1, 1))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("route lookup: %w", err)
	}
	for _, r := range routes {
		if addr, ok := netip.AddrFromSlice(r.Src.To4()); ok && addr.IsValid() {
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no usable source address on any route")
}
