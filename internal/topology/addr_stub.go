//go:build !linux

package topology

import (
	"fmt"
	"net/netip"
)

func primaryAddr() (netip.Addr, error) {
	return netip.Addr{}, fmt.Errorf("address discovery is only supported on linux")
}
