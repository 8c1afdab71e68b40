package kernel

import (
	"net"
	"net/netip"
)

func prefixToIPNet(pref netip.Prefix) net.IPNet {
	return net.IPNet{
		IP:   pref.Addr().AsSlice(),
		Mask: net.CIDRMask(pref.Bits(), pref.Addr().BitLen()),
	}
}
