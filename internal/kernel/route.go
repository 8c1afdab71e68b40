package kernel

import (
	"github.com/vishvananda/netlink"

	"wgmesh/internal/mesh"
)

// RouteTable manipulates the IPv6 route table entries that steer traffic
// for a peer's link-local address into the domain's WireGuard interface.
type RouteTable struct{}

func (RouteTable) Name() string {
	return SubsystemRoute
}

// Apply replaces or deletes the /128 host route to the peer's link-local
// address via the domain's WireGuard interface. Replace semantics make the
// present case idempotent; deleting a route that is already gone is a
// kernel rejection and surfaces as an InterfaceError.
func (RouteTable) Apply(peer mesh.Peer) error {
	iface := peer.WireguardInterface()
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return newInterfaceError(SubsystemRoute, iface, err)
	}

	dst := prefixToIPNet(peer.LinkLocal())
	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       &dst,
		Scope:     netlink.SCOPE_LINK,
	}

	op := netlink.RouteReplace
	if peer.Remove {
		op = netlink.RouteDel
	}
	if err := op(route); err != nil {
		return newInterfaceError(SubsystemRoute, iface, err)
	}
	return nil
}
