package kernel

import (
	"fmt"

	nl "github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"wgmesh/internal/mesh"
)

// ndmsgLen is the size of struct ndmsg on the wire: family, padding,
// ifindex, state, flags, type.
const ndmsgLen = 12

// zeroMAC is the all-zero lladdr carried by VXLAN flood entries.
var zeroMAC = make([]byte, 6)

// FDB manipulates the bridge forwarding database of the domain's VXLAN
// interface. Each peer gets a flood entry mapping the all-zero MAC to the
// peer's link-local address as tunnel destination, tagged with the index of
// the WireGuard interface the tunnel rides on.
//
// The high-level netlink package cannot express NDA_IFINDEX on neighbour
// messages, so the request is assembled directly on an rtnetlink socket.
type FDB struct{}

func (FDB) Name() string {
	return SubsystemFDB
}

// Apply appends or deletes the peer's forwarding entry. The kernel treats
// append of an identical entry as a rejection; that surfaces as an
// InterfaceError rather than being masked.
func (FDB) Apply(peer mesh.Peer) error {
	vxIface := peer.VXLANInterface()
	vxLink, err := netlink.LinkByName(vxIface)
	if err != nil {
		return newInterfaceError(SubsystemFDB, vxIface, err)
	}

	wgIface := peer.WireguardInterface()
	wgLink, err := netlink.LinkByName(wgIface)
	if err != nil {
		return newInterfaceError(SubsystemFDB, wgIface, err)
	}

	msg, err := fdbMessage(peer, vxLink.Attrs().Index, wgLink.Attrs().Index)
	if err != nil {
		return err
	}

	conn, err := nl.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return fmt.Errorf("open rtnetlink socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Execute(msg); err != nil {
		return newInterfaceError(SubsystemFDB, vxIface, err)
	}
	return nil
}

// fdbMessage builds the RTM_NEWNEIGH/RTM_DELNEIGH request for a peer's
// forwarding entry on the given VXLAN and WireGuard interface indices.
func fdbMessage(peer mesh.Peer, vxIndex, wgIndex int) (nl.Message, error) {
	hdr := make([]byte, ndmsgLen)
	hdr[0] = unix.AF_BRIDGE
	nlenc.PutInt32(hdr[4:8], int32(vxIndex))
	nlenc.PutUint16(hdr[8:10], unix.NUD_PERMANENT)
	hdr[10] = unix.NTF_SELF

	ae := nl.NewAttributeEncoder()
	ae.Bytes(unix.NDA_LLADDR, zeroMAC)
	// Destination is the bare link-local address, no prefix length.
	ae.Bytes(unix.NDA_DST, peer.LinkLocal().Addr().AsSlice())
	ae.Uint32(unix.NDA_IFINDEX, uint32(wgIndex))
	attrs, err := ae.Encode()
	if err != nil {
		return nl.Message{}, fmt.Errorf("encode fdb attributes: %w", err)
	}

	msg := nl.Message{
		Header: nl.Header{
			Type:  unix.RTM_NEWNEIGH,
			Flags: nl.Request | nl.Acknowledge | nl.Create | nl.Append,
		},
		Data: append(hdr, attrs...),
	}
	if peer.Remove {
		msg.Header.Type = unix.RTM_DELNEIGH
		msg.Header.Flags = nl.Request | nl.Acknowledge
	}
	return msg, nil
}
