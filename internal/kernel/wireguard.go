package kernel

import (
	"fmt"
	"net"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgmesh/internal/mesh"
)

// PeerTable manipulates the kernel WireGuard peer table through wgctrl.
type PeerTable struct{}

func (PeerTable) Name() string {
	return SubsystemWireguard
}

// Apply upserts or removes the peer entry on the domain's WireGuard
// interface. Present peers get their allowed source addresses replaced with
// exactly the derived link-local /128, so repeated applies converge instead
// of accumulating.
func (PeerTable) Apply(peer mesh.Peer) error {
	key, err := wgtypes.ParseKey(peer.PublicKey)
	if err != nil {
		return fmt.Errorf("parse public key %q: %w", peer.PublicKey, err)
	}

	client, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("open wireguard control socket: %w", err)
	}
	defer client.Close()

	iface := peer.WireguardInterface()
	cfg := wgtypes.Config{
		Peers: []wgtypes.PeerConfig{{
			PublicKey:         key,
			Remove:            peer.Remove,
			ReplaceAllowedIPs: true,
			AllowedIPs:        []net.IPNet{prefixToIPNet(peer.LinkLocal())},
		}},
	}
	if err := client.ConfigureDevice(iface, cfg); err != nil {
		return newInterfaceError(SubsystemWireguard, iface, err)
	}
	return nil
}
