package kernel

import (
	"fmt"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// DefaultStaleWindow is how long a peer may go without a completed
// handshake before it counts as stale.
const DefaultStaleWindow = 3 * time.Hour

// deviceLister is the slice of wgctrl.Client the detector needs.
type deviceLister interface {
	Device(name string) (*wgtypes.Device, error)
	Close() error
}

// StaleDetector inspects the live WireGuard peer table of an interface and
// reports peers whose tunnel is no longer in active use.
type StaleDetector struct {
	window time.Duration
	now    func() time.Time
	dial   func() (deviceLister, error)
}

// NewStaleDetector returns a detector with the given staleness window.
// A non-positive window falls back to DefaultStaleWindow.
func NewStaleDetector(window time.Duration) *StaleDetector {
	if window <= 0 {
		window = DefaultStaleWindow
	}
	return &StaleDetector{
		window: window,
		now:    time.Now,
		dial: func() (deviceLister, error) {
			return wgctrl.New()
		},
	}
}

// FindStalePeers returns the public keys of peers on iface whose last
// handshake is strictly older than the staleness window, including peers
// that never completed a handshake at all. Keys come back in the order the
// kernel reported them; that order is not stable across calls and callers
// must not depend on it.
//
// A missing interface is an InterfaceError, never an empty result: "no
// peers" and "no interface" are different answers.
func (d *StaleDetector) FindStalePeers(iface string) ([]string, error) {
	client, err := d.dial()
	if err != nil {
		return nil, fmt.Errorf("open wireguard control socket: %w", err)
	}
	defer client.Close()

	dev, err := client.Device(iface)
	if err != nil {
		return nil, newInterfaceError(SubsystemWireguard, iface, err)
	}

	cutoff := d.now().Add(-d.window)
	var stale []string
	for _, peer := range dev.Peers {
		// The zero time (no handshake ever) is always before the cutoff.
		if peer.LastHandshakeTime.Before(cutoff) {
			stale = append(stale, peer.PublicKey.String())
		}
	}
	return stale, nil
}

// CountPeers returns how many peers are currently configured on iface.
func (d *StaleDetector) CountPeers(iface string) (int, error) {
	client, err := d.dial()
	if err != nil {
		return 0, fmt.Errorf("open wireguard control socket: %w", err)
	}
	defer client.Close()

	dev, err := client.Device(iface)
	if err != nil {
		return 0, newInterfaceError(SubsystemWireguard, iface, err)
	}
	return len(dev.Peers), nil
}
