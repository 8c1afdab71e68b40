// Package mesh holds the peer model shared by the kernel adapters, the
// reconciler and the sweeper, plus the deterministic link-local address
// derivation every node in a mesh must agree on.
package mesh

import (
	"fmt"
	"net/netip"
	"regexp"
)

// Interface name prefixes per domain. These are hard external contracts:
// coexisting infrastructure addresses the same interfaces by these names,
// so renaming either prefix is a breaking change.
const (
	wireguardPrefix = "wg-"
	vxlanPrefix     = "vx-"
)

// maxDomainLen keeps prefixed interface names within IFNAMSIZ (15 usable
// bytes).
const maxDomainLen = 12

var domainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Peer is one remote endpoint of a WireGuard mesh, identified by its public
// key. Remove carries the desired state for a single reconciliation call:
// false means "ensure present", true means "ensure absent". Peers are never
// persisted; the kernel tables are the durable state.
type Peer struct {
	PublicKey string
	Domain    string
	Remove    bool
}

// LinkLocal returns the peer's /128 IPv6 link-local address, derived
// deterministically from its public key.
func (p Peer) LinkLocal() netip.Prefix {
	return DeriveLinkLocal(p.PublicKey)
}

// WireguardInterface returns the WireGuard interface name for the peer's
// domain.
func (p Peer) WireguardInterface() string {
	return WireguardInterfaceName(p.Domain)
}

// VXLANInterface returns the VXLAN bridge interface name for the peer's
// domain.
func (p Peer) VXLANInterface() string {
	return VXLANInterfaceName(p.Domain)
}

// WireguardInterfaceName maps a domain to its WireGuard interface.
func WireguardInterfaceName(domain string) string {
	return wireguardPrefix + domain
}

// VXLANInterfaceName maps a domain to its VXLAN bridge interface.
func VXLANInterfaceName(domain string) string {
	return vxlanPrefix + domain
}

// ValidateDomain checks that a domain name can serve as an interface name
// suffix.
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain is empty")
	}
	if len(domain) > maxDomainLen {
		return fmt.Errorf("domain %q exceeds %d characters and cannot form an interface name", domain, maxDomainLen)
	}
	if !domainPattern.MatchString(domain) {
		return fmt.Errorf("domain %q contains characters not allowed in interface names", domain)
	}
	return nil
}
