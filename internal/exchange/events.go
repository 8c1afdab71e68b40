// Package exchange subscribes to the key-exchange message bus and turns
// peer announcements into kernel reconciliations.
package exchange

import (
	"fmt"
	"regexp"
	"slices"

	"wgmesh/internal/mesh"
)

// wgPublicKeyPattern matches a base64-encoded Curve25519 public key as
// WireGuard prints it.
var wgPublicKeyPattern = regexp.MustCompile(`^[A-Za-z0-9+/]{42}[AEIMQUYcgkosw480]=$`)

// PeerEvent announces a peer's desired state for one domain. Remove is
// false for the common "peer joined, ensure present" announcement.
type PeerEvent struct {
	PublicKey string `json:"public_key"`
	Domain    string `json:"domain"`
	Remove    bool   `json:"remove,omitempty"`
}

// Validate checks the event against the key format and the operator's
// domain list.
func (e PeerEvent) Validate(domains []string) error {
	if !wgPublicKeyPattern.MatchString(e.PublicKey) {
		return fmt.Errorf("invalid public key %q", e.PublicKey)
	}
	if err := mesh.ValidateDomain(e.Domain); err != nil {
		return err
	}
	if !slices.Contains(domains, e.Domain) {
		return fmt.Errorf("unknown domain %q", e.Domain)
	}
	return nil
}

// Peer converts the event into the reconciler's peer model.
func (e PeerEvent) Peer() mesh.Peer {
	return mesh.Peer{
		PublicKey: e.PublicKey,
		Domain:    e.Domain,
		Remove:    e.Remove,
	}
}
