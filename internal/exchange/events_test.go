package exchange

import (
	"testing"
)

const validKey = "yL2nD1A5Xf0pJqR8sT3uVwXyZa1bC2dE3fG4hI5jK6w="

func TestPeerEventValidate(t *testing.T) {
	domains := []string{"welt", "nord"}

	tests := []struct {
		name    string
		event   PeerEvent
		wantErr bool
	}{
		{"valid", PeerEvent{PublicKey: validKey, Domain: "welt"}, false},
		{"valid removal", PeerEvent{PublicKey: validKey, Domain: "nord", Remove: true}, false},
		{"empty key", PeerEvent{Domain: "welt"}, true},
		{"short key", PeerEvent{PublicKey: "dG9vc2hvcnQ=", Domain: "welt"}, true},
		{"bad final char", PeerEvent{PublicKey: "yL2nD1A5Xf0pJqR8sT3uVwXyZa1bC2dE3fG4hI5jKBw=", Domain: "welt"}, true},
		{"missing padding", PeerEvent{PublicKey: validKey[:43], Domain: "welt"}, true},
		{"key with shell metacharacters", PeerEvent{PublicKey: "$(reboot)AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", Domain: "welt"}, true},
		{"unknown domain", PeerEvent{PublicKey: validKey, Domain: "sued"}, true},
		{"invalid domain chars", PeerEvent{PublicKey: validKey, Domain: "Welt!"}, true},
		{"empty domain", PeerEvent{PublicKey: validKey}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate(domains)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPeerEventPeer(t *testing.T) {
	event := PeerEvent{PublicKey: validKey, Domain: "welt", Remove: true}
	peer := event.Peer()

	if peer.PublicKey != validKey {
		t.Errorf("public key = %q, want %q", peer.PublicKey, validKey)
	}
	if peer.Domain != "welt" {
		t.Errorf("domain = %q, want welt", peer.Domain)
	}
	if !peer.Remove {
		t.Error("Remove = false, want true")
	}
}
