package kernel

import (
	"bytes"
	"testing"

	nl "github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"

	"wgmesh/internal/mesh"
)

func TestFDBMessageAppend(t *testing.T) {
	peer := mesh.Peer{PublicKey: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", Domain: "welt"}

	msg, err := fdbMessage(peer, 7, 9)
	if err != nil {
		t.Fatalf("fdbMessage: %v", err)
	}

	if msg.Header.Type != unix.RTM_NEWNEIGH {
		t.Errorf("message type = %d, want RTM_NEWNEIGH", msg.Header.Type)
	}
	wantFlags := nl.Request | nl.Acknowledge | nl.Create | nl.Append
	if msg.Header.Flags != wantFlags {
		t.Errorf("message flags = %v, want %v", msg.Header.Flags, wantFlags)
	}

	if len(msg.Data) < ndmsgLen {
		t.Fatalf("message data too short: %d bytes", len(msg.Data))
	}
	if msg.Data[0] != unix.AF_BRIDGE {
		t.Errorf("ndmsg family = %d, want AF_BRIDGE", msg.Data[0])
	}
	if got := nlenc.Int32(msg.Data[4:8]); got != 7 {
		t.Errorf("ndmsg ifindex = %d, want 7 (vxlan interface)", got)
	}
	if got := nlenc.Uint16(msg.Data[8:10]); got != unix.NUD_PERMANENT {
		t.Errorf("ndmsg state = %d, want NUD_PERMANENT", got)
	}
	if msg.Data[10] != unix.NTF_SELF {
		t.Errorf("ndmsg flags = %d, want NTF_SELF", msg.Data[10])
	}

	ad, err := nl.NewAttributeDecoder(msg.Data[ndmsgLen:])
	if err != nil {
		t.Fatalf("decode attributes: %v", err)
	}
	var sawLladdr, sawDst, sawIfindex bool
	for ad.Next() {
		switch ad.Type() {
		case unix.NDA_LLADDR:
			sawLladdr = true
			if !bytes.Equal(ad.Bytes(), zeroMAC) {
				t.Errorf("NDA_LLADDR = %x, want all-zero MAC", ad.Bytes())
			}
		case unix.NDA_DST:
			sawDst = true
			want := peer.LinkLocal().Addr().AsSlice()
			if !bytes.Equal(ad.Bytes(), want) {
				t.Errorf("NDA_DST = %x, want %x", ad.Bytes(), want)
			}
		case unix.NDA_IFINDEX:
			sawIfindex = true
			if ad.Uint32() != 9 {
				t.Errorf("NDA_IFINDEX = %d, want 9 (wireguard interface)", ad.Uint32())
			}
		}
	}
	if err := ad.Err(); err != nil {
		t.Fatalf("attribute decoder: %v", err)
	}
	if !sawLladdr || !sawDst || !sawIfindex {
		t.Fatalf("missing attributes: lladdr=%v dst=%v ifindex=%v", sawLladdr, sawDst, sawIfindex)
	}
}

func TestFDBMessageDelete(t *testing.T) {
	peer := mesh.Peer{PublicKey: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", Domain: "welt", Remove: true}

	msg, err := fdbMessage(peer, 3, 4)
	if err != nil {
		t.Fatalf("fdbMessage: %v", err)
	}

	if msg.Header.Type != unix.RTM_DELNEIGH {
		t.Errorf("message type = %d, want RTM_DELNEIGH", msg.Header.Type)
	}
	if msg.Header.Flags != nl.Request|nl.Acknowledge {
		t.Errorf("delete must not carry create/append flags, got %v", msg.Header.Flags)
	}
}
