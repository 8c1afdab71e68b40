package mesh

import (
	"crypto/md5"
	"net/netip"
)

// DeriveLinkLocal maps a WireGuard public key to the peer's IPv6 link-local
// address. Every node in the mesh must compute the same address for the same
// key, so the transform is fixed:
//
//  1. MD5 over the key bytes plus a single trailing newline. MD5 is not used
//     for security here, only as the mesh-wide address hash; changing it
//     would change every peer's address.
//  2. The first five hash octets behind a locally-administered 02 prefix
//     form a pseudo hardware address.
//  3. That address expands to a modified EUI-64 interface identifier under
//     the fe80::/10 link-local prefix.
//
// The result is always a /128 host prefix: this package manages single host
// addresses, never subnets. The function is total; any input string yields
// a deterministic address.
func DeriveLinkLocal(publicKey string) netip.Prefix {
	sum := md5.Sum([]byte(publicKey + "\n"))

	var addr [16]byte
	addr[0] = 0xfe
	addr[1] = 0x80
	// Modified EUI-64: the universal/local bit of the 02 prefix flips back
	// to zero and ff:fe splits the two halves of the pseudo-MAC.
	addr[8] = 0x00
	addr[9] = sum[0]
	addr[10] = sum[1]
	addr[11] = 0xff
	addr[12] = 0xfe
	addr[13] = sum[2]
	addr[14] = sum[3]
	addr[15] = sum[4]

	return netip.PrefixFrom(netip.AddrFrom16(addr), 128)
}
