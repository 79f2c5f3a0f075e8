// Package ipguard classifies IP addresses against the special-use ranges
// relevant to server-side request forgery, extending the RFC 6890 IPv4 table
// with the IPv6 transition mechanisms that can smuggle a private IPv4 address
// past a naive check (IPv4-mapped, IPv4-compatible, 6to4, NAT64, Teredo).
package ipguard

import "net/netip"

var v4Special = mustPrefixes(
	"0.0.0.0/8",       // "this network"
	"10.0.0.0/8",      // private
	"100.64.0.0/10",   // carrier-grade NAT
	"127.0.0.0/8",     // loopback
	"169.254.0.0/16",  // link-local
	"172.16.0.0/12",   // private
	"192.0.0.0/24",    // IETF protocol assignments
	"192.0.2.0/24",    // TEST-NET-1
	"192.88.99.0/24",  // 6to4 relay anycast
	"192.168.0.0/16",  // private
	"198.18.0.0/15",   // benchmarking
	"198.51.100.0/24", // TEST-NET-2
	"203.0.113.0/24",  // TEST-NET-3
	"224.0.0.0/4",     // multicast
	"240.0.0.0/4",     // reserved, includes 255.255.255.255
)

var (
	v6SiteLocal     = netip.MustParsePrefix("fec0::/10")
	v6UniqueLocal   = netip.MustParsePrefix("fc00::/7")
	v6Documentation = netip.MustParsePrefix("2001:db8::/32")
	v6Teredo        = netip.MustParsePrefix("2001::/32")
	v6SixToFour     = netip.MustParsePrefix("2002::/16")
	v6NAT64         = netip.MustParsePrefix("64:ff9b::/96")
	v6Compatible    = netip.MustParsePrefix("::/96")
)

// IsPublic reports whether addr is outside every special-use range. Addresses
// that embed an IPv4 address (IPv4-mapped, 6to4, NAT64, Teredo) are classified
// by the embedded address, and IPv4-compatible IPv6 addresses are rejected
// outright.
func IsPublic(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}

	if addr.Is4() {
		return isPublic4(addr)
	}

	// IPv4-mapped ::ffff:0:0/96 classifies as the embedded IPv4 address.
	if addr.Is4In6() {
		return isPublic4(addr.Unmap())
	}

	if addr.IsUnspecified() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsMulticast() {
		return false
	}
	if v6SiteLocal.Contains(addr) || v6UniqueLocal.Contains(addr) || v6Documentation.Contains(addr) {
		return false
	}

	a16 := addr.As16()

	// Teredo embeds the server address in bytes 4..8 and the client address,
	// bit-inverted, in bytes 12..16. Either one pointing at a special-use
	// range makes the tunnel a bypass vector.
	if v6Teredo.Contains(addr) {
		server := netip.AddrFrom4([4]byte{a16[4], a16[5], a16[6], a16[7]})
		client := netip.AddrFrom4([4]byte{^a16[12], ^a16[13], ^a16[14], ^a16[15]})
		return isPublic4(server) && isPublic4(client)
	}

	// 6to4: 2002:AABB:CCDD::/48 embeds A.B.C.D.
	if v6SixToFour.Contains(addr) {
		return isPublic4(netip.AddrFrom4([4]byte{a16[2], a16[3], a16[4], a16[5]}))
	}

	// NAT64 well-known prefix embeds the IPv4 address in the last four bytes.
	if v6NAT64.Contains(addr) {
		return isPublic4(netip.AddrFrom4([4]byte{a16[12], a16[13], a16[14], a16[15]}))
	}

	// IPv4-compatible ::/96 (deprecated) is rejected; :: and ::1 were already
	// handled above.
	if v6Compatible.Contains(addr) {
		return false
	}

	return true
}

func isPublic4(addr netip.Addr) bool {
	for _, p := range v4Special {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

func mustPrefixes(specs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(specs))
	for _, s := range specs {
		out = append(out, netip.MustParsePrefix(s))
	}
	return out
}
