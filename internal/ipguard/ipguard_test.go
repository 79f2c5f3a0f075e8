package ipguard

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPublicIPv4(t *testing.T) {
	private := []string{
		"0.0.0.1",
		"10.0.0.1",
		"100.64.0.1",
		"100.127.255.255",
		"127.0.0.1",
		"169.254.10.20",
		"172.16.0.1",
		"172.31.255.255",
		"192.0.0.5",
		"192.0.2.1",
		"192.88.99.1",
		"192.168.1.1",
		"198.18.0.1",
		"198.19.255.255",
		"198.51.100.7",
		"203.0.113.9",
		"224.0.0.1",
		"239.255.255.255",
		"240.0.0.1",
		"255.255.255.255",
	}
	for _, s := range private {
		require.False(t, IsPublic(netip.MustParseAddr(s)), "expected %s to be rejected", s)
	}

	public := []string{
		"1.1.1.1",
		"8.8.8.8",
		"100.63.255.255",
		"172.32.0.1",
		"192.0.1.1",
		"198.17.255.255",
		"203.0.114.1",
		"223.255.255.255",
	}
	for _, s := range public {
		require.True(t, IsPublic(netip.MustParseAddr(s)), "expected %s to be public", s)
	}
}

func TestIsPublicIPv6(t *testing.T) {
	private := []string{
		"::",
		"::1",
		"fe80::1",
		"fec0::1",
		"fc00::1",
		"fd12:3456:789a::1",
		"ff02::1",
		"2001:db8::1",
	}
	for _, s := range private {
		require.False(t, IsPublic(netip.MustParseAddr(s)), "expected %s to be rejected", s)
	}

	public := []string{
		"2606:4700:4700::1111",
		"2a00:1450:4001::1",
	}
	for _, s := range public {
		require.True(t, IsPublic(netip.MustParseAddr(s)), "expected %s to be public", s)
	}
}

func TestIsPublicEmbeddedIPv4(t *testing.T) {
	cases := []struct {
		name string
		addr string
		want bool
	}{
		{"mapped_private", "::ffff:10.0.0.1", false},
		{"mapped_loopback", "::ffff:127.0.0.1", false},
		{"mapped_public", "::ffff:8.8.8.8", true},
		{"compatible_rejected", "::8.8.8.8", false},
		{"6to4_private", "2002:0a00:0001::", false},
		{"6to4_public", "2002:0808:0808::", true},
		{"nat64_private", "64:ff9b::7f00:1", false},
		{"nat64_private_ten", "64:ff9b::0a00:0001", false},
		{"nat64_public", "64:ff9b::808:808", true},
		{"teredo_private_server", "2001:0:0a00:0001::1", false},
		// Client bits invert to 10.0.0.1.
		{"teredo_private_client", "2001:0:0808:0808::f5ff:fffe", false},
		{"teredo_public", "2001:0:0808:0808::f7f7:f7f7", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsPublic(netip.MustParseAddr(tc.addr)))
		})
	}
}
