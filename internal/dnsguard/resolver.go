package dnsguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

const defaultResolverTimeout = 5 * time.Second

var errNotFound = errors.New("could not find DNS record for target")

// NameserverResolver resolves hosts against an explicit nameserver instead of
// the OS resolver, querying A and AAAA records directly.
type NameserverResolver struct {
	Nameserver string
	Port       string
	Network    string
	Timeout    time.Duration
}

// NewNameserverResolver builds a resolver for the given server. It defaults
// to port 53 if no port is supplied.
func NewNameserverResolver(nameserver, port, network string) *NameserverResolver {
	if port == "" {
		port = "53"
	}

	return &NameserverResolver{
		Nameserver: nameserver,
		Port:       port,
		Network:    network,
		Timeout:    defaultResolverTimeout,
	}
}

// LookupNetIP satisfies the Resolver interface. The network argument follows
// *net.Resolver semantics: "ip", "ip4" or "ip6".
func (r *NameserverResolver) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	fqdn := dns.Fqdn(host)

	var addrs []netip.Addr
	if network == "ip" || network == "ip4" {
		recs, err := resolve[*dns.A](ctx, r, fqdn, dns.TypeA)
		if err != nil && !errors.Is(err, errNotFound) {
			return nil, err
		}
		for _, rec := range recs {
			if a, ok := netip.AddrFromSlice(rec.A.To4()); ok {
				addrs = append(addrs, a)
			}
		}
	}
	if network == "ip" || network == "ip6" {
		recs, err := resolve[*dns.AAAA](ctx, r, fqdn, dns.TypeAAAA)
		if err != nil && !errors.Is(err, errNotFound) {
			return nil, err
		}
		for _, rec := range recs {
			if a, ok := netip.AddrFromSlice(rec.AAAA); ok {
				addrs = append(addrs, a)
			}
		}
	}

	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: errNotFound.Error(), Name: host, IsNotFound: true}
	}
	return addrs, nil
}

// resolve queries the configured nameserver for records of the given type.
func resolve[DNSType *dns.A | *dns.AAAA](ctx context.Context, resolver *NameserverResolver, target string, recordType uint16) ([]DNSType, error) {
	c := dns.Client{
		Net:     resolver.Network,
		Timeout: resolver.Timeout,
	}

	m := dns.Msg{}
	m.SetQuestion(target, recordType)

	msg, _, err := c.ExchangeContext(ctx, &m, net.JoinHostPort(resolver.Nameserver, resolver.Port))
	if err != nil {
		return nil, err
	}

	if len(msg.Answer) == 0 {
		return nil, errNotFound
	}

	result := make([]DNSType, 0, len(msg.Answer))
	for _, ans := range msg.Answer {
		res, ok := ans.(DNSType)
		if !ok {
			// CNAME chains interleave other record types in the answer.
			continue
		}

		result = append(result, res)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("got no usable DNS records for %s", target)
	}

	return result, nil
}
