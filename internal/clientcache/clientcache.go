// Package clientcache hands out TLS-only, redirect-free HTTP clients whose
// dialer is pinned to the addresses a DNS preflight resolved, closing the
// window between resolution and connect. Clients are cached per
// (host, timeout, pinned addresses) with a TTL and a capacity bound.
package clientcache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCapacity = 64
	defaultTTL      = 10 * time.Minute
)

// ErrRedirect is returned (wrapped in a *url.Error) when an endpoint answers
// with a redirect. Redirects are never followed: an allow-listed host must not
// be able to bounce the request elsewhere.
var ErrRedirect = errors.New("redirects are disabled for notification endpoints")

// Config tunes a Cache. The zero value selects the defaults.
type Config struct {
	Capacity int
	TTL      time.Duration
	Clock    clock.Clock
}

type entry struct {
	client   *http.Client
	expires  time.Time
	lastUsed time.Time
}

// Cache is a process-wide pinned-client cache, safe for concurrent use.
type Cache struct {
	capacity int
	ttl      time.Duration
	clk      clock.Clock

	mu      sync.Mutex
	entries map[string]*entry

	building singleflight.Group
}

// New creates a Cache, filling in defaults for zero config fields.
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Cache{
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		clk:      cfg.Clock,
		entries:  make(map[string]*entry),
	}
}

// Get returns a client for host with the given request timeout, dialing only
// the pinned addresses. An empty pinned list leaves dialing to the OS
// resolver (used when the preflight is disabled and the host allow-list
// carries the policy instead). The hit path never touches the build-lock
// table.
func (c *Cache) Get(host string, timeout time.Duration, pinned []netip.Addr) (*http.Client, error) {
	key := cacheKey(host, timeout, pinned)

	if client, ok := c.lookup(key); ok {
		return client, nil
	}

	v, err, _ := c.building.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a racing builder may have inserted.
		if client, ok := c.lookup(key); ok {
			return client, nil
		}
		client := c.build(host, timeout, pinned)
		c.insert(key, client)
		return client, nil
	})
	// The flight entry is dropped whether the build succeeded or not, so a
	// failed or abandoned build cannot leave a key behind.
	c.building.Forget(key)
	if err != nil {
		return nil, err
	}
	return v.(*http.Client), nil
}

// Len reports the number of cached clients.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (*http.Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := c.clk.Now()
	if now.After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	e.lastUsed = now
	return e.client, true
}

func (c *Cache) insert(key string, client *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if len(c.entries) >= c.capacity {
		c.evictOne(now)
	}
	c.entries[key] = &entry{client: client, expires: now.Add(c.ttl), lastUsed: now}
}

// evictOne removes a single entry: an expired one when available, otherwise
// the least recently used. Called with the lock held.
func (c *Cache) evictOne(now time.Time) {
	var (
		victim   string
		oldest   time.Time
		havePick bool
	)
	for key, e := range c.entries {
		if now.After(e.expires) {
			victim = key
			havePick = true
			break
		}
		if !havePick || e.lastUsed.Before(oldest) {
			victim = key
			oldest = e.lastUsed
			havePick = true
		}
	}
	if havePick {
		if e := c.entries[victim]; e != nil {
			e.client.CloseIdleConnections()
		}
		delete(c.entries, victim)
	}
}

func (c *Cache) build(host string, timeout time.Duration, pinned []netip.Addr) *http.Client {
	dialer := &net.Dialer{Timeout: timeout}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		},
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	if len(pinned) > 0 {
		addrs := make([]netip.Addr, len(pinned))
		copy(addrs, pinned)
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range addrs {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("no pinned address for %s", host)
			}
			return nil, lastErr
		}
	} else {
		transport.DialContext = dialer.DialContext
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return ErrRedirect
		},
	}
}

// cacheKey folds host, the full-precision timeout and the sorted pinned
// addresses into a single key, so sub-millisecond timeout differences do not
// alias distinct clients.
func cacheKey(host string, timeout time.Duration, pinned []netip.Addr) string {
	if len(pinned) == 0 {
		return fmt.Sprintf("%s|%d|", host, timeout.Nanoseconds())
	}
	strs := make([]string, len(pinned))
	for i, a := range pinned {
		strs[i] = a.String()
	}
	sort.Strings(strs)
	return fmt.Sprintf("%s|%d|%s", host, timeout.Nanoseconds(), strings.Join(strs, ","))
}
