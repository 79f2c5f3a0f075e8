// Package dnsguard performs the DNS preflight used by HTTP sinks: resolve the
// endpoint host under a bounded budget, with bounded concurrency across all
// hosts, a single in-flight lookup per host, and require every resolved
// address to be public before any connection is attempted. Results are cached
// briefly, failures more briefly still.
package dnsguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/omne42/notify-kit/internal/feature"
	"github.com/omne42/notify-kit/internal/ipguard"
)

const (
	defaultMaxConcurrent = 8
	defaultTotalBudget   = 3 * time.Second
	defaultResolveCap    = 2 * time.Second
	defaultPositiveTTL   = 30 * time.Second
	defaultTimeoutTTL    = 5 * time.Second
	defaultFailureTTL    = 10 * time.Second
)

// ErrorKind distinguishes the ways a preflight can fail.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota
	KindFailed
	KindPrivate
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "dns_timeout"
	case KindFailed:
		return "dns_failed"
	case KindPrivate:
		return "private_address"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// LookupError is the error returned by Check. It carries the failure kind and
// the host, never a resolved address or secret.
type LookupError struct {
	Kind ErrorKind
	Host string
	Err  error
}

func (e *LookupError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("dns lookup for %s timed out: %v", e.Host, e.Err)
	case KindPrivate:
		return fmt.Sprintf("host %s resolved to a non-public address", e.Host)
	default:
		return fmt.Sprintf("dns lookup for %s failed: %v", e.Host, e.Err)
	}
}

func (e *LookupError) Unwrap() error { return e.Err }

// Resolver resolves a hostname to IP addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Config tunes a Checker. The zero value selects the defaults.
type Config struct {
	// MaxConcurrent bounds simultaneous OS resolutions across all hosts.
	MaxConcurrent int64
	// TotalBudget is the whole preflight budget for a detached lookup,
	// semaphore wait included.
	TotalBudget time.Duration
	// ResolveCap is the hard upper bound on the resolution call itself,
	// regardless of remaining budget.
	ResolveCap time.Duration
	// PositiveTTL, TimeoutTTL and FailureTTL bound how long results and
	// failures are remembered.
	PositiveTTL time.Duration
	TimeoutTTL  time.Duration
	FailureTTL  time.Duration
	// Resolver overrides the OS resolver, e.g. with a NameserverResolver.
	Resolver Resolver
	// Clock is swapped for a mock in tests.
	Clock clock.Clock
}

type positiveEntry struct {
	addrs   []netip.Addr
	expires time.Time
}

type negativeEntry struct {
	err     *LookupError
	expires time.Time
}

// Checker runs preflights. It is safe for concurrent use and meant to be
// shared by every sink in the process.
type Checker struct {
	cfg      Config
	sem      *semaphore.Weighted
	group    singleflight.Group
	clk      clock.Clock
	resolver Resolver
	negCache bool

	mu       sync.Mutex
	positive map[string]positiveEntry
	negative map[string]negativeEntry
}

// New creates a Checker with cfg, filling in defaults for zero fields.
func New(cfg Config) *Checker {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.TotalBudget <= 0 {
		cfg.TotalBudget = defaultTotalBudget
	}
	if cfg.ResolveCap <= 0 {
		cfg.ResolveCap = defaultResolveCap
	}
	if cfg.PositiveTTL <= 0 {
		cfg.PositiveTTL = defaultPositiveTTL
	}
	if cfg.TimeoutTTL <= 0 {
		cfg.TimeoutTTL = defaultTimeoutTTL
	}
	if cfg.FailureTTL <= 0 {
		cfg.FailureTTL = defaultFailureTTL
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Checker{
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		clk:      cfg.Clock,
		resolver: cfg.Resolver,
		negCache: feature.DNSNegativeCache(),
		positive: make(map[string]positiveEntry),
		negative: make(map[string]negativeEntry),
	}
}

// Check resolves host and returns its addresses once every one of them is
// public. The caller's ctx bounds the wait; the resolution itself runs
// detached under the checker's own budget so concurrent callers share one
// lookup and an abandoned wait does not cancel it.
func (c *Checker) Check(ctx context.Context, host string) ([]netip.Addr, error) {
	host = strings.ToLower(host)

	if addrs, ok := c.lookupPositive(host); ok {
		return addrs, nil
	}
	if err, ok := c.lookupNegative(host); ok {
		return nil, err
	}

	ch := c.group.DoChan(host, func() (interface{}, error) {
		return c.resolve(host)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]netip.Addr), nil
	case <-ctx.Done():
		return nil, &LookupError{Kind: KindTimeout, Host: host, Err: ctx.Err()}
	}
}

// resolve performs the shared lookup. The semaphore permit is held only for
// the resolution call itself; classification happens after release.
func (c *Checker) resolve(host string) ([]netip.Addr, error) {
	defer c.group.Forget(host)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TotalBudget)
	defer cancel()

	// Semaphore wait is part of the budget; there is no per-stage re-budgeting.
	if err := c.sem.Acquire(ctx, 1); err != nil {
		lerr := &LookupError{
			Kind: KindTimeout,
			Host: host,
			Err:  fmt.Errorf("waiting for a resolver slot within %s budget: %w", c.cfg.TotalBudget, err),
		}
		c.storeNegative(host, lerr)
		return nil, lerr
	}

	// The remaining budget applies, capped at ResolveCap.
	rctx, rcancel := context.WithTimeout(ctx, c.cfg.ResolveCap)
	addrs, err := c.resolver.LookupNetIP(rctx, "ip", host)
	rcancel()
	c.sem.Release(1)

	if err != nil {
		lerr := c.classifyResolveError(host, err)
		c.storeNegative(host, lerr)
		return nil, lerr
	}
	if len(addrs) == 0 {
		lerr := &LookupError{Kind: KindFailed, Host: host, Err: errors.New("resolver returned no addresses")}
		c.storeNegative(host, lerr)
		return nil, lerr
	}

	deduped := dedupe(addrs)
	for _, addr := range deduped {
		if !ipguard.IsPublic(addr.Unmap()) {
			lerr := &LookupError{Kind: KindPrivate, Host: host}
			c.storeNegative(host, lerr)
			return nil, lerr
		}
	}

	c.storePositive(host, deduped)
	return deduped, nil
}

func (c *Checker) classifyResolveError(host string, err error) *LookupError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &LookupError{
			Kind: KindTimeout,
			Host: host,
			Err:  fmt.Errorf("resolution exceeded its budget (capped at %s): %w", c.cfg.ResolveCap, err),
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsTimeout {
		return &LookupError{
			Kind: KindTimeout,
			Host: host,
			Err:  fmt.Errorf("resolution exceeded its budget (capped at %s): %w", c.cfg.ResolveCap, err),
		}
	}
	return &LookupError{Kind: KindFailed, Host: host, Err: err}
}

func (c *Checker) lookupPositive(host string) ([]netip.Addr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.positive[host]
	if !ok || c.clk.Now().After(e.expires) {
		delete(c.positive, host)
		return nil, false
	}
	return e.addrs, true
}

func (c *Checker) lookupNegative(host string) (*LookupError, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.negative[host]
	if !ok || c.clk.Now().After(e.expires) {
		delete(c.negative, host)
		return nil, false
	}
	return e.err, true
}

func (c *Checker) storePositive(host string, addrs []netip.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positive[host] = positiveEntry{addrs: addrs, expires: c.clk.Now().Add(c.cfg.PositiveTTL)}
	delete(c.negative, host)
}

func (c *Checker) storeNegative(host string, err *LookupError) {
	if !c.negCache {
		return
	}
	ttl := c.cfg.FailureTTL
	if err.Kind == KindTimeout {
		ttl = c.cfg.TimeoutTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negative[host] = negativeEntry{err: err, expires: c.clk.Now().Add(ttl)}
}

func dedupe(addrs []netip.Addr) []netip.Addr {
	seen := make(map[netip.Addr]struct{}, len(addrs))
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
