// Package urlguard validates notification endpoint URLs at sink construction
// time: https only, no credentials, no IP literals, optional exact host
// allow-list and segment-boundary path prefix. A URL that fails validation
// never causes a DNS lookup, connection, or cache write.
package urlguard

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrSchemeNotHTTPS    = errors.New("url scheme must be https")
	ErrUserinfoPresent   = errors.New("url must not contain credentials")
	ErrEmptyHost         = errors.New("url host is empty")
	ErrLocalhost         = errors.New("url host must not be localhost")
	ErrIPLiteral         = errors.New("url host must be a hostname, not an IP address")
	ErrForbiddenPort     = errors.New("url port must be 443")
	ErrHostNotAllowed    = errors.New("url host is not in the allowed host list")
	ErrPathOutsidePrefix = errors.New("url path is outside the allowed path prefix")
)

// Config describes the policy a sink URL is validated against.
type Config struct {
	// RawURL is the endpoint as configured.
	RawURL string

	// AllowedHosts restricts the host to an exact (case-insensitive) set.
	AllowedHosts []string

	// PathPrefix restricts the path with segment-boundary matching: "/send"
	// admits "/send" and "/send/x" but not "/sendMessage".
	PathPrefix string

	// DisablePublicIPCheck turns the DNS preflight off. Allowed only when
	// AllowedHosts is set.
	DisablePublicIPCheck bool

	// Strict requires AllowedHosts and PathPrefix to be set and forbids
	// disabling the public IP check.
	Strict bool
}

// Policy is the validated form of a Config, built once per sink.
type Policy struct {
	URL           *url.URL
	Host          string
	AllowedHosts  []string
	PathPrefix    string
	PublicIPCheck bool
	Strict        bool
}

// New validates cfg and returns the resulting policy. All violations are
// collected and reported together.
func New(cfg Config) (*Policy, error) {
	var result *multierror.Error

	raw, err := CleanField("url", cfg.RawURL)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	if u.Scheme != "https" {
		result = multierror.Append(result, ErrSchemeNotHTTPS)
	}
	if u.User != nil {
		result = multierror.Append(result, ErrUserinfoPresent)
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == "":
		result = multierror.Append(result, ErrEmptyHost)
	case host == "localhost":
		result = multierror.Append(result, ErrLocalhost)
	default:
		if _, err := netip.ParseAddr(host); err == nil {
			result = multierror.Append(result, ErrIPLiteral)
		}
	}

	if port := u.Port(); port != "" && port != "443" {
		result = multierror.Append(result, fmt.Errorf("%w, got %s", ErrForbiddenPort, port))
	}

	allowed := make([]string, 0, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		h, err := CleanField("allowed host", h)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		allowed = append(allowed, strings.ToLower(h))
	}
	if len(allowed) > 0 && !containsHost(allowed, host) {
		result = multierror.Append(result, fmt.Errorf("%w: %s", ErrHostNotAllowed, host))
	}

	prefix := strings.TrimSpace(cfg.PathPrefix)
	if prefix != "" && !MatchesPathPrefix(u.Path, prefix) {
		result = multierror.Append(result, fmt.Errorf("%w: prefix %s", ErrPathOutsidePrefix, prefix))
	}

	if cfg.Strict {
		if len(allowed) == 0 {
			result = multierror.Append(result, errors.New("strict mode requires a non-empty allowed host list"))
		}
		if prefix == "" {
			result = multierror.Append(result, errors.New("strict mode requires a non-empty path prefix"))
		}
		if cfg.DisablePublicIPCheck {
			result = multierror.Append(result, errors.New("strict mode forbids disabling the public IP check"))
		}
	}
	if cfg.DisablePublicIPCheck && len(allowed) == 0 {
		result = multierror.Append(result, errors.New("disabling the public IP check requires an allowed host list"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	return &Policy{
		URL:           u,
		Host:          host,
		AllowedHosts:  allowed,
		PathPrefix:    prefix,
		PublicIPCheck: !cfg.DisablePublicIPCheck || cfg.Strict,
		Strict:        cfg.Strict,
	}, nil
}

// MatchesPathPrefix reports whether path matches prefix on segment
// boundaries: an exact match, or prefix followed by "/".
func MatchesPathPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// CleanField trims surrounding whitespace from a required configuration field
// and rejects it when the result is empty. The field value itself never
// appears in the error.
func CleanField(name, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	return v, nil
}

func containsHost(hosts []string, host string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}
