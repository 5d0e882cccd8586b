package fetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// HostPolicy decides which hosts the client may contact. The check runs
// before any network call is issued; there is no per-request opt-out.
// An empty Allowlist permits any public host; private and loopback
// addresses are refused unless AllowPrivateHosts is set.
type HostPolicy struct {
	// Allowlist contains hosts/domains that may be contacted, subdomains
	// included. Empty means no allowlist restriction.
	Allowlist []string
	// AllowPrivateHosts permits loopback and RFC1918 targets. Intended
	// for tests only.
	AllowPrivateHosts bool
}

// Allow returns nil when u may be fetched under this policy.
func (p *HostPolicy) Allow(u *url.URL) error {
	if u == nil || !isHTTPScheme(u) {
		return fmt.Errorf("unsupported URL scheme: %q", u)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if !p.AllowPrivateHosts && isLocalOrPrivateHost(host) {
		return fmt.Errorf("private host not allowed: %s", host)
	}
	if len(p.Allowlist) == 0 {
		return nil
	}
	for _, d := range p.Allowlist {
		if hostMatchesDomain(host, strings.ToLower(strings.TrimSpace(d))) {
			return nil
		}
	}
	return fmt.Errorf("host not in allowlist: %s", host)
}

// hostMatchesDomain reports whether host equals domain or is one of its
// subdomains.
func hostMatchesDomain(host, domain string) bool {
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || h == "localhost.localdomain" || h == "::1" || h == "[::1]" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return true
		}
	}
	return false
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
