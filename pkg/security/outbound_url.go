package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// BaseURLPolicy decides which provider endpoints a configuration may point
// the generators at. The zero value only accepts public https hosts.
type BaseURLPolicy struct {
	// AllowHTTP permits plain http endpoints.
	AllowHTTP bool
	// AllowLocalNetworks permits localhost and loopback, private and
	// link-local addresses, e.g. for a proxy running next to the server.
	AllowLocalNetworks bool
}

// Check validates rawURL without resolving it. Hostnames are only checked by
// name, IP literals by address range.
func (p BaseURLPolicy) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "invalid URL")
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return errors.New("http scheme is not allowed")
		}
	default:
		return errors.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return errors.New("URL host is required")
	}

	if !p.AllowLocalNetworks && isLocalHostname(host) {
		return errors.Errorf("local hostname %q is not allowed", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if addr.Zone() != "" && !p.AllowLocalNetworks {
		return errors.Errorf("zoned IP address %q is not allowed", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Errorf("disallowed IP address %q", host)
	}
	if !p.AllowLocalNetworks && isLocalAddr(addr) {
		return errors.Errorf("local network IP %q is not allowed", host)
	}
	return nil
}

func isLocalHostname(host string) bool {
	return host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
}

func isLocalAddr(addr netip.Addr) bool {
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
}
