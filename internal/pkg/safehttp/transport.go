// Package safehttp provides an HTTP transport for calling operator-supplied
// URLs, such as authorization webhooks, without reaching internal addresses.
package safehttp

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// Blocked reports whether connections to ip are refused.
func Blocked(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// control runs after DNS resolution and before connect, so a hostname that
// resolves to a private address is refused too.
func control(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("failed to parse remote IP for %q", address)
	}
	if Blocked(ip) {
		return fmt.Errorf("access to private IP %s is denied", ip)
	}
	return nil
}

// NewTransport returns a transport that rejects loopback, private and
// link-local destinations.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, Control: control}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
