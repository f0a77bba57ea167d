package netutil

import (
	"net"
)

// IsPrivateIP returns true if the IP is in a private, loopback, link-local
// or otherwise non-routable range. Continuation URLs arrive inside upstream
// response bodies, so outbound fetches refuse to dial into the local
// network.
func IsPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified()
}

// CheckHost resolves a hostname and reports whether any of its addresses
// fall in a non-routable range.
func CheckHost(ips []net.IPAddr) bool {
	for _, ip := range ips {
		if IsPrivateIP(ip.IP) {
			return true
		}
	}
	return false
}
