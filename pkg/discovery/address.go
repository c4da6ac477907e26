package discovery

import (
	"net"
	"sort"
	"strconv"
)

// SortIPsByPreference orders addresses for dialing a relay over HTTP.
// Priority order (highest to lowest):
//  1. IPv4 addresses
//  2. Global unicast IPv6
//  3. Unique local IPv6 (fc00::/7)
//  4. Link-local IPv6 (fe80::/10), which needs a zone to dial
//  5. Loopback
//
// The input slice is not modified.
func SortIPsByPreference(ips []net.IP) []net.IP {
	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})
	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	switch {
	case ip.To16() == nil:
		return 99
	case ip.IsLoopback():
		return 80
	case ip.IsMulticast(), ip.IsUnspecified():
		return 90
	case ip.To4() != nil:
		return 0
	case isUniqueLocal(ip):
		return 2
	case ip.IsGlobalUnicast():
		return 1
	case ip.IsLinkLocalUnicast():
		return 3
	default:
		return 10
	}
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address (ULA).
func isUniqueLocal(ip net.IP) bool {
	ip = ip.To16()
	if ip == nil || ip.To4() != nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}

// hostPort joins ip and port, adding the interface zone to link-local IPv6
// addresses when one is known.
func hostPort(ip net.IP, zone string, port int) string {
	host := ip.String()
	if zone != "" && ip.To4() == nil && ip.IsLinkLocalUnicast() {
		host += "%" + zone
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
