package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// ResolveClientIP returns the effective client address. forwarded (an X-Forwarded-For
// value) is honoured only when the direct peer is inside one of trusted, and then only its
// left-most entry. peer may carry a port.
func ResolveClientIP(peer, forwarded string, trusted []*net.IPNet) string {
	ip := hostOnly(peer)
	if forwarded == "" || !contains(trusted, ip) {
		return ip
	}
	first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
	if parsed := net.ParseIP(first); parsed != nil {
		return parsed.String()
	}
	return ip
}

// ClientKey returns the storage key for a client/route pair: hex SHA-256 of "ip|route".
// Raw addresses are never used as keys.
func ClientKey(peer, forwarded string, trusted []*net.IPNet, route string) string {
	sum := sha256.Sum256([]byte(ResolveClientIP(peer, forwarded, trusted) + "|" + route))
	return hex.EncodeToString(sum[:])
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}

func contains(nets []*net.IPNet, ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
