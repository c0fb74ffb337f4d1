package handler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/yndnr/tokgate/internal/core/domain"
)

// TrustedProxies is the set of peers whose X-Forwarded-For is believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses CIDRs or bare addresses.
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if !strings.Contains(v, "/") {
			addr, err := netip.ParseAddr(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func (t TrustedProxies) contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the client address of r. The peer address is used unless
// the peer is trusted; then X-Forwarded-For is walked from the right and the
// first untrusted hop wins. Headers from untrusted peers are ignored.
func (t TrustedProxies) Resolve(r *http.Request) string {
	peer := peerIP(r)
	if !t.contains(peer) {
		return clipIP(peer)
	}

	hops := r.Header.Values("X-Forwarded-For")
	client := ""
	for i := len(hops) - 1; i >= 0 && client == ""; i-- {
		parts := strings.Split(hops[i], ",")
		for j := len(parts) - 1; j >= 0; j-- {
			hop := strings.TrimSpace(parts[j])
			if _, err := netip.ParseAddr(hop); err != nil {
				// Nothing left of a malformed hop can be trusted.
				return clipIP(peer)
			}
			if !t.contains(hop) {
				client = hop
				break
			}
		}
	}
	if client == "" {
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && len(hops) == 0 {
			if _, err := netip.ParseAddr(xri); err == nil {
				client = xri
			}
		}
	}
	if client == "" {
		client = peer
	}
	return clipIP(client)
}

type clientIPKey struct{}

// WithClientIP stores the resolved client address in ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the address resolved for r, or the peer address when no
// resolver ran. Forwarding headers are never read here.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return clipIP(peerIP(r))
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clipIP(ip string) string {
	if len(ip) > domain.MaxIPAddressLength {
		return ip[:domain.MaxIPAddressLength]
	}
	return ip
}
