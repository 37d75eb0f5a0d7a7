package networks

import (
	"fmt"
	"net"
	"strings"

	"github.com/yl2chen/cidranger"
)

// Blocklist answers whether an address falls inside any blocked network.
// It is filled once at startup and safe for concurrent reads.
type Blocklist struct {
	ranger cidranger.Ranger
	size   int
}

// NewBlocklist parses the given CIDRs. A bare IP address is treated as a
// single-host network.
func NewBlocklist(cidrs []string) (*Blocklist, error) {
	b := &Blocklist{ranger: cidranger.NewPCTrieRanger()}
	for _, cidr := range cidrs {
		network, err := parseNetwork(cidr)
		if err != nil {
			return nil, err
		}
		if err := b.ranger.Insert(cidranger.NewBasicRangerEntry(*network)); err != nil {
			return nil, fmt.Errorf("insert %s: %w", cidr, err)
		}
		b.size++
	}
	return b, nil
}

func (b *Blocklist) Len() int {
	if b == nil {
		return 0
	}
	return b.size
}

// IsBlocked reports whether address is inside a blocked network. Unparseable
// addresses are never blocked.
func (b *Blocklist) IsBlocked(address string) (bool, error) {
	if b == nil || b.size == 0 {
		return false, nil
	}
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil {
		return false, nil
	}
	return b.ranger.Contains(ip)
}

func parseNetwork(cidr string) (*net.IPNet, error) {
	cidr = strings.TrimSpace(cidr)
	if !strings.Contains(cidr, "/") {
		ip := net.ParseIP(cidr)
		if ip == nil {
			return nil, fmt.Errorf("invalid network %q", cidr)
		}
		if ip4 := ip.To4(); ip4 != nil {
			return &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}, nil
		}
		return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
	}

	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid network %q: %w", cidr, err)
	}
	return network, nil
}
