package matcher

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"go4.org/netipx"

	"flow-classifier/internal/model"
)

// Definition errors. Callers match them with errors.Is.
var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidPortSpec = errors.New("invalid port spec")
	ErrInvalidProtocol = errors.New("invalid protocol")
)

// AddressMatcher matches addresses against a list of prefixes held in the
// unified 128-bit form. An IPv4 /N is stored as the mapped /(96+N).
type AddressMatcher struct {
	prefixes []netip.Prefix
}

// ParseAddresses compiles entries of the form "address[/length]". A missing
// length means a host prefix. No entries means match-any.
func ParseAddresses(specs []string) (AddressMatcher, error) {
	var m AddressMatcher
	for _, spec := range specs {
		p, err := parsePrefix(spec)
		if err != nil {
			return AddressMatcher{}, err
		}
		m.prefixes = append(m.prefixes, p)
	}
	return m, nil
}

func parsePrefix(spec string) (netip.Prefix, error) {
	s := strings.TrimSpace(spec)
	addrPart, lenPart, hasLen := strings.Cut(s, "/")

	ip, err := netip.ParseAddr(addrPart)
	if err != nil || ip.Zone() != "" {
		return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidAddress, spec)
	}

	bits := ip.BitLen()
	if hasLen {
		n, err := strconv.Atoi(lenPart)
		if err != nil || !isDigits(lenPart) || n > ip.BitLen() {
			return netip.Prefix{}, fmt.Errorf("%w: bad prefix length in %q", ErrInvalidAddress, spec)
		}
		bits = n
	}
	if ip.Is4() {
		bits += 96
	}

	p := netip.PrefixFrom(netip.AddrFrom16(ip.As16()), bits).Masked()
	if !p.IsValid() {
		return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidAddress, spec)
	}
	return p, nil
}

// Match reports whether addr falls in any stored prefix.
func (m AddressMatcher) Match(addr model.Addr) bool {
	if len(m.prefixes) == 0 {
		return true
	}
	ip := addr.IP()
	for _, p := range m.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// Any reports whether the matcher is match-any.
func (m AddressMatcher) Any() bool {
	return len(m.prefixes) == 0
}

// Prefixes returns the stored prefixes in mapped form.
func (m AddressMatcher) Prefixes() []netip.Prefix {
	out := make([]netip.Prefix, len(m.prefixes))
	copy(out, m.prefixes)
	return out
}

// IPSet returns the union of the stored prefixes, with mapped prefixes
// converted back to IPv4.
func (m AddressMatcher) IPSet() (*netipx.IPSet, error) {
	var sb netipx.IPSetBuilder
	for _, p := range m.prefixes {
		sb.AddPrefix(unmapPrefix(p))
	}
	return sb.IPSet()
}

// Ranges returns the covered address ranges, overlapping prefixes merged.
func (m AddressMatcher) Ranges() []netipx.IPRange {
	set, err := m.IPSet()
	if err != nil {
		return nil
	}
	return set.Ranges()
}

func (m AddressMatcher) String() string {
	if len(m.prefixes) == 0 {
		return "any"
	}
	parts := make([]string, 0, len(m.prefixes))
	for _, p := range m.prefixes {
		parts = append(parts, unmapPrefix(p).String())
	}
	return strings.Join(parts, ",")
}

// unmapPrefix turns ::ffff:a.b.c.d/(96+N) into a.b.c.d/N. Other prefixes are
// returned unchanged.
func unmapPrefix(p netip.Prefix) netip.Prefix {
	if p.Addr().Is4In6() && p.Bits() >= 96 {
		return netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
	}
	return p
}
