package model

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Addr is a 128-bit address. IPv4 addresses are held in IPv4-mapped IPv6
// form (::ffff:a.b.c.d) so both families compare as 16 bytes.
type Addr [16]byte

// AddrFrom maps ip into the unified form. Zones are dropped.
func AddrFrom(ip netip.Addr) Addr {
	if !ip.IsValid() {
		return Addr{}
	}
	return Addr(ip.WithZone("").As16())
}

// ParseAddr parses a dotted-quad or colon-hex literal.
func ParseAddr(s string) (Addr, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return Addr{}, err
	}
	if ip.Zone() != "" {
		return Addr{}, fmt.Errorf("zoned address %q not supported", s)
	}
	return AddrFrom(ip), nil
}

// MustParseAddr is like ParseAddr but panics on error.
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IP returns a as a 16-byte netip.Addr. Mapped IPv4 addresses stay in their
// IPv6 form; use Unmap to get the 4-byte form.
func (a Addr) IP() netip.Addr {
	return netip.AddrFrom16(a)
}

// Is4 reports whether a is an IPv4-mapped address.
func (a Addr) Is4() bool {
	return a.IP().Is4In6()
}

func (a Addr) String() string {
	return a.IP().Unmap().String()
}

// LookupKey is the 5-tuple of one packet. Ports are host order; protocols
// without ports carry zero.
type LookupKey struct {
	Src      Addr
	Dst      Addr
	Protocol uint8
	SrcPort  uint16
	DstPort  uint16
}

// KeyFromWire builds a key from raw header fields, with the ports still in
// network byte order.
func KeyFromWire(src, dst [16]byte, proto uint8, srcPort, dstPort [2]byte) LookupKey {
	return LookupKey{
		Src:      Addr(src),
		Dst:      Addr(dst),
		Protocol: proto,
		SrcPort:  binary.BigEndian.Uint16(srcPort[:]),
		DstPort:  binary.BigEndian.Uint16(dstPort[:]),
	}
}

func (k LookupKey) String() string {
	return fmt.Sprintf("%d %s:%d -> %s:%d", k.Protocol, k.Src, k.SrcPort, k.Dst, k.DstPort)
}

// FlowDef is the textual definition of one flow as read from a flow source.
// Empty fields mean match-any.
type FlowDef struct {
	Name      string   `yaml:"name" json:"name"`
	Priority  int      `yaml:"priority" json:"priority"`
	Ref       string   `yaml:"ref" json:"ref"`
	Protocols []string `yaml:"protocols,omitempty" json:"protocols,omitempty"`
	DstPorts  string   `yaml:"dstPorts,omitempty" json:"dstPorts,omitempty"`
	SrcPorts  string   `yaml:"srcPorts,omitempty" json:"srcPorts,omitempty"`
	DstAddrs  []string `yaml:"dstAddrs,omitempty" json:"dstAddrs,omitempty"`
	SrcAddrs  []string `yaml:"srcAddrs,omitempty" json:"srcAddrs,omitempty"`
	Disabled  bool     `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// LabeledKey is a lookup key read from a key source.
type LabeledKey struct {
	Label string
	Key   LookupKey
}

// Target is the user reference attached to flows loaded from a flow source.
type Target struct {
	Flow string
	Ref  string
}

func (t Target) String() string {
	return t.Ref
}

// Classification is the outcome of one lookup as written by the CLI.
type Classification struct {
	Label   string
	Key     LookupKey
	Matched bool
	Target  Target
}
