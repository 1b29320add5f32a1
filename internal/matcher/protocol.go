package matcher

import (
	"fmt"
	"strings"

	"flow-classifier/pkg/wellknown"
)

// ProtocolMatcher matches an IP protocol number against a resolved set.
type ProtocolMatcher struct {
	protocols []uint8
}

// ParseProtocols resolves protocol names case-insensitively. The whole list
// fails if any name is unknown.
func ParseProtocols(names []string) (ProtocolMatcher, error) {
	var m ProtocolMatcher
	for _, name := range names {
		num, ok := wellknown.LookupProtocol(strings.TrimSpace(name))
		if !ok {
			return ProtocolMatcher{}, fmt.Errorf("%w: %q", ErrInvalidProtocol, name)
		}
		if !m.contains(num) {
			m.protocols = append(m.protocols, num)
		}
	}
	return m, nil
}

func (m ProtocolMatcher) contains(num uint8) bool {
	for _, p := range m.protocols {
		if p == num {
			return true
		}
	}
	return false
}

// Match reports whether proto is in the set.
func (m ProtocolMatcher) Match(proto uint8) bool {
	return len(m.protocols) == 0 || m.contains(proto)
}

// Any reports whether the matcher is match-any.
func (m ProtocolMatcher) Any() bool {
	return len(m.protocols) == 0
}

// Protocols returns the resolved protocol numbers.
func (m ProtocolMatcher) Protocols() []uint8 {
	out := make([]uint8, len(m.protocols))
	copy(out, m.protocols)
	return out
}

func (m ProtocolMatcher) String() string {
	if len(m.protocols) == 0 {
		return "any"
	}
	parts := make([]string, 0, len(m.protocols))
	for _, p := range m.protocols {
		parts = append(parts, wellknown.ProtocolName(p))
	}
	return strings.Join(parts, ",")
}
