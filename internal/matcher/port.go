package matcher

import (
	"fmt"
	"strconv"
	"strings"
)

// PortRange is an inclusive port range in host order.
type PortRange struct {
	Low, High uint16
}

func (r PortRange) String() string {
	if r.Low == r.High {
		return strconv.Itoa(int(r.Low))
	}
	return fmt.Sprintf("%d-%d", r.Low, r.High)
}

// PortMatcher matches a port against a list of ranges.
type PortMatcher struct {
	ranges []PortRange
}

// ParsePorts compiles a spec like "22-30, 1025, 20000-30000". A blank spec
// means match-any.
func ParsePorts(spec string) (PortMatcher, error) {
	var m PortMatcher
	if strings.TrimSpace(spec) == "" {
		return m, nil
	}
	for _, token := range strings.Split(spec, ",") {
		r, err := parsePortRange(strings.TrimSpace(token))
		if err != nil {
			return PortMatcher{}, err
		}
		m.ranges = append(m.ranges, r)
	}
	return m, nil
}

func parsePortRange(token string) (PortRange, error) {
	lowStr, highStr, isRange := strings.Cut(token, "-")
	low, err := parsePort(lowStr)
	if err != nil {
		return PortRange{}, fmt.Errorf("%w: %q", ErrInvalidPortSpec, token)
	}
	high := low
	if isRange {
		high, err = parsePort(highStr)
		if err != nil {
			return PortRange{}, fmt.Errorf("%w: %q", ErrInvalidPortSpec, token)
		}
	}
	if low > high {
		return PortRange{}, fmt.Errorf("%w: %q: low end above high end", ErrInvalidPortSpec, token)
	}
	return PortRange{Low: low, High: high}, nil
}

func parsePort(s string) (uint16, error) {
	if !isDigits(s) {
		return 0, strconv.ErrSyntax
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

// Match reports whether port (host order) is in any range.
func (m PortMatcher) Match(port uint16) bool {
	if len(m.ranges) == 0 {
		return true
	}
	for _, r := range m.ranges {
		if port >= r.Low && port <= r.High {
			return true
		}
	}
	return false
}

// Any reports whether the matcher is match-any.
func (m PortMatcher) Any() bool {
	return len(m.ranges) == 0
}

// Ranges returns the stored ranges in spec order.
func (m PortMatcher) Ranges() []PortRange {
	out := make([]PortRange, len(m.ranges))
	copy(out, m.ranges)
	return out
}

func (m PortMatcher) String() string {
	if len(m.ranges) == 0 {
		return "any"
	}
	parts := make([]string, 0, len(m.ranges))
	for _, r := range m.ranges {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
