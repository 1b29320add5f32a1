package wellknown

import (
	"testing"
)

func TestLookupProtocolIgnoresCase(t *testing.T) {
	// Names from flow definitions arrive in any case.
	cases := map[string]uint8{
		"tcp":  TCP,
		"TCP":  TCP,
		"udP":  UDP,
		"ScTp": SCTP,
		"icmp": 1,
	}
	for name, want := range cases {
		got, ok := LookupProtocol(name)
		if !ok {
			t.Fatalf("expected %q to be registered", name)
		}
		if got != want {
			t.Errorf("LookupProtocol(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestLookupProtocolResolvesAliases(t *testing.T) {
	// Aliases resolve to the same number as the canonical name.
	for _, alias := range []string{"icmpv6", "ICMP6", "ipv6-icmp"} {
		got, ok := LookupProtocol(alias)
		if !ok || got != 58 {
			t.Errorf("expected %q to resolve to 58, got %d (ok=%v)", alias, got, ok)
		}
	}
}

func TestLookupProtocolReturnsFalseForUnknown(t *testing.T) {
	// tipc is deliberately not registered.
	if _, ok := LookupProtocol("tipc"); ok {
		t.Fatalf("expected tipc to be unknown")
	}
	if _, ok := LookupProtocol(""); ok {
		t.Fatalf("expected empty name to be unknown")
	}
}

func TestProtocolNameFallsBackToNumber(t *testing.T) {
	if got := ProtocolName(TCP); got != "tcp" {
		t.Errorf("expected tcp, got %s", got)
	}
	if got := ProtocolName(58); got != "ipv6-icmp" {
		t.Errorf("expected canonical name for 58, got %s", got)
	}
	if got := ProtocolName(253); got != "253" {
		t.Errorf("expected numeric fallback, got %s", got)
	}
}
