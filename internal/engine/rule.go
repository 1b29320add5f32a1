package engine

import (
	"fmt"

	"flow-classifier/internal/matcher"
	"flow-classifier/internal/model"
)

// Spec is the textual definition handed to Define. Empty fields mean
// match-any.
type Spec struct {
	Protocols []string
	DstPorts  string
	SrcPorts  string
	DstAddrs  []string
	SrcAddrs  []string
}

// SpecFromDef extracts the matcher fields of a flow definition.
func SpecFromDef(def model.FlowDef) Spec {
	return Spec{
		Protocols: def.Protocols,
		DstPorts:  def.DstPorts,
		SrcPorts:  def.SrcPorts,
		DstAddrs:  def.DstAddrs,
		SrcAddrs:  def.SrcAddrs,
	}
}

// Rule is one compiled flow. It is never modified after NewRule returns.
type Rule[R any] struct {
	name     string
	priority int
	ref      R

	protocols matcher.ProtocolMatcher
	dstPorts  matcher.PortMatcher
	srcPorts  matcher.PortMatcher
	dstAddrs  matcher.AddressMatcher
	srcAddrs  matcher.AddressMatcher
}

// NewRule compiles spec. Fields are validated in the order protocols,
// destination ports, source ports, destination addresses, source addresses,
// and the first failure is returned.
func NewRule[R any](name string, priority int, ref R, spec Spec) (*Rule[R], error) {
	r := &Rule[R]{name: name, priority: priority, ref: ref}
	var err error
	if r.protocols, err = matcher.ParseProtocols(spec.Protocols); err != nil {
		return nil, fmt.Errorf("protocols: %w", err)
	}
	if r.dstPorts, err = matcher.ParsePorts(spec.DstPorts); err != nil {
		return nil, fmt.Errorf("destination ports: %w", err)
	}
	if r.srcPorts, err = matcher.ParsePorts(spec.SrcPorts); err != nil {
		return nil, fmt.Errorf("source ports: %w", err)
	}
	if r.dstAddrs, err = matcher.ParseAddresses(spec.DstAddrs); err != nil {
		return nil, fmt.Errorf("destination addresses: %w", err)
	}
	if r.srcAddrs, err = matcher.ParseAddresses(spec.SrcAddrs); err != nil {
		return nil, fmt.Errorf("source addresses: %w", err)
	}
	return r, nil
}

func (r *Rule[R]) Name() string  { return r.name }
func (r *Rule[R]) Priority() int { return r.priority }
func (r *Rule[R]) Ref() R        { return r.ref }

// Matches reports whether every matcher of r accepts key.
func (r *Rule[R]) Matches(key model.LookupKey) bool {
	return r.protocols.Match(key.Protocol) &&
		r.dstPorts.Match(key.DstPort) &&
		r.srcPorts.Match(key.SrcPort) &&
		r.dstAddrs.Match(key.Dst) &&
		r.srcAddrs.Match(key.Src)
}

// RuleInfo is a printable description of a rule.
type RuleInfo struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Ref       string `json:"ref"`
	Protocols string `json:"protocols"`
	DstPorts  string `json:"dstPorts"`
	SrcPorts  string `json:"srcPorts"`
	DstAddrs  string `json:"dstAddrs"`
	SrcAddrs  string `json:"srcAddrs"`
}

// Info describes r. The ref is formatted with %v.
func (r *Rule[R]) Info() RuleInfo {
	return RuleInfo{
		Name:      r.name,
		Priority:  r.priority,
		Ref:       fmt.Sprintf("%v", r.ref),
		Protocols: r.protocols.String(),
		DstPorts:  r.dstPorts.String(),
		SrcPorts:  r.srcPorts.String(),
		DstAddrs:  r.dstAddrs.String(),
		SrcAddrs:  r.srcAddrs.String(),
	}
}
