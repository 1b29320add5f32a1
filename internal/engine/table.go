package engine

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"flow-classifier/internal/metrics"
	"flow-classifier/internal/model"
)

// Config tunes a Table. The zero value is valid.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Table
}

// Table is a flow table: named rules kept in descending priority order and
// matched first-hit. Rules of equal priority keep the order in which they
// were last defined.
//
// Lookup runs lock-free against an immutable rule slice. Define and Delete
// build a new slice under a mutex and publish it atomically, so a lookup
// sees either the whole old table or the whole new one.
type Table[R any] struct {
	mu      sync.Mutex
	rules   atomic.Pointer[[]*Rule[R]]
	logger  *slog.Logger
	metrics *metrics.Table
}

// New creates an empty table. A zero Table is also empty and ready to use,
// logging to slog.Default.
func New[R any](cfg Config) *Table[R] {
	t := &Table[R]{logger: cfg.Logger, metrics: cfg.Metrics}
	t.rules.Store(&[]*Rule[R]{})
	return t
}

func (t *Table[R]) snapshot() []*Rule[R] {
	if rules := t.rules.Load(); rules != nil {
		return *rules
	}
	return nil
}

func (t *Table[R]) log() *slog.Logger {
	if t.logger == nil {
		return slog.Default()
	}
	return t.logger
}

// Define compiles a rule and inserts it, replacing any rule with the same
// name. On error the table is left untouched.
func (t *Table[R]) Define(name string, priority int, ref R, spec Spec) error {
	rule, err := NewRule(name, priority, ref, spec)
	t.metrics.ObserveDefine(err)
	if err != nil {
		t.log().Warn("Flow definition rejected", "flow", name, "error", err)
		return fmt.Errorf("flow %s: %w", name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.snapshot()
	next := make([]*Rule[R], 0, len(old)+1)
	replaced := false
	for _, r := range old {
		if r.name == name {
			replaced = true
			continue
		}
		next = append(next, r)
	}

	// First position holding a lower priority; equal priorities stay ahead.
	i := sort.Search(len(next), func(i int) bool {
		return next[i].priority < priority
	})
	next = append(next, nil)
	copy(next[i+1:], next[i:])
	next[i] = rule

	t.rules.Store(&next)
	t.metrics.SetRules(len(next))
	if replaced {
		t.log().Debug("Flow redefined", "flow", name, "priority", priority)
	} else {
		t.log().Debug("Flow defined", "flow", name, "priority", priority)
	}
	return nil
}

// Delete removes the named rule. Unknown names are ignored.
func (t *Table[R]) Delete(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.snapshot()
	for i, r := range old {
		if r.name != name {
			continue
		}
		next := make([]*Rule[R], 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		t.rules.Store(&next)
		t.metrics.ObserveDelete()
		t.metrics.SetRules(len(next))
		t.log().Debug("Flow deleted", "flow", name)
		return
	}
}

// Lookup returns the ref of the highest priority rule matching key. The bool
// is false when nothing matches.
func (t *Table[R]) Lookup(key model.LookupKey) (R, bool) {
	for _, r := range t.snapshot() {
		if r.Matches(key) {
			t.metrics.ObserveLookup(true)
			return r.ref, true
		}
	}
	t.metrics.ObserveLookup(false)
	var zero R
	return zero, false
}

// Size returns the number of rules.
func (t *Table[R]) Size() int {
	return len(t.snapshot())
}

// IsSorted reports whether rules are in non-increasing priority order.
func (t *Table[R]) IsSorted() bool {
	rules := t.snapshot()
	return sort.SliceIsSorted(rules, func(i, j int) bool {
		return rules[i].priority > rules[j].priority
	})
}

// Rules describes every rule in table order.
func (t *Table[R]) Rules() []RuleInfo {
	rules := t.snapshot()
	out := make([]RuleInfo, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Info())
	}
	return out
}

// Print writes a human readable dump of the table.
func (t *Table[R]) Print(w io.Writer) error {
	return PrintRules(w, t.Rules())
}

// Clear drops every rule.
func (t *Table[R]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules.Store(&[]*Rule[R]{})
	t.metrics.SetRules(0)
}

// PrintRules writes rules in the format used by Print.
func PrintRules(w io.Writer, rules []RuleInfo) error {
	for _, r := range rules {
		_, err := fmt.Fprintf(w,
			"flow %s priority %d ref %s\n"+
				"  protocols: %s\n"+
				"  dst-ports: %s\n"+
				"  src-ports: %s\n"+
				"  dst-addrs: %s\n"+
				"  src-addrs: %s\n",
			r.Name, r.Priority, r.Ref,
			r.Protocols, r.DstPorts, r.SrcPorts, r.DstAddrs, r.SrcAddrs)
		if err != nil {
			return err
		}
	}
	return nil
}
