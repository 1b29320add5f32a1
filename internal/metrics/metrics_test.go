package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRecordsObservations(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := NewTable(reg)

	m.SetRules(3)
	m.ObserveDefine(nil)
	m.ObserveDefine(errors.New("bad"))
	m.ObserveDelete()
	m.ObserveLookup(true)
	m.ObserveLookup(true)
	m.ObserveLookup(false)

	expected := `
# HELP flowtable_lookups_total Total number of lookups, by result.
# TYPE flowtable_lookups_total counter
flowtable_lookups_total{result="match"} 2
flowtable_lookups_total{result="miss"} 1
# HELP flowtable_rules Number of rules currently in the table.
# TYPE flowtable_rules gauge
flowtable_rules 3
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"flowtable_lookups_total", "flowtable_rules")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.defineError))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deletes))
}

func TestNilTableIsNoop(t *testing.T) {
	var m *Table
	assert.NotPanics(t, func() {
		m.SetRules(1)
		m.ObserveDefine(nil)
		m.ObserveDelete()
		m.ObserveLookup(false)
	})
}
