package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Table holds the instruments of one flow table. A nil *Table records
// nothing.
type Table struct {
	rules       prometheus.Gauge
	defineOK    prometheus.Counter
	defineError prometheus.Counter
	deletes     prometheus.Counter
	lookupMatch prometheus.Counter
	lookupMiss  prometheus.Counter
}

// NewTable creates the instruments and registers them with reg. A nil reg
// leaves them unregistered.
func NewTable(reg prometheus.Registerer) *Table {
	factory := promauto.With(reg)
	defines := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "flowtable_defines_total",
		Help: "Total number of define calls, by result.",
	}, []string{"result"})
	lookups := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "flowtable_lookups_total",
		Help: "Total number of lookups, by result.",
	}, []string{"result"})
	return &Table{
		rules: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowtable_rules",
			Help: "Number of rules currently in the table.",
		}),
		defineOK:    defines.WithLabelValues("ok"),
		defineError: defines.WithLabelValues("error"),
		deletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowtable_deletes_total",
			Help: "Total number of rules removed by delete.",
		}),
		lookupMatch: lookups.WithLabelValues("match"),
		lookupMiss:  lookups.WithLabelValues("miss"),
	}
}

func (t *Table) SetRules(n int) {
	if t == nil {
		return
	}
	t.rules.Set(float64(n))
}

func (t *Table) ObserveDefine(err error) {
	if t == nil {
		return
	}
	if err != nil {
		t.defineError.Inc()
		return
	}
	t.defineOK.Inc()
}

func (t *Table) ObserveDelete() {
	if t == nil {
		return
	}
	t.deletes.Inc()
}

func (t *Table) ObserveLookup(matched bool) {
	if t == nil {
		return
	}
	if matched {
		t.lookupMatch.Inc()
		return
	}
	t.lookupMiss.Inc()
}
