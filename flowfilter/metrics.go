package flowfilter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts pipeline results. A nil *Metrics counts nothing.
type Metrics struct {
	packets *prometheus.CounterVec
	actions *prometheus.CounterVec
}

// NewMetrics creates the pipeline counters and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowfilter_packets_total",
			Help: "Number of packets evaluated by flow filters, by verdict.",
		}, []string{"verdict"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowfilter_actions_applied_total",
			Help: "Number of field actions applied to packets, by action type.",
		}, []string{"action"}),
	}
	for _, c := range []prometheus.Collector{m.packets, m.actions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) packetEvaluated(v Verdict) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(v.String()).Inc()
}

func (m *Metrics) actionApplied(kind ActionKind) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind.String()).Inc()
}
