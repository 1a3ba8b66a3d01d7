// Package metrics implements engine.Metrics on Prometheus client types, the
// way the pack's other daemons expose operational counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Prometheus-backed engine.Metrics implementation. The zero
// value is not usable; call New. Metrics implements prometheus.Collector
// so it can be registered directly with a *prometheus.Registry.
type Metrics struct {
	drops          *prometheus.CounterVec
	rreqOriginated prometheus.Counter
	rreqForwarded  prometheus.Counter
	rrepOriginated prometheus.Counter
	rrepForwarded  prometheus.Counter
	routingSetSize prometheus.Gauge
}

// New constructs a Metrics. namespace prefixes every metric name (e.g.
// "aodvv2_drops_total"); pass "" to use the default "aodvv2" namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "aodvv2"
	}
	return &Metrics{
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drops_total",
			Help:      "Messages dropped by the protocol engine, labeled by cause.",
		}, []string{"cause"}),
		rreqOriginated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rreq_originated_total",
			Help:      "RREQ messages originated by this router.",
		}),
		rreqForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rreq_forwarded_total",
			Help:      "RREQ messages forwarded by this router.",
		}),
		rrepOriginated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rrep_originated_total",
			Help:      "RREP messages originated by this router.",
		}),
		rrepForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rrep_forwarded_total",
			Help:      "RREP messages forwarded by this router.",
		}),
		routingSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routing_set_size",
			Help:      "Current number of live entries in the Routing Information Set.",
		}),
	}
}

func (m *Metrics) IncDrop(cause string)        { m.drops.WithLabelValues(cause).Inc() }
func (m *Metrics) IncRREQOriginated()          { m.rreqOriginated.Inc() }
func (m *Metrics) IncRREQForwarded()           { m.rreqForwarded.Inc() }
func (m *Metrics) IncRREPOriginated()          { m.rrepOriginated.Inc() }
func (m *Metrics) IncRREPForwarded()           { m.rrepForwarded.Inc() }
func (m *Metrics) ObserveRoutingSetSize(n int) { m.routingSetSize.Set(float64(n)) }

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.drops.Describe(ch)
	ch <- m.rreqOriginated.Desc()
	ch <- m.rreqForwarded.Desc()
	ch <- m.rrepOriginated.Desc()
	ch <- m.rrepForwarded.Desc()
	ch <- m.routingSetSize.Desc()
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.drops.Collect(ch)
	ch <- m.rreqOriginated
	ch <- m.rreqForwarded
	ch <- m.rrepOriginated
	ch <- m.rrepForwarded
	ch <- m.routingSetSize
}
