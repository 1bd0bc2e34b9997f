// Package metrics declares the engine's Prometheus instrumentation:
// connection churn, commands by verb, rehash migrations, dictionary and
// ordered-index size, and bytes moved in each direction. Collectors are
// registered once at construction and passed down, never reached for via
// package-level globals.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the engine and dispatcher touch.
type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsClosed   prometheus.Counter
	CommandsTotal       *prometheus.CounterVec
	RehashMigrations    prometheus.Counter
	DictSize            prometheus.GaugeFunc
	IndexSize           prometheus.GaugeFunc
	BytesRead           prometheus.Counter
	BytesWritten        prometheus.Counter
}

// New constructs and registers every collector against reg. dictSize and
// indexSize are called lazily by the gauges on every scrape, so the engine
// never has to push size updates itself.
func New(reg prometheus.Registerer, dictSize, indexSize func() float64) *Metrics {
	m := &Metrics{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvserver",
			Name:      "connections_accepted_total",
			Help:      "Total TCP connections accepted by the listener.",
		}),
		ConnectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvserver",
			Name:      "connections_closed_total",
			Help:      "Total connections torn down (EOF, protocol error, or I/O error).",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvserver",
			Name:      "commands_total",
			Help:      "Commands dispatched, labeled by verb.",
		}, []string{"verb"}),
		RehashMigrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvserver",
			Name:      "rehash_migrations_total",
			Help:      "Entries moved from the secondary to the primary hash table.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvserver",
			Name:      "bytes_read_total",
			Help:      "Bytes read off client sockets.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvserver",
			Name:      "bytes_written_total",
			Help:      "Bytes written to client sockets.",
		}),
	}
	m.DictSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kvserver",
		Name:      "dict_entries",
		Help:      "Live entries in the dictionary.",
	}, dictSize)
	m.IndexSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kvserver",
		Name:      "index_entries",
		Help:      "Live entries in the ordered index.",
	}, indexSize)

	reg.MustRegister(
		m.ConnectionsAccepted,
		m.ConnectionsClosed,
		m.CommandsTotal,
		m.RehashMigrations,
		m.BytesRead,
		m.BytesWritten,
		m.DictSize,
		m.IndexSize,
	)
	return m
}
