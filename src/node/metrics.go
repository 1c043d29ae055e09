package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "parley"

// Sources of appended entries.
const (
	SourceLocal  = "local"
	SourceGossip = "gossip"
)

// Results of a pull.
const (
	SyncReplaced  = "replaced"
	SyncUpToDate  = "up_to_date"
	SyncStale     = "stale"
	SyncEmpty     = "empty"
	SyncMalformed = "malformed"
	SyncError     = "error"
)

// Metrics are the prometheus collectors of a node. Each Metrics has its own
// registry so that several nodes can live in the same process.
type Metrics struct {
	Registry *prometheus.Registry

	Appended     *prometheus.CounterVec
	Rejected     *prometheus.CounterVec
	Replaced     prometheus.Counter
	Syncs        *prometheus.CounterVec
	LedgerLength prometheus.Gauge
	Available    prometheus.Gauge
	Peers        prometheus.Gauge
	Companions   prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Appended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "appended_total",
			Help:      "Entries appended to the ledger, by source.",
		}, []string{"source"}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rejected_total",
			Help:      "Entries refused by the ledger, by reason.",
		}, []string{"reason"}),
		Replaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replaced_total",
			Help:      "Times the ledger was replaced by a longer chain.",
		}),
		Syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "syncs_total",
			Help:      "Chain pulls, by result.",
		}, []string{"result"}),
		LedgerLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ledger_length",
			Help:      "Number of entries in the ledger, genesis included.",
		}),
		Available: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "available",
			Help:      "Capacity left in the current window, as of the last change.",
		}),
		Peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "peers",
			Help:      "Number of identified peers.",
		}),
		Companions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "companions",
			Help:      "Number of known companion profiles.",
		}),
	}
}
