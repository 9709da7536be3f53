package blockstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for block store operations.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// PutsTotal counts Put calls by outcome.
	// Label values: "stored", "already_exists".
	PutsTotal *prometheus.CounterVec

	// BytesWrittenTotal counts leaf bytes written by new Puts.
	BytesWrittenTotal prometheus.Counter

	// GetsTotal counts Get calls by outcome.
	// Label values: "hit", "miss", "error".
	GetsTotal *prometheus.CounterVec

	// DeletesTotal counts leaves removed by DeleteIfUnreferenced.
	DeletesTotal prometheus.Counter
}

// NewMetrics creates and registers block store metrics with the given
// Prometheus registerer. If reg is nil, metrics are created but not
// registered (useful for testing).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libvault",
			Subsystem: "blockstore",
			Name:      "puts_total",
			Help:      "Total number of block puts by result",
		}, []string{"result"}),
		BytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libvault",
			Subsystem: "blockstore",
			Name:      "bytes_written_total",
			Help:      "Total leaf bytes written for newly stored blocks",
		}),
		GetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libvault",
			Subsystem: "blockstore",
			Name:      "gets_total",
			Help:      "Total number of block reads by result",
		}, []string{"result"}),
		DeletesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libvault",
			Subsystem: "blockstore",
			Name:      "deletes_total",
			Help:      "Total number of unreferenced blocks removed",
		}),
	}

	if reg != nil {
		m.PutsTotal = registerOrReuse(reg, m.PutsTotal).(*prometheus.CounterVec)
		m.BytesWrittenTotal = registerOrReuse(reg, m.BytesWrittenTotal).(prometheus.Counter)
		m.GetsTotal = registerOrReuse(reg, m.GetsTotal).(*prometheus.CounterVec)
		m.DeletesTotal = registerOrReuse(reg, m.DeletesTotal).(prometheus.Counter)
	}

	return m
}

// registerOrReuse registers a collector, returning the existing one if an
// identical collector was registered before (e.g. a store reopened in the
// same process).
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observePut(result PutResult, bytes int64) {
	if m == nil {
		return
	}
	m.PutsTotal.WithLabelValues(result.String()).Inc()
	if bytes > 0 {
		m.BytesWrittenTotal.Add(float64(bytes))
	}
}

func (m *Metrics) observeGet(result string) {
	if m == nil {
		return
	}
	m.GetsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) observeDelete() {
	if m == nil {
		return
	}
	m.DeletesTotal.Inc()
}
