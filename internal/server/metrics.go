package server

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/maruel/docstore/internal/docdb"
	"github.com/maruel/docstore/internal/models"
)

// Metrics holds the Prometheus collectors of one server.
type Metrics struct {
	Registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	connections       prometheus.Gauge
	rejected          *prometheus.CounterVec
	collectionsLoaded prometheus.Counter
	corruptFiles      prometheus.Counter
}

// NewMetrics registers the docstore collectors, plus the Go runtime and
// process collectors, in a new registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstore_operations_total",
				Help: "Total number of requests processed",
			},
			[]string{"operation", "status"},
		),
		operationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docstore_operation_duration_seconds",
				Help:    "Duration of requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "docstore_connections_active",
			Help: "Number of client connections being served",
		}),
		rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstore_connections_rejected_total",
				Help: "Connections refused before being served",
			},
			[]string{"reason"},
		),
		collectionsLoaded: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_collections_loaded_total",
			Help: "Collections read from disk",
		}),
		corruptFiles: f.NewCounter(prometheus.CounterOpts{
			Name: "docstore_corrupt_files_total",
			Help: "Collection files that could not be decoded",
		}),
	}
}

// ObserveLoad is suitable as storage.Options.OnLoad.
func (m *Metrics) ObserveLoad(_, _ string, _ int, err error) {
	if m == nil {
		return
	}
	m.collectionsLoaded.Inc()
	if errors.Is(err, docdb.ErrCorrupt) {
		m.corruptFiles.Inc()
	}
}

func (m *Metrics) observeRequest(op models.Operation, resp *models.Response, d time.Duration) {
	if m == nil {
		return
	}
	name := string(op)
	switch op {
	case models.OpInsert, models.OpFind, models.OpDelete, models.OpDrop:
	default:
		name = "invalid"
	}
	m.operations.WithLabelValues(name, string(resp.Status)).Inc()
	m.operationDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) connRejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}
