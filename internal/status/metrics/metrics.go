package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache layers and results used as label values.
const (
	LayerLocal       = "local"
	LayerDistributed = "distributed"
	LayerStore       = "store"

	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Metrics provides observability for the status registry and its notifier.
// All methods are safe on a nil receiver.
type Metrics struct {
	IndexLookups         *prometheus.CounterVec
	StoreLoads           prometheus.Counter
	StatusesCreated      *prometheus.CounterVec
	CreationConflicts    prometheus.Counter
	NotificationFailures *prometheus.CounterVec
	LookupDuration       prometheus.Histogram
}

// New registers the status metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		IndexLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "statusable_status_index_lookups_total",
			Help: "Status id-index resolutions by cache layer and result",
		}, []string{"layer", "result"}),
		StoreLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "statusable_status_store_loads_total",
			Help: "Full id-index or snapshot loads served by the store",
		}),
		StatusesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "statusable_statuses_created_total",
			Help: "Status records created, by entity type",
		}, []string{"entity_type"}),
		CreationConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "statusable_status_creation_conflicts_total",
			Help: "Concurrent creations that lost the race and re-read the existing record",
		}),
		NotificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "statusable_status_notification_failures_total",
			Help: "Status change notifications that failed after a successful save",
		}, []string{"kind"}),
		LookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "statusable_status_lookup_duration_seconds",
			Help:    "Duration of status id lookups including cold loads and creation",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

func (m *Metrics) IncrementIndexLookup(layer, result string) {
	if m == nil {
		return
	}
	m.IndexLookups.WithLabelValues(layer, result).Inc()
}

func (m *Metrics) IncrementStoreLoads() {
	if m == nil {
		return
	}
	m.StoreLoads.Inc()
}

func (m *Metrics) IncrementCreated(entityType string) {
	if m == nil {
		return
	}
	m.StatusesCreated.WithLabelValues(entityType).Inc()
}

func (m *Metrics) IncrementConflicts() {
	if m == nil {
		return
	}
	m.CreationConflicts.Inc()
}

// IncrementNotificationFailures counts a failed notification of kind "event" or "broadcast".
func (m *Metrics) IncrementNotificationFailures(kind string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(kind).Inc()
}

// ObserveLookup records the duration of a lookup.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveLookup(start time.Time) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(time.Since(start).Seconds())
}
