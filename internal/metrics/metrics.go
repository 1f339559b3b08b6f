package metrics

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gallerysync"

// Metrics exposes the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	itemsSubmitted    *prometheus.CounterVec
	batchesScheduled  *prometheus.CounterVec
	operations        *prometheus.CounterVec
	statusWrites      *prometheus.CounterVec
	galleryRows       *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
}

// MustNew registers the collectors on reg and panics on a registration
// conflict other than an already registered collector.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		itemsSubmitted: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "items_total",
			Help:      "Submitted bulk items by resulting item status.",
		}, []string{"status"})),
		batchesScheduled: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "batches_total",
			Help:      "Bulk scheduling attempts by outcome.",
		}, []string{"outcome"})),
		operations: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "operations_total",
			Help:      "Processed operations by terminal status.",
		}, []string{"status"})),
		statusWrites: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "status_writes_total",
			Help:      "Operation status persistence attempts by result.",
		}, []string{"result"})),
		galleryRows: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "images_total",
			Help:      "Reconciled images by outcome.",
		}, []string{"outcome"})),
		reconcileDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "duration_seconds",
			Help:      "Time spent reconciling one SKU.",
			Buckets:   prometheus.DefBuckets,
		})),
	}
}

// register returns the already registered collector when reg holds an
// identical one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ItemStatus counts one item status returned to a submitter
func (m *Metrics) ItemStatus(status string) {
	if m == nil {
		return
	}
	m.itemsSubmitted.WithLabelValues(status).Inc()
}

// BatchScheduled records the outcome of one scheduling attempt
func (m *Metrics) BatchScheduled(err error) {
	if m == nil {
		return
	}
	outcome := "scheduled"
	if err != nil {
		outcome = "failed"
	}
	m.batchesScheduled.WithLabelValues(outcome).Inc()
}

// OperationSettled counts an operation by its terminal status
func (m *Metrics) OperationSettled(status string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(status).Inc()
}

// StatusWrite counts a status persistence result
func (m *Metrics) StatusWrite(result string) {
	if m == nil {
		return
	}
	m.statusWrites.WithLabelValues(result).Inc()
}

// Reconciled records the per-image outcome counts of one reconciliation
func (m *Metrics) Reconciled(d time.Duration, inserted, updated, skipped, invalid int) {
	if m == nil {
		return
	}
	m.reconcileDuration.Observe(d.Seconds())
	m.galleryRows.WithLabelValues("inserted").Add(float64(inserted))
	m.galleryRows.WithLabelValues("updated").Add(float64(updated))
	m.galleryRows.WithLabelValues("skipped_noop").Add(float64(skipped))
	m.galleryRows.WithLabelValues("invalid").Add(float64(invalid))
}

// Handler serves the metrics of gatherer on a fiber route
func Handler(gatherer prometheus.Gatherer) fiber.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
