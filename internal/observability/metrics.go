package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once
	registry     = prometheus.NewRegistry()

	recordOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vcictl",
			Subsystem: "batch",
			Name:      "records_total",
			Help:      "Records handled by the batch runner, by workflow and outcome.",
		},
		[]string{"workflow", "outcome"},
	)
	recordDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vcictl",
			Subsystem: "batch",
			Name:      "record_duration_seconds",
			Help:      "Wall time spent driving one record through its workflow.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"workflow", "outcome"},
	)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vcictl",
			Subsystem: "workflow",
			Name:      "step_duration_seconds",
			Help:      "Wall time per workflow step including readiness waits.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow", "step", "success"},
	)
	controlPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vcictl",
			Subsystem: "workflow",
			Name:      "control_polls_total",
			Help:      "Control lookups performed while waiting for a labelled control.",
		},
		[]string{"found"},
	)
	reconcileSizes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vcictl",
			Subsystem: "reconcile",
			Name:      "identifiers",
			Help:      "Size of each reconciliation set from the last run.",
		},
		[]string{"set"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		registry.MustRegister(recordOutcomes, recordDuration, stepDuration, controlPolls, reconcileSizes)
	})
}

// Registry exposes the run registry for textfile export and tests.
func Registry() *prometheus.Registry {
	RegisterMetrics()
	return registry
}

func RecordOutcome(workflow, outcome string, duration time.Duration) {
	RegisterMetrics()
	recordOutcomes.WithLabelValues(workflow, outcome).Inc()
	recordDuration.WithLabelValues(workflow, outcome).Observe(duration.Seconds())
}

func RecordStep(workflow, step string, duration time.Duration, success bool) {
	RegisterMetrics()
	stepDuration.WithLabelValues(workflow, step, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func RecordControlPoll(found bool) {
	RegisterMetrics()
	controlPolls.WithLabelValues(strconv.FormatBool(found)).Inc()
}

func RecordReconcile(matched, externalOnly, catalogOnly int) {
	RegisterMetrics()
	reconcileSizes.WithLabelValues("matched").Set(float64(matched))
	reconcileSizes.WithLabelValues("external_only").Set(float64(externalOnly))
	reconcileSizes.WithLabelValues("catalog_only").Set(float64(catalogOnly))
}

// WriteTextfile dumps the run metrics in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry())
}
