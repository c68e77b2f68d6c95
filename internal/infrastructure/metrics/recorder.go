package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "billwatch"

// Recorder is a prometheus.Collector for cache and detector invocations.
// Invocations are short-lived, so the values are written to a
// node-exporter textfile instead of being scraped.
type Recorder struct {
	registry *prometheus.Registry

	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	records     *prometheus.CounterVec
	position    *prometheus.GaugeVec
	total       *prometheus.GaugeVec
	detector    *prometheus.GaugeVec
}

// NewRecorder builds a recorder with its own registry.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Invocations by operation and outcome.",
			}, []string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Wall time of one invocation.",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			}, []string{"operation"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_records_total",
				Help:      "Candidate identifiers processed by the batch driver, by result.",
			}, []string{"result"},
		),
		position: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cursor_position",
				Help:      "Current cursor position per scope.",
			}, []string{"scope"},
		),
		total: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cursor_total",
				Help:      "Candidate set size per scope.",
			}, []string{"scope"},
		),
		detector: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "detector_last_run",
				Help:      "Counts reported by the last detector pass.",
			}, []string{"kind"},
		),
	}

	if err := r.registry.Register(r); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return r, nil
}

// Describe is part of the prometheus.Collector interface.
func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	r.invocations.Describe(ch)
	r.duration.Describe(ch)
	r.records.Describe(ch)
	r.position.Describe(ch)
	r.total.Describe(ch)
	r.detector.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	r.invocations.Collect(ch)
	r.duration.Collect(ch)
	r.records.Collect(ch)
	r.position.Collect(ch)
	r.total.Collect(ch)
	r.detector.Collect(ch)
}

// ObserveInvocation counts one guarded call and its duration.
func (r *Recorder) ObserveInvocation(operation, outcome string, took time.Duration) {
	r.invocations.WithLabelValues(operation, outcome).Inc()
	r.duration.WithLabelValues(operation).Observe(took.Seconds())
}

// ObserveCursor sets the cursor gauges for scope.
func (r *Recorder) ObserveCursor(scope string, position, total int) {
	r.position.WithLabelValues(scope).Set(float64(position))
	r.total.WithLabelValues(scope).Set(float64(total))
}

// ObserveBatch adds the per-identifier outcomes of one batch.
func (r *Recorder) ObserveBatch(upserted, skipped, errors int) {
	r.records.WithLabelValues("upserted").Add(float64(upserted))
	r.records.WithLabelValues("skipped").Add(float64(skipped))
	r.records.WithLabelValues("error").Add(float64(errors))
}

// ObserveDetect adds the counters of one detector run.
func (r *Recorder) ObserveDetect(checked, changes, matches, errors int) {
	r.detector.WithLabelValues("checked").Set(float64(checked))
	r.detector.WithLabelValues("status_changes").Set(float64(changes))
	r.detector.WithLabelValues("keyword_matches").Set(float64(matches))
	r.detector.WithLabelValues("errors").Set(float64(errors))
}

// Flush writes the registry to path in the text exposition format.
// An empty path is a no-op.
func (r *Recorder) Flush(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
