// Package metrics counts pipeline outcomes with Prometheus collectors and
// writes them in the node_exporter textfile format at the end of a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andreiashu/geosector"
)

// Recorder implements geosector.Observer. Each Recorder owns its registry
// so repeated runs in one process do not share counters.
type Recorder struct {
	registry *prometheus.Registry

	RecordsRead       prometheus.Counter
	RecordsEmitted    prometheus.Counter
	RecordsSkipped    prometheus.Counter
	RecordsUnresolved prometheus.Counter
	Countries         prometheus.Gauge
	RunDuration       prometheus.Gauge
	LastSuccess       prometheus.Gauge
}

// New returns a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		RecordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geosector_records_read_total",
			Help: "Place records read from the input stream",
		}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geosector_records_emitted_total",
			Help: "Indexed place records written to the sink",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geosector_records_skipped_total",
			Help: "Place records skipped as malformed",
		}),
		RecordsUnresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geosector_records_unresolved_total",
			Help: "Place records emitted without a resolved country",
		}),
		Countries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geosector_countries",
			Help: "Country codes loaded into the resolver",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geosector_run_duration_seconds",
			Help: "Wall time of the last ingestion run",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geosector_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished",
		}),
	}
	r.registry.MustRegister(
		r.RecordsRead,
		r.RecordsEmitted,
		r.RecordsSkipped,
		r.RecordsUnresolved,
		r.Countries,
		r.RunDuration,
		r.LastSuccess,
	)
	return r
}

// Observe implements geosector.Observer.
func (r *Recorder) Observe(o geosector.Outcome) {
	r.RecordsRead.Inc()
	switch o {
	case geosector.OutcomeSkipped:
		r.RecordsSkipped.Inc()
	case geosector.OutcomeUnresolved:
		r.RecordsUnresolved.Inc()
		r.RecordsEmitted.Inc()
	case geosector.OutcomeEmitted:
		r.RecordsEmitted.Inc()
	}
}

// Finish records run-level gauges from the pipeline stats.
func (r *Recorder) Finish(stats geosector.Stats, countries int, ok bool) {
	r.Countries.Set(float64(countries))
	r.RunDuration.Set(stats.Elapsed.Seconds())
	if ok {
		r.LastSuccess.Set(float64(time.Now().Unix()))
	}
}

// Registry exposes the collectors, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteFile writes all metrics to path atomically.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
