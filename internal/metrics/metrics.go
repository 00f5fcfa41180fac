// Package metrics defines the Prometheus metrics exported by the packer worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for packing jobs.
type Metrics struct {
	// Job outcomes by kind and status ("success" or "failure").
	JobsTotal   *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Packing volume.
	RecordsPacked     prometheus.Counter
	CiphertextsOut    prometheus.Counter
	CiphertextsMerged prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg creates
// unregistered metrics, which is what tests use.
//
// Metrics:
//   - packer_jobs_total{kind,status} - Count of finished jobs
//   - packer_job_duration_seconds{kind} - Histogram of job durations
//   - packer_records_packed_total - Records packed into slots
//   - packer_ciphertexts_total - Ciphertexts produced by pack and compress jobs
//   - packer_ciphertexts_merged_total - Ciphertexts saved by merging
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "packer_jobs_total",
				Help: "Total number of packer jobs processed",
			},
			[]string{"kind", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "packer_job_duration_seconds",
				Help:    "Duration of packer jobs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"kind"},
		),
		RecordsPacked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packer_records_packed_total",
			Help: "Total number of records packed into slot integers",
		}),
		CiphertextsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packer_ciphertexts_total",
			Help: "Total number of ciphertexts produced",
		}),
		CiphertextsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "packer_ciphertexts_merged_total",
			Help: "Total number of ciphertexts eliminated by cipher compression",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.JobsTotal, m.JobDuration, m.RecordsPacked, m.CiphertextsOut, m.CiphertextsMerged)
	}
	return m
}

// ObserveJob records one finished job.
func (m *Metrics) ObserveJob(kind string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.JobsTotal.WithLabelValues(kind, status).Inc()
	m.JobDuration.WithLabelValues(kind).Observe(seconds)
}
