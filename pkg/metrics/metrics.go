// Package metrics counts reconciliation work in a private Prometheus
// registry. The CLI is short-lived, so the registry is written out as a
// node-exporter textfile after each commit instead of being scraped.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fsconf-network/fsconf/pkg/reconcile"
)

const namespace = "fsconf"

// Recorder holds the fsconf collectors.
type Recorder struct {
	registry *prometheus.Registry

	commits   *prometheus.CounterVec
	trials    *prometheus.CounterVec
	abandoned *prometheus.CounterVec
	protected *prometheus.CounterVec
	batches   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	lastRun   *prometheus.GaugeVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Total commits by outcome status.",
		}, []string{"device", "status"}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "removal_trials_total",
			Help:      "Total truncation trials sent while removing lines.",
		}, []string{"device", "section"}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abandoned_lines_total",
			Help:      "Total extra lines no truncation level could remove.",
		}, []string{"device", "section"}),
		protected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protected_lines_total",
			Help:      "Total VLAN declarations left in place.",
		}, []string{"device", "section"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total command batches sent to the device.",
		}, []string{"device"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Wall time of a commit.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"device"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_commit_timestamp_seconds",
			Help:      "Unix time of the last commit.",
		}, []string{"device"}),
	}
	r.registry.MustRegister(r.commits, r.trials, r.abandoned, r.protected, r.batches, r.duration, r.lastRun)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveCommit records one commit. Dry runs are not counted.
func (r *Recorder) ObserveCommit(o *reconcile.Outcome, elapsed time.Duration) {
	if o == nil || o.DryRun {
		return
	}
	device := o.Device
	r.commits.WithLabelValues(device, string(o.Status())).Inc()
	for _, s := range o.Sections {
		if s.Trials > 0 {
			r.trials.WithLabelValues(device, s.Name).Add(float64(s.Trials))
		}
		if n := len(s.Abandoned); n > 0 {
			r.abandoned.WithLabelValues(device, s.Name).Add(float64(n))
		}
		if n := len(s.Protected); n > 0 {
			r.protected.WithLabelValues(device, s.Name).Add(float64(n))
		}
	}
	r.batches.WithLabelValues(device).Add(float64(len(o.Batches())))
	r.duration.WithLabelValues(device).Observe(elapsed.Seconds())
	r.lastRun.WithLabelValues(device).Set(float64(time.Now().Unix()))
}

// WriteTextfile writes the registry in the text exposition format,
// creating the parent directory. The write is atomic.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
