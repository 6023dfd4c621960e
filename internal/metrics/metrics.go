// Package metrics records publish outcomes as prometheus metrics. The CLI
// is short lived, so the registry is written to a node-exporter textfile
// instead of being served.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vfs-go/internal/vfs"
)

const namespace = "vfs"

// Collector implements vfs.PublishObserver on its own registry.
type Collector struct {
	registry *prometheus.Registry

	publishes   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	changed     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	resources   *prometheus.CounterVec
}

var _ vfs.PublishObserver = (*Collector)(nil)

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Project publishes by outcome.",
		}, []string{"project", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Wall time of a project publish.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"project"}),
		changed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publish_changed_resources",
			Help:      "Resources changed by the last publish of a project.",
		}, []string{"project"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publish_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful publish of a project.",
		}, []string{"project"}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_resources_total",
			Help:      "Published resources by kind and state.",
		}, []string{"kind", "state"}),
	}
	c.registry.MustRegister(c.publishes, c.duration, c.changed, c.lastSuccess, c.resources)
	return c
}

func (c *Collector) ObservePublish(project string, changed int, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.publishes.WithLabelValues(project, result).Inc()
	c.duration.WithLabelValues(project).Observe(elapsed.Seconds())
	if err == nil {
		c.changed.WithLabelValues(project).Set(float64(changed))
		c.lastSuccess.WithLabelValues(project).SetToCurrentTime()
	}
}

func (c *Collector) ResourcePublished(kind string, state vfs.State) {
	c.resources.WithLabelValues(kind, state.String()).Inc()
}

// Registry exposes the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the current values in the text exposition format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
