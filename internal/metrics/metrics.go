// Package metrics exposes IceTray build metrics in the Prometheus format.
//
// A Collector owns its own registry so that tests and the CLI can create
// one per run. The API serves it at /metrics; CLI builds write it to a
// textfile for node_exporter.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/icetech/icetray/internal/catalogue"
)

const metricPrefix = "icetray_"

// Collector records build outcomes.
type Collector struct {
	registry *prometheus.Registry

	buildsTotal   *prometheus.CounterVec
	buildLatency  *prometheus.HistogramVec
	buildSignals  *prometheus.HistogramVec
	lastBuildTime *prometheus.GaugeVec
}

// New creates a Collector with Go runtime and process collectors attached.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "builds_total",
				Help: "Total IceCube builds by source and result",
			},
			[]string{"source", "result"},
		),
		buildLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "build_duration_seconds",
				Help:    "IceCube build latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"result"},
		),
		buildSignals: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "build_signals",
				Help:    "Signals per successful build by direction",
				Buckets: prometheus.LinearBuckets(0, 4, 14),
			},
			[]string{"direction"},
		),
		lastBuildTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "last_build_timestamp_seconds",
				Help: "Unix time of the last build by result",
			},
			[]string{"result"},
		),
	}

	c.registry.MustRegister(
		c.buildsTotal,
		c.buildLatency,
		c.buildSignals,
		c.lastBuildTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveBuild implements catalogue.BuildObserver.
func (c *Collector) ObserveBuild(rec catalogue.BuildRecord) {
	c.buildsTotal.WithLabelValues(rec.Source, rec.Result).Inc()
	c.buildLatency.WithLabelValues(rec.Result).Observe(rec.Duration.Seconds())
	c.lastBuildTime.WithLabelValues(rec.Result).Set(float64(rec.CreatedAt.Unix()))
	if rec.OK() {
		c.buildSignals.WithLabelValues("read").Observe(float64(rec.ReadCount))
		c.buildSignals.WithLabelValues("write").Observe(float64(rec.WriteCount))
	}
}

// TrackCatalogue exports the number of stored IceCubes, sampled from count
// at scrape time. Call at most once per Collector.
func (c *Collector) TrackCatalogue(count func() int) error {
	g := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "catalogue_icecubes",
			Help: "Number of IceCubes in the catalogue",
		},
		func() float64 { return float64(count()) },
	)
	if err := c.registry.Register(g); err != nil {
		return fmt.Errorf("registering catalogue gauge: %w", err)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path for node_exporter's textfile
// collector. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
