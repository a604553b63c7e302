// Package metrics exposes chart and seek counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	chartsBuilt   prometheus.Counter
	buildErrors   prometheus.Counter
	buildDuration prometheus.Histogram
	chartSeries   prometheus.Histogram
	chartsRender  *prometheus.CounterVec
	seeks         prometheus.Counter
	ignoredClicks prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chartsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framechart_charts_built_total",
			Help: "Charts aggregated from annotation frames",
		}),
		buildErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framechart_chart_build_errors_total",
			Help: "Chart builds rejected because of malformed frames",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "framechart_chart_build_seconds",
			Help:    "Time spent aggregating a chart",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		chartSeries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "framechart_chart_series",
			Help:    "Number of series per built chart",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		chartsRender: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framechart_charts_rendered_total",
			Help: "Charts rendered to images",
		}, []string{"format"}),
		seeks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framechart_seeks_total",
			Help: "Player seeks triggered by chart clicks",
		}),
		ignoredClicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framechart_ignored_clicks_total",
			Help: "Chart clicks without a usable frame label",
		}),
	}

	m.registry.MustRegister(
		m.chartsBuilt,
		m.buildErrors,
		m.buildDuration,
		m.chartSeries,
		m.chartsRender,
		m.seeks,
		m.ignoredClicks,
	)
	return m
}

func (m *Metrics) ObserveBuild(start time.Time, series int, err error) {
	if err != nil {
		m.buildErrors.Inc()
		return
	}
	m.chartsBuilt.Inc()
	m.buildDuration.Observe(time.Since(start).Seconds())
	m.chartSeries.Observe(float64(series))
}

func (m *Metrics) ObserveRender(format string) {
	m.chartsRender.WithLabelValues(format).Inc()
}

func (m *Metrics) ObserveClick(seeked bool) {
	if seeked {
		m.seeks.Inc()
	} else {
		m.ignoredClicks.Inc()
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
