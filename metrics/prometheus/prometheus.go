// Package prometheus exposes a metrics.Registry to Prometheus scrapers.
package prometheus

import (
	"net/http"
	"strings"

	"github.com/aionnetwork/aion-sub011/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// collector converts the metrics held by a registry into Prometheus samples on
// every scrape. Names are not known up front, so the collector is unchecked.
type collector struct {
	reg metrics.Registry
}

// NewCollector returns a prometheus.Collector backed by reg.
func NewCollector(reg metrics.Registry) prometheus.Collector {
	return &collector{reg: reg}
}

func (c *collector) Describe(chan<- *prometheus.Desc) {}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	c.reg.Each(func(name string, i interface{}) {
		name = mutateKey(name)
		switch m := i.(type) {
		case metrics.Counter:
			ch <- constMetric(name, "", prometheus.CounterValue, float64(m.Count()))
		case metrics.Gauge:
			ch <- constMetric(name, "", prometheus.GaugeValue, float64(m.Value()))
		case metrics.Meter:
			ch <- constMetric(name, "_total", prometheus.CounterValue, float64(m.Count()))
			ch <- constMetric(name, "_rate1", prometheus.GaugeValue, m.Rate1())
			ch <- constMetric(name, "_rate5", prometheus.GaugeValue, m.Rate5())
		}
	})
}

func constMetric(name, suffix string, typ prometheus.ValueType, v float64) prometheus.Metric {
	desc := prometheus.NewDesc(name+suffix, name, nil, nil)
	return prometheus.MustNewConstMetric(desc, typ, v)
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func Handler(reg metrics.Registry) http.Handler {
	pr := prometheus.NewRegistry()
	pr.MustRegister(NewCollector(reg))
	return promhttp.HandlerFor(pr, promhttp.HandlerOpts{})
}

func mutateKey(key string) string {
	return strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(key)
}
