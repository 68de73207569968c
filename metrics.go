package fissile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fissile"

// Collector is a prometheus.Collector that collects metrics about
// the calls made through a service's Funcs.
//
// Calls are labelled with the mode of the side that observed them.
// Views always count as mode "backend", so a frontend using the test
// client records each call twice: once as "frontend" and once as
// "backend" for the view that served it.
type Collector struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "calls_total",
				Help:      "The number of calls made through fissile functions.",
			}, []string{"func", "mode", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "call_duration_seconds",
				Help:      "The time taken by calls made through fissile functions.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"func", "mode"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.calls.Describe(ch)
	c.callDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.calls.Collect(ch)
	c.callDuration.Collect(ch)
}

// Calls returns the counter for one function, mode and outcome
// ("success" or "error").
func (c *Collector) Calls(funcName string, mode Mode, outcome string) prometheus.Counter {
	return c.calls.WithLabelValues(funcName, mode.String(), outcome)
}

func (c *Collector) observe(funcName string, mode Mode, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.calls.WithLabelValues(funcName, mode.String(), outcome).Inc()
	c.callDuration.WithLabelValues(funcName, mode.String()).Observe(time.Since(started).Seconds())
}
