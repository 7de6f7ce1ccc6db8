// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package metrics collects step and handler timings of a hook run and
// exports them for the node exporter textfile collector.
//
// Each process starts from zero and the textfile is replaced on every
// hook, so every series describes the last hook run only.
package metrics

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "va_charm"

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Collector is a prometheus.Collector that observes the lifecycle
// executor. It implements lifecycle.Recorder.
type Collector struct {
	clock clock.Clock

	stepDuration    *prometheus.HistogramVec
	handlerDuration *prometheus.HistogramVec
	handlerRuns     *prometheus.GaugeVec
	lastRun         prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector(clk clock.Clock) *Collector {
	return &Collector{
		clock: clk,
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "step_duration_seconds",
				Help:      "The time taken by a handler step.",
				Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900},
			}, []string{"handler", "step", "outcome"},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "handler_duration_seconds",
				Help:      "The time taken by a handler.",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800},
			}, []string{"handler", "outcome"},
		),
		handlerRuns: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "hook_handler_runs",
				Help:      "The number of handler runs in the last hook.",
			}, []string{"handler", "outcome"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_handler_run_timestamp_seconds",
				Help:      "When a handler last completed or failed.",
			},
		),
	}
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}

// ObserveStep is part of the lifecycle.Recorder interface.
func (c *Collector) ObserveStep(handler, step string, elapsed time.Duration, err error) {
	c.stepDuration.WithLabelValues(handler, step, outcome(err)).Observe(elapsed.Seconds())
}

// ObserveHandler is part of the lifecycle.Recorder interface.
func (c *Collector) ObserveHandler(handler string, elapsed time.Duration, err error) {
	c.handlerDuration.WithLabelValues(handler, outcome(err)).Observe(elapsed.Seconds())
	c.handlerRuns.WithLabelValues(handler, outcome(err)).Inc()
	c.lastRun.Set(float64(c.clock.Now().Unix()))
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.stepDuration.Describe(ch)
	c.handlerDuration.Describe(ch)
	c.handlerRuns.Describe(ch)
	c.lastRun.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.stepDuration.Collect(ch)
	c.handlerDuration.Collect(ch)
	c.handlerRuns.Collect(ch)
	c.lastRun.Collect(ch)
}

// WriteTextfile writes the metrics of c to path in the text exposition
// format, replacing the file atomically. The file is a snapshot of the
// current hook, not a running total.
func WriteTextfile(path string, c prometheus.Collector) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(prometheus.WriteToTextfile(path, registry), "writing metrics to %q", path)
}
