/*
 * MIT License
 *
 * Copyright (c) 2026 Nguyen Thanh Phuong
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package telemetry exposes reconciled counters and daemon health in the
// Prometheus text format.
package telemetry

import (
	"net/http"

	"github.com/phuonguno98/procstatd/internal/collector"
	"github.com/phuonguno98/procstatd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "procstatd"

// Source is what the exporter reads on every scrape.
type Source interface {
	Records() map[metrics.Key]metrics.Record
	Stats() collector.Stats
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source Source

	counter        *prometheus.Desc
	liveProcs      *prometheus.Desc
	passes         *prometheus.Desc
	failedPasses   *prometheus.Desc
	persists       *prometheus.Desc
	failedPersists *prometheus.Desc
	keys           *prometheus.Desc
	processes      *prometheus.Desc
	collectSeconds *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		counter: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "counter_total"),
			"Reconciled cumulative counter per user, process name and family.",
			[]string{"user", "process", "family"}, nil),
		liveProcs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "live_processes"),
			"Processes seen in the last collect pass.",
			[]string{"user", "process"}, nil),
		passes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "collect", "passes_total"),
			"Successful collect passes.", nil, nil),
		failedPasses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "collect", "failures_total"),
			"Collect passes that could not read the process table.", nil, nil),
		persists: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "persist", "writes_total"),
			"Successful counter store writes.", nil, nil),
		failedPersists: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "persist", "failures_total"),
			"Failed counter store writes.", nil, nil),
		keys: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "tracked_keys"),
			"Distinct (user, process) pairs in the counter cache.", nil, nil),
		processes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sampled_processes"),
			"Processes read in the last collect pass.", nil, nil),
		collectSeconds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "collect", "duration_seconds"),
			"Duration of the last collect pass.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.counter
	ch <- c.liveProcs
	ch <- c.passes
	ch <- c.failedPasses
	ch <- c.persists
	ch <- c.failedPersists
	ch <- c.keys
	ch <- c.processes
	ch <- c.collectSeconds
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for key, rec := range c.source.Records() {
		for _, f := range metrics.Families {
			ch <- prometheus.MustNewConstMetric(c.counter, prometheus.CounterValue,
				float64(rec.Counter[f]), key.User, key.Process, f.String())
		}
		ch <- prometheus.MustNewConstMetric(c.liveProcs, prometheus.GaugeValue,
			float64(rec.LiveProcs), key.User, key.Process)
	}

	st := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.passes, prometheus.CounterValue, float64(st.Passes))
	ch <- prometheus.MustNewConstMetric(c.failedPasses, prometheus.CounterValue, float64(st.FailedPasses))
	ch <- prometheus.MustNewConstMetric(c.persists, prometheus.CounterValue, float64(st.Persists))
	ch <- prometheus.MustNewConstMetric(c.failedPersists, prometheus.CounterValue, float64(st.FailedPersists))
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(st.Keys))
	ch <- prometheus.MustNewConstMetric(c.processes, prometheus.GaugeValue, float64(st.Processes))
	ch <- prometheus.MustNewConstMetric(c.collectSeconds, prometheus.GaugeValue, st.CollectDuration.Seconds())
}

// NewRegistry returns a registry with the counter collector and the
// standard Go runtime and process collectors.
func NewRegistry(source Source) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Handler serves the registry in the exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
