// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package pcmmetrics exposes the engine's own operating health as
// Prometheus metrics, distinct from the hardware counters the engine
// samples. A collector-test binary or sidecar scrapes this to answer
// "is the PMU engine itself healthy" without touching /dev/cpu/*/msr.
package pcmmetrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HealthSource is the subset of *pcm.Engine this collector needs.
// Defined as an interface so tests can supply a fake without standing
// up a real Engine singleton.
type HealthSource interface {
	Programmed() bool
	ProgramMode() int
}

// Collector implements prometheus.Collector over one Engine's
// self-health signals: whether a program is currently loaded, how many
// times width-extending counters have reset their watchdog, how many
// times the cross-process semaphore was found contended, and how long
// the last Snapshot call took.
type Collector struct {
	source HealthSource

	widenerResets   atomic.Int64
	semaphoreWaits  atomic.Int64
	snapshotSeconds atomic.Int64 // nanoseconds, read via time.Duration

	mu              sync.Mutex
	lastSnapshotErr error

	programmedDesc    *prometheus.Desc
	modeDesc          *prometheus.Desc
	widenerResetsDesc *prometheus.Desc
	semWaitsDesc      *prometheus.Desc
	snapshotDesc      *prometheus.Desc
	snapshotErrDesc   *prometheus.Desc
}

// New builds a Collector bound to source. Callers register it with a
// prometheus.Registry (or prometheus.MustRegister for the default one)
// the way any other third-party Collector is registered.
func New(source HealthSource) *Collector {
	return &Collector{
		source: source,
		programmedDesc: prometheus.NewDesc(
			"pcm_engine_programmed", "1 if the PMU currently has a program loaded.", nil, nil),
		modeDesc: prometheus.NewDesc(
			"pcm_engine_program_mode", "Numeric ProgramMode of the currently loaded program.", nil, nil),
		widenerResetsDesc: prometheus.NewDesc(
			"pcm_engine_widener_resets_total", "Count of width-extender watchdog resets across all tracked registers.", nil, nil),
		semWaitsDesc: prometheus.NewDesc(
			"pcm_engine_semaphore_contended_total", "Count of times Program found the cross-process exclusion semaphore contended.", nil, nil),
		snapshotDesc: prometheus.NewDesc(
			"pcm_engine_last_snapshot_seconds", "Wall-clock duration of the most recent Snapshot call.", nil, nil),
		snapshotErrDesc: prometheus.NewDesc(
			"pcm_engine_last_snapshot_failed", "1 if the most recent Snapshot call returned an error.", nil, nil),
	}
}

// RecordWidenerReset increments the watchdog-reset counter. Called by
// code that owns a hwreg.WidthExtender, not by this package.
func (c *Collector) RecordWidenerReset() {
	c.widenerResets.Add(1)
}

// RecordSemaphoreContention increments the contention counter.
func (c *Collector) RecordSemaphoreContention() {
	c.semaphoreWaits.Add(1)
}

// RecordSnapshot stores the duration and outcome of a completed
// Snapshot call for the next scrape to report.
func (c *Collector) RecordSnapshot(d time.Duration, err error) {
	c.snapshotSeconds.Store(int64(d))
	c.mu.Lock()
	c.lastSnapshotErr = err
	c.mu.Unlock()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.programmedDesc
	ch <- c.modeDesc
	ch <- c.widenerResetsDesc
	ch <- c.semWaitsDesc
	ch <- c.snapshotDesc
	ch <- c.snapshotErrDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	programmed := 0.0
	if c.source.Programmed() {
		programmed = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.programmedDesc, prometheus.GaugeValue, programmed)
	ch <- prometheus.MustNewConstMetric(c.modeDesc, prometheus.GaugeValue, float64(c.source.ProgramMode()))
	ch <- prometheus.MustNewConstMetric(c.widenerResetsDesc, prometheus.CounterValue, float64(c.widenerResets.Load()))
	ch <- prometheus.MustNewConstMetric(c.semWaitsDesc, prometheus.CounterValue, float64(c.semaphoreWaits.Load()))
	ch <- prometheus.MustNewConstMetric(c.snapshotDesc, prometheus.GaugeValue, time.Duration(c.snapshotSeconds.Load()).Seconds())

	c.mu.Lock()
	failed := 0.0
	if c.lastSnapshotErr != nil {
		failed = 1.0
	}
	c.mu.Unlock()
	ch <- prometheus.MustNewConstMetric(c.snapshotErrDesc, prometheus.GaugeValue, failed)
}
