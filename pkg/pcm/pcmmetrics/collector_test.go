// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pcmmetrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/pcm/pkg/pcm/pcmmetrics"
)

type fakeSource struct {
	programmed bool
	mode       int
}

func (f fakeSource) Programmed() bool { return f.programmed }
func (f fakeSource) ProgramMode() int { return f.mode }

func collect(t *testing.T, c *pcmmetrics.Collector) map[string]*dto.Metric {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]*dto.Metric{}
	for _, fam := range families {
		out[fam.GetName()] = fam.Metric[0]
	}
	return out
}

func TestCollectorReportsProgrammedState(t *testing.T) {
	c := pcmmetrics.New(fakeSource{programmed: true, mode: 3})
	metrics := collect(t, c)

	assert.Equal(t, float64(1), metrics["pcm_engine_programmed"].GetGauge().GetValue())
	assert.Equal(t, float64(3), metrics["pcm_engine_program_mode"].GetGauge().GetValue())
}

func TestCollectorReportsWidenerResetsAndSemaphoreContention(t *testing.T) {
	c := pcmmetrics.New(fakeSource{})
	c.RecordWidenerReset()
	c.RecordWidenerReset()
	c.RecordSemaphoreContention()

	metrics := collect(t, c)
	assert.Equal(t, float64(2), metrics["pcm_engine_widener_resets_total"].GetCounter().GetValue())
	assert.Equal(t, float64(1), metrics["pcm_engine_semaphore_contended_total"].GetCounter().GetValue())
}

func TestCollectorReportsLastSnapshotOutcome(t *testing.T) {
	c := pcmmetrics.New(fakeSource{})
	c.RecordSnapshot(250*time.Millisecond, nil)

	metrics := collect(t, c)
	assert.InDelta(t, 0.25, metrics["pcm_engine_last_snapshot_seconds"].GetGauge().GetValue(), 1e-9)
	assert.Equal(t, float64(0), metrics["pcm_engine_last_snapshot_failed"].GetGauge().GetValue())

	c.RecordSnapshot(time.Millisecond, errors.New("boom"))
	metrics = collect(t, c)
	assert.Equal(t, float64(1), metrics["pcm_engine_last_snapshot_failed"].GetGauge().GetValue())
}
