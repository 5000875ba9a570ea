// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antimetal/pcm/pkg/pcm"
	"github.com/antimetal/pcm/pkg/pcm/metrics"
)

func TestIPCNonNegative(t *testing.T) {
	before := pcm.CoreCounterState{InstructionsRetired: 1000, UnhaltedCoreCycles: 2000}
	after := pcm.CoreCounterState{InstructionsRetired: 3500, UnhaltedCoreCycles: 4000}

	ipc := metrics.IPC(before, after)
	require.GreaterOrEqual(t, ipc, 0.0)
	require.InDelta(t, 1.25, ipc, 1e-9)
}

func TestIPCZeroClocksIsNotAvailable(t *testing.T) {
	before := pcm.CoreCounterState{InstructionsRetired: 100, UnhaltedCoreCycles: 500}
	after := pcm.CoreCounterState{InstructionsRetired: 100, UnhaltedCoreCycles: 500}
	require.Equal(t, pcm.NotAvailable, metrics.IPC(before, after))
}

func TestCStateResidencyBoundsAndSum(t *testing.T) {
	before := pcm.CoreCounterState{InvariantTSC: 0}
	after := pcm.CoreCounterState{InvariantTSC: 1_000_000}
	after.CStateResidency[1] = 300_000
	after.CStateResidency[3] = 400_000
	after.CStateResidency[6] = 300_000

	var sum float64
	for s := 1; s <= 6; s++ {
		r := metrics.CStateResidency(before, after, s)
		require.GreaterOrEqual(t, r, 0.0)
		require.LessOrEqual(t, r, 1.0)
		sum += r
	}
	c0 := metrics.C0Residency(before, after)
	require.InDelta(t, 1.0, sum+c0, 1e-9)
}

func TestLinkUtilizationBounds(t *testing.T) {
	u := metrics.LinkUtilization(metrics.LinkUPI, 10_000_000_000, 9.6e9, 1.0)
	require.GreaterOrEqual(t, u, 0.0)
	require.LessOrEqual(t, u, 1.0)
}

// TestLLCReadMissLatencyWorkedExample is spec §8 scenario 6, reproduced
// literally: given Δoccupancy=1_000_000, Δinserts=50_000,
// Δuncore_clocks=2_000_000_000, nominal_frequency=2_500_000_000 Hz,
// logical_cores_per_socket=32, elapsed=1s, the result is
// 1e9 * 1.0 / 32 * (1_000_000/50_000) / 2_000_000_000 ≈ 0.3125 ns.
func TestLLCReadMissLatencyWorkedExample(t *testing.T) {
	got := metrics.LLCReadMissLatencyNanos(1_000_000, 50_000, 2_000_000_000, 2_500_000_000, 1.0, 32)
	require.InDelta(t, 0.3125, got, 1e-9)
}

func TestLLCReadMissLatencyZeroInsertsNotAvailable(t *testing.T) {
	got := metrics.LLCReadMissLatencyNanos(1_000_000, 0, 2_000_000_000, 2_500_000_000, 1.0, 32)
	require.Equal(t, pcm.NotAvailable, got)
}
