// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

package resctrl_test

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/pcm/pkg/pcm/resctrl"
)

func TestIsMountedFalseWhenAbsent(t *testing.T) {
	b := resctrl.New(logr.Discard())
	// On a CI host without resctrl mounted this is simply false; the
	// bridge must not error, matching spec §4.7's non-fatal posture.
	require.NotPanics(t, func() { b.IsMounted() })
}

func TestCleanupIdempotent(t *testing.T) {
	b := resctrl.New(logr.Discard())
	require.NoError(t, b.Cleanup())
	require.NoError(t, b.Cleanup())
}

func TestGetMetricBeforeInitIsHardwareAbsent(t *testing.T) {
	b := resctrl.New(logr.Discard())
	_, err := b.GetL3Occupancy(0)
	require.Error(t, err)
}
