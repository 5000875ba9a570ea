// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package uncore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antimetal/pcm/internal/cpumodel"
	"github.com/antimetal/pcm/pkg/pcm/uncore"
)

func TestLookupKnownModel(t *testing.T) {
	d, ok := uncore.Lookup(cpumodel.ModelSkylakeX)
	require.True(t, ok)
	require.Equal(t, cpumodel.ModelSkylakeX, d.Model)
	require.Contains(t, d.Units, uncore.UnitIMC)
}

func TestLookupUnknownModel(t *testing.T) {
	_, ok := uncore.Lookup(cpumodel.Model(0xFFFF))
	require.False(t, ok)

	_, err := uncore.MustLookup(cpumodel.Model(0xFFFF))
	require.Error(t, err)
}

func TestFlattenIMCChannels(t *testing.T) {
	total, offsets := uncore.FlattenIMCChannels([]int{4, 4})
	require.Equal(t, 8, total)
	require.Equal(t, []int{0, 4}, offsets)

	total, offsets = uncore.FlattenIMCChannels([]int{2, 2, 2})
	require.Equal(t, 6, total)
	require.Equal(t, []int{0, 2, 4}, offsets)
}
