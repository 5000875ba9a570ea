// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package uncore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antimetal/pcm/pkg/pcm"
	"github.com/antimetal/pcm/pkg/pcm/uncore"
)

func TestEventSelectRoundTrip(t *testing.T) {
	cases := []pcm.EventSelect{
		{Event: 0x3C, UMask: 0x00, User: true, OS: true, Enable: true},
		{Event: 0xB7, UMask: 0x01, User: true, Edge: true, CMask: 1, Invert: true, Enable: true},
		{Event: 0xA3, UMask: 0x06, OS: true, AnyThread: true, PinControl: true, APICInt: true, CMask: 6, Enable: true},
		{Event: 0xFF, UMask: 0xFF, CMask: 0xFF, InTx: true, InTxCP: true, Enable: true, Invert: true},
	}

	for _, want := range cases {
		encoded := uncore.EncodeEventSelect(want)
		got := uncore.DecodeEventSelect(encoded)
		require.Equal(t, want, got)
	}
}

func TestIIOEventSelectChannelMaskWidth(t *testing.T) {
	// 8-bit channel mask (SKX): field boundaries must not overlap.
	w8 := uncore.IIOEventSelect(8, 0x1FF, 0xFF, 0x3)
	// 12-bit channel mask (ICX+): wider field, function mask shifts out further.
	w12 := uncore.IIOEventSelect(12, 0x1FF, 0xFFF, 0x3)

	require.NotEqual(t, w8, w12)
	require.Equal(t, uint64(0x1FF), w8&0x1FF)
	require.Equal(t, uint64(0x1FF), w12&0x1FF)
}
