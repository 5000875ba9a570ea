// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package uncore

// EventSelect is the decoded form of a 64-bit core event-select control
// register. Package pcm re-exports this as pcm.EventSelect so callers
// never need to import uncore directly just to build one.
type EventSelect struct {
	Event      uint8
	UMask      uint8
	User       bool
	OS         bool
	Edge       bool
	PinControl bool
	APICInt    bool
	AnyThread  bool
	Enable     bool
	Invert     bool
	CMask      uint8
	InTx       bool
	InTxCP     bool
}

// Core event-select bit layout (IA32_PERFEVTSELx), per spec §4.4:
// event-select(8) umask(8) user(1) os(1) edge(1) pin-control(1)
// apic-int(1) any-thread(1) enable(1) invert(1) cmask(8) in-tx(1) in-txcp(1)
const (
	shiftEvent      = 0
	shiftUMask      = 8
	shiftUser       = 16
	shiftOS         = 17
	shiftEdge       = 18
	shiftPinControl = 19
	shiftAPICInt    = 20
	shiftAnyThread  = 21
	shiftEnable     = 22
	shiftInvert     = 23
	shiftCMask      = 24
	shiftInTx       = 32
	shiftInTxCP     = 33
)

func bit(word uint64, shift uint) bool {
	return (word>>shift)&1 != 0
}

func setBit(word *uint64, shift uint, v bool) {
	if v {
		*word |= 1 << shift
	}
}

// EncodeEventSelect packs an EventSelect into the 64-bit control-register
// word. Writers must program it with Enable=false first to clear, then
// again with Enable=true, per spec §4.4; EncodeEventSelect itself is a
// pure bit-packing function and does not sequence the two writes.
func EncodeEventSelect(e EventSelect) uint64 {
	var w uint64
	w |= uint64(e.Event) << shiftEvent
	w |= uint64(e.UMask) << shiftUMask
	setBit(&w, shiftUser, e.User)
	setBit(&w, shiftOS, e.OS)
	setBit(&w, shiftEdge, e.Edge)
	setBit(&w, shiftPinControl, e.PinControl)
	setBit(&w, shiftAPICInt, e.APICInt)
	setBit(&w, shiftAnyThread, e.AnyThread)
	setBit(&w, shiftEnable, e.Enable)
	setBit(&w, shiftInvert, e.Invert)
	w |= uint64(e.CMask) << shiftCMask
	setBit(&w, shiftInTx, e.InTx)
	setBit(&w, shiftInTxCP, e.InTxCP)
	return w
}

// DecodeEventSelect is the exact inverse of EncodeEventSelect: for every
// supported tuple, decoding the encoded word recovers it, per spec §8.
func DecodeEventSelect(w uint64) EventSelect {
	return EventSelect{
		Event:      uint8(w >> shiftEvent),
		UMask:      uint8(w >> shiftUMask),
		User:       bit(w, shiftUser),
		OS:         bit(w, shiftOS),
		Edge:       bit(w, shiftEdge),
		PinControl: bit(w, shiftPinControl),
		APICInt:    bit(w, shiftAPICInt),
		AnyThread:  bit(w, shiftAnyThread),
		Enable:     bit(w, shiftEnable),
		Invert:     bit(w, shiftInvert),
		CMask:      uint8(w >> shiftCMask),
		InTx:       bit(w, shiftInTx),
		InTxCP:     bit(w, shiftInTxCP),
	}
}

// IIOEventSelect encodes an IIO/CXL per-stack control word, whose
// channel-mask field width differs by model (8 bits through Skylake-X,
// 12 bits from Ice Lake-SP onward), per spec §4.4.
func IIOEventSelect(channelMaskWidth int, opcode, channelMask, functionMask uint64) uint64 {
	const shiftOpcode = 0
	shiftChannelMask := 9
	shiftFunctionMask := shiftChannelMask + channelMaskWidth

	var w uint64
	w |= (opcode & 0x1FF) << shiftOpcode
	w |= (channelMask & ((1 << uint(channelMaskWidth)) - 1)) << uint(shiftChannelMask)
	w |= functionMask << uint(shiftFunctionMask)
	return w
}
