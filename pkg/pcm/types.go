// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pcm

import (
	"github.com/antimetal/pcm/pkg/pcm/topology"
	"github.com/antimetal/pcm/pkg/pcm/uncore"
)

// ProgramMode selects what program loads onto the PMU.
type ProgramMode int

const (
	ModeDefault ProgramMode = iota
	ModeCustomCore
	ModeExtCustomCore
	ModeRawPMU
	ModeUncoreMemory
	ModeUncorePower
	ModeUncoreLatency
	ModeUncoreIIO
	ModeUncoreCXL
	ModeUncorePCIe
)

func (m ProgramMode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeCustomCore:
		return "custom_core"
	case ModeExtCustomCore:
		return "ext_custom_core"
	case ModeRawPMU:
		return "raw_pmu"
	case ModeUncoreMemory:
		return "uncore_memory"
	case ModeUncorePower:
		return "uncore_power"
	case ModeUncoreLatency:
		return "uncore_latency"
	case ModeUncoreIIO:
		return "uncore_iio"
	case ModeUncoreCXL:
		return "uncore_cxl"
	case ModeUncorePCIe:
		return "uncore_pcie"
	default:
		return "unknown"
	}
}

// ProgramResult is the public status the engine returns from program.
type ProgramResult int

const (
	Success ProgramResult = iota
	MSRAccessDenied
	PMUBusy
	UnknownError
)

func (r ProgramResult) String() string {
	switch r {
	case Success:
		return "success"
	case MSRAccessDenied:
		return "msr access denied"
	case PMUBusy:
		return "pmu busy"
	default:
		return "unknown error"
	}
}

// ProgramParams is the payload carried by a program mode. Fields unused
// by the selected mode are ignored.
type ProgramParams struct {
	// CustomCore / RawPMU
	EventSelectors []EventSelect
	RawEvents      map[string]RawPMUEvents

	// UncoreMemory
	RankA, RankB int
	PartialWrite bool

	// UncorePower
	PCUProfile    int
	FrequencyBands [3]uint64
	IMCProfiles   [3]int

	// UncoreMemory: enables the PMM read counter. ProgramServerUncoreLatencyMetrics
	// also sets it, but the uncore-latency mode does not read it.
	PMM bool

	// UncoreIIO / UncoreCXL
	Stack       int
	OpcodeMatch uint64
	ChannelMask uint64
	FunctionMask uint64

	// Cbo / CHA
	TIDFilter uint64
}

// RawPMUEvents is the payload of the raw-PMU program mode: a named PMU's
// programmable and fixed event lists.
type RawPMUEvents struct {
	Programmable []EventSelect
	Fixed        []EventSelect
}

// EventSelect is the decoded form of a 64-bit core event-select control
// register. See EncodeEventSelect/DecodeEventSelect in package uncore for
// the bit layout; this is an alias of uncore.EventSelect so that package
// never needs to import pcm in the other direction.
type EventSelect = uncore.EventSelect

// Topology, Socket, Tile, Core, and Thread mirror package topology's
// discovery tree; aliased here so callers building programs against
// package pcm never need to import topology directly. See
// topology.Discoverer for how this tree gets populated.
type (
	Topology = topology.Topology
	Socket   = topology.Socket
	Tile     = topology.Tile
	Core     = topology.Core
	Thread   = topology.Thread
)

// NotAvailable is the sentinel negative value pure derivation helpers
// return when a metric is not supported on the running model, instead
// of an error.
const NotAvailable = -1.0

// CoreCounterState is an immutable per-logical-thread counter snapshot.
// Every field stores the raw widened count as received; no rate
// conversion happens at capture time.
type CoreCounterState struct {
	OSID int

	InstructionsRetired   uint64
	UnhaltedCoreCycles    uint64
	UnhaltedRefCycles     uint64
	ProgrammableCounters  [8]uint64
	InvariantTSC          uint64

	CStateResidency [8]uint64 // index 0..7 (C0,C1,...,C7), raw residency counter ticks
	ThermalHeadroom int32     // degrees C below throttle point, or NotAvailable

	L3Occupancy        uint64
	LocalMemoryBandwidth  uint64
	RemoteMemoryBandwidth uint64
	SMICount           uint64
}

// SocketUncoreCounterState holds one socket's uncore counters.
type SocketUncoreCounterState struct {
	SocketID int

	MCFullReads, MCFullWrites   uint64
	MCPartialWrites             uint64
	HARequests, HALocalRequests uint64
	PMMReads, PMMWrites         uint64
	EDCReads, EDCWrites         uint64
	IORequestsViaMC             uint64

	PackageEnergyStatus uint64
	DRAMEnergyStatus    uint64

	MeshToIOCounters map[string]uint64
	CXLCounters      map[string]uint64

	TOROccupancy uint64
	TORInserts   uint64
	UncoreClocks uint64

	PackageCStateResidency [8]uint64
}

// SystemCounterState holds the per-socket link vectors.
type SystemCounterState struct {
	Links []LinkCounterState
}

// LinkCounterState is one UPI/QPI link's counters.
type LinkCounterState struct {
	SocketID       int
	LinkID         int
	IncomingPackets uint64
	OutgoingFlits   uint64 // data+non-data, or idle, depending on generation
	L0TxCycles      uint64
}

// AddCore aggregates two core states element-wise.
func AddCore(a, b CoreCounterState) CoreCounterState {
	r := a
	r.InstructionsRetired += b.InstructionsRetired
	r.UnhaltedCoreCycles += b.UnhaltedCoreCycles
	r.UnhaltedRefCycles += b.UnhaltedRefCycles
	for i := range r.ProgrammableCounters {
		r.ProgrammableCounters[i] += b.ProgrammableCounters[i]
	}
	r.InvariantTSC += b.InvariantTSC
	for i := range r.CStateResidency {
		r.CStateResidency[i] += b.CStateResidency[i]
	}
	r.L3Occupancy += b.L3Occupancy
	r.LocalMemoryBandwidth += b.LocalMemoryBandwidth
	r.RemoteMemoryBandwidth += b.RemoteMemoryBandwidth
	r.SMICount += b.SMICount
	return r
}

// SubCore computes the per-field delta (after - before). The widener
// already accounts for hardware wraparound, so this is plain
// subtraction; callers must not subtract raw (non-widened) counters.
func SubCore(before, after CoreCounterState) CoreCounterState {
	var r CoreCounterState
	r.OSID = after.OSID
	r.InstructionsRetired = after.InstructionsRetired - before.InstructionsRetired
	r.UnhaltedCoreCycles = after.UnhaltedCoreCycles - before.UnhaltedCoreCycles
	r.UnhaltedRefCycles = after.UnhaltedRefCycles - before.UnhaltedRefCycles
	for i := range r.ProgrammableCounters {
		r.ProgrammableCounters[i] = after.ProgrammableCounters[i] - before.ProgrammableCounters[i]
	}
	r.InvariantTSC = after.InvariantTSC - before.InvariantTSC
	for i := range r.CStateResidency {
		r.CStateResidency[i] = after.CStateResidency[i] - before.CStateResidency[i]
	}
	r.ThermalHeadroom = after.ThermalHeadroom
	r.L3Occupancy = after.L3Occupancy - before.L3Occupancy
	r.LocalMemoryBandwidth = after.LocalMemoryBandwidth - before.LocalMemoryBandwidth
	r.RemoteMemoryBandwidth = after.RemoteMemoryBandwidth - before.RemoteMemoryBandwidth
	r.SMICount = after.SMICount - before.SMICount
	return r
}
