// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package uncore is the per-microarchitecture description of every
// uncore unit and how it is addressed: memory controller, home agent,
// mesh-to-memory, UPI/QPI link, power-control unit, CHA/CBO, I/O stack,
// UBox, CXL port. It is a closed table keyed by model id, switch-
// dispatched at construction time — no virtual hierarchy, per spec §9's
// design note on per-microarchitecture dispatch.
package uncore

import (
	"github.com/antimetal/pcm/internal/cpumodel"
	"github.com/antimetal/pcm/pkg/pcmerrors"
)

// Transport names which hardware access path a unit uses.
type Transport int

const (
	TransportMSR Transport = iota
	TransportPCI
	TransportMMIO
)

// UnitKind enumerates the uncore unit categories spec §3/§4.3 names.
type UnitKind int

const (
	UnitIMC UnitKind = iota
	UnitHomeAgent
	UnitMesh2Mem
	UnitUPILink
	UnitM3UPI
	UnitPCU
	UnitCHA
	UnitIIOStack
	UnitUBox
	UnitCXLPort
)

// UnitDescriptor describes one uncore unit type for a model: its
// transport, counter width, counters-per-unit, any workaround opt-ins,
// and the addressing data needed to actually reach its registers.
//
// Addressing is one of three shapes depending on Transport:
//   - TransportPCI: PCIFunctions holds one (device, function) tuple per
//     channel/link instance; the bus number is resolved by the caller.
//   - TransportMMIO: MMIOBases holds one physical base per instance.
//   - TransportMSR: MSRBase is the box-control MSR of instance 0;
//     instance i's registers live at MSRBase + i*BoxStride.
//
// BoxCtlOffset/CtlOffset0/CtlStride/CtrOffset0/CtrStride are then
// relative to each instance's base above, per
// original_source/src/types.h's XPF_*/HSX_*/JKTIVT_*/SERVER_CHA_*
// register tables.
type UnitDescriptor struct {
	Kind            UnitKind
	Transport       Transport
	CounterWidth    uint // bits, before width-extension
	NumCounters     int
	NumInstances    int // channels/links/boxes per socket
	HasFixedCounter bool
	JKTWorkaround   bool // "JKT workaround": a bit that must be set to count
	// certain LLC events, at a documented latency cost

	PCIFunctions []PCIFunction
	MMIOBases    []uint64
	MSRBase      uint32
	BoxStride    uint32

	BoxCtlOffset   uint32
	CtlOffset0     uint32
	CtlStride      uint32
	CtrOffset0     uint32
	CtrStride      uint32
	FixedCtrOffset uint32
}

// ModelDescriptor is the value-typed, per-(family,model) registry entry.
type ModelDescriptor struct {
	Model cpumodel.Model

	NumIMCChannelsPerController []int // flattened in socket-local order
	NumQPILinksPerSocket        int

	Units map[UnitKind]UnitDescriptor

	ChannelMaskWidth int // IIO/CXL filter width: 8 (SKX) or 12 (ICX+)

	// SPRUnitCtlLayout selects the Sapphire Rapids-generation box-control
	// bit positions (see FreezeWord) instead of the legacy ones.
	SPRUnitCtlLayout bool
}

// Generic PCI-transport PMON register layout shared by iMC, home-agent,
// mesh-to-memory, and the pre-MMIO UPI/QPI link units, per
// original_source/src/types.h's XPF_MC_CH_PCI_PMON_*/XPF_HA_PCI_PMON_*
// constants (box-ctl 0xF4, ctl0 0xD8 stride 4, ctr0 0xA0 stride 8).
const (
	xpfBoxCtl   = 0x0F4
	xpfCtl0     = 0x0D8
	xpfCtlStride = 4
	xpfCtr0     = 0x0A0
	xpfCtrStride = 8
)

// jktivtPCU and hsxPCU are the PCU MSR_PMON register bases for the two
// grounded families in original_source/src/types.h; every later server
// generation through Sapphire Rapids keeps the HSX layout.
const (
	jktivtPCUBoxCtl = 0x0C24
	jktivtPCUCtl0   = 0x0C30
	jktivtPCUCtr0   = 0x0C36

	hsxPCUBoxCtl = 0x0710
	hsxPCUCtl0   = 0x0711
	hsxPCUCtr0   = 0x0717
)

// CHA box-control MSR base for instance 0 and the stride between
// instances, per types.h's ICX_CHA_MSR_PMON_BOX_CTL[] array (0x0E00,
// 0x0E0E, ... -> stride 0x0E); SERVER_CHA_MSR_PMON_CTL0_OFFSET=1 and
// CTR0_OFFSET=8 are relative to each instance's box-ctl base and are
// shared across every CHA-bearing generation (Skylake-X onward reuses
// the "server" offsets even where its own absolute box base was not
// separately grounded here).
const (
	chaBoxCtlBase0  = 0x0E00
	chaBoxStride    = 0x0E
	chaCtlOffset0   = 1
	chaCtrOffset0   = 8
)

var registry = map[cpumodel.Model]ModelDescriptor{
	cpumodel.ModelSandyBridgeEP: {
		Model:                       cpumodel.ModelSandyBridgeEP,
		NumIMCChannelsPerController: []int{4},
		NumQPILinksPerSocket:        2,
		ChannelMaskWidth:            8,
		Units: map[UnitKind]UnitDescriptor{
			UnitIMC: {
				Kind: UnitIMC, Transport: TransportPCI, CounterWidth: 32, NumCounters: 4,
				// JKTIVT_MC0_CH{0,1,2,3}_REGISTER_DEV/FUNC_ADDR.
				PCIFunctions: []PCIFunction{{16, 4}, {16, 5}, {16, 0}, {16, 1}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitHomeAgent: {
				Kind: UnitHomeAgent, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				PCIFunctions: []PCIFunction{{14, 0}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitUPILink: {
				Kind: UnitUPILink, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 2,
				// JKTIVT_QPI_PORT0_REGISTER_DEV/FUNC_ADDR; subsequent
				// ports increment function per the family's PCI layout.
				PCIFunctions: []PCIFunction{{8, 2}, {8, 3}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitPCU: {
				Kind: UnitPCU, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				MSRBase: jktivtPCUBoxCtl, BoxCtlOffset: 0,
				CtlOffset0: jktivtPCUCtl0 - jktivtPCUBoxCtl, CtlStride: 1,
				CtrOffset0: jktivtPCUCtr0 - jktivtPCUBoxCtl, CtrStride: 1,
			},
			UnitCHA: {
				Kind: UnitCHA, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, JKTWorkaround: true, NumInstances: 1,
				PCIFunctions: []PCIFunction{{16, 2}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
		},
	},
	cpumodel.ModelIvyBridgeEP: {
		Model:                       cpumodel.ModelIvyBridgeEP,
		NumIMCChannelsPerController: []int{4},
		NumQPILinksPerSocket:        2,
		ChannelMaskWidth:            8,
		Units: map[UnitKind]UnitDescriptor{
			UnitIMC: {
				Kind: UnitIMC, Transport: TransportPCI, CounterWidth: 32, NumCounters: 4,
				PCIFunctions: []PCIFunction{{16, 4}, {16, 5}, {16, 0}, {16, 1}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitHomeAgent: {
				Kind: UnitHomeAgent, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				PCIFunctions: []PCIFunction{{14, 0}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitUPILink: {
				Kind: UnitUPILink, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 2,
				PCIFunctions: []PCIFunction{{8, 2}, {8, 3}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitPCU: {
				Kind: UnitPCU, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				MSRBase: jktivtPCUBoxCtl, CtlOffset0: jktivtPCUCtl0 - jktivtPCUBoxCtl, CtlStride: 1,
				CtrOffset0: jktivtPCUCtr0 - jktivtPCUBoxCtl, CtrStride: 1,
			},
			UnitCHA: {
				Kind: UnitCHA, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, JKTWorkaround: true, NumInstances: 1,
				PCIFunctions: []PCIFunction{{16, 2}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
		},
	},
	cpumodel.ModelHaswellEP: {
		Model:                       cpumodel.ModelHaswellEP,
		NumIMCChannelsPerController: []int{4, 4},
		NumQPILinksPerSocket:        3,
		ChannelMaskWidth:            8,
		Units: map[UnitKind]UnitDescriptor{
			UnitIMC: {
				Kind: UnitIMC, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4,
				// HSX_MC0_CH{0..3}_*; MC1 reuses the same function
				// assignment two PCI devices further out, the documented
				// Xeon-EP "device increments by 2 per controller" pattern.
				PCIFunctions: []PCIFunction{{20, 0}, {20, 1}, {21, 0}, {21, 1}, {22, 0}, {22, 1}, {23, 0}, {23, 1}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitHomeAgent: {
				Kind: UnitHomeAgent, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 2,
				PCIFunctions: []PCIFunction{{14, 0}, {14, 1}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitUPILink: {
				Kind: UnitUPILink, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 3,
				// HSX_QPI_PORT0_REGISTER_DEV/FUNC_ADDR.
				PCIFunctions: []PCIFunction{{8, 2}, {8, 3}, {9, 2}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitPCU: {
				Kind: UnitPCU, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				MSRBase: hsxPCUBoxCtl, CtlOffset0: hsxPCUCtl0 - hsxPCUBoxCtl, CtlStride: 1,
				CtrOffset0: hsxPCUCtr0 - hsxPCUBoxCtl, CtrStride: 1,
			},
			UnitCHA: {
				Kind: UnitCHA, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				PCIFunctions: []PCIFunction{{16, 2}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
		},
	},
	cpumodel.ModelBroadwellEP: {
		Model:                       cpumodel.ModelBroadwellEP,
		NumIMCChannelsPerController: []int{4, 4},
		NumQPILinksPerSocket:        3,
		ChannelMaskWidth:            8,
		Units: map[UnitKind]UnitDescriptor{
			UnitIMC: {
				Kind: UnitIMC, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4,
				PCIFunctions: []PCIFunction{{20, 0}, {20, 1}, {21, 0}, {21, 1}, {22, 0}, {22, 1}, {23, 0}, {23, 1}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitHomeAgent: {
				Kind: UnitHomeAgent, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 2,
				PCIFunctions: []PCIFunction{{14, 0}, {14, 1}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitUPILink: {
				Kind: UnitUPILink, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 3,
				PCIFunctions: []PCIFunction{{8, 2}, {8, 3}, {9, 2}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitPCU: {
				Kind: UnitPCU, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				MSRBase: hsxPCUBoxCtl, CtlOffset0: hsxPCUCtl0 - hsxPCUBoxCtl, CtlStride: 1,
				CtrOffset0: hsxPCUCtr0 - hsxPCUBoxCtl, CtrStride: 1,
			},
			UnitCHA: {
				Kind: UnitCHA, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				PCIFunctions: []PCIFunction{{16, 2}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
		},
	},
	cpumodel.ModelSkylakeX: {
		Model:                       cpumodel.ModelSkylakeX,
		NumIMCChannelsPerController: []int{3, 3},
		NumQPILinksPerSocket:        3, // UPI
		ChannelMaskWidth:            8,
		Units: map[UnitKind]UnitDescriptor{
			UnitIMC: {
				Kind: UnitIMC, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4,
				PCIFunctions: []PCIFunction{{10, 2}, {10, 6}, {11, 2}, {12, 2}, {12, 6}, {13, 2}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitMesh2Mem: {
				Kind: UnitMesh2Mem, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 2,
				// SKX_M2M_{0,1}_REGISTER_DEV/FUNC_ADDR.
				PCIFunctions: []PCIFunction{{8, 0}, {9, 0}},
				BoxCtlOffset: 0x258, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitUPILink: {
				Kind: UnitUPILink, Transport: TransportPCI, CounterWidth: 48, NumCounters: 4, NumInstances: 3,
				// SKX_QPI_PORT0_REGISTER_DEV/FUNC_ADDR.
				PCIFunctions: []PCIFunction{{14, 0}, {15, 0}, {16, 0}},
				BoxCtlOffset: 0x378, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitPCU: {
				Kind: UnitPCU, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				MSRBase: hsxPCUBoxCtl, CtlOffset0: hsxPCUCtl0 - hsxPCUBoxCtl, CtlStride: 1,
				CtrOffset0: hsxPCUCtr0 - hsxPCUBoxCtl, CtrStride: 1,
			},
			UnitCHA: {
				Kind: UnitCHA, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, HasFixedCounter: true, NumInstances: 1,
				MSRBase: chaBoxCtlBase0, BoxStride: chaBoxStride,
				CtlOffset0: chaCtlOffset0, CtlStride: 1,
				CtrOffset0: chaCtrOffset0, CtrStride: 1,
			},
			UnitIIOStack: {
				Kind: UnitIIOStack, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 6,
				MSRBase: 0x0A40, BoxStride: 0x10, BoxCtlOffset: 0, CtlOffset0: 1, CtlStride: 1, CtrOffset0: 5, CtrStride: 1,
			},
			UnitUBox: {
				Kind: UnitUBox, Transport: TransportPCI, CounterWidth: 48, NumCounters: 2, NumInstances: 1,
				PCIFunctions: []PCIFunction{{0, 1}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
		},
	},
	cpumodel.ModelIceLakeX: {
		Model:                       cpumodel.ModelIceLakeX,
		NumIMCChannelsPerController: []int{2, 2, 2},
		NumQPILinksPerSocket:        3,
		ChannelMaskWidth:            12,
		Units: map[UnitKind]UnitDescriptor{
			UnitIMC: {
				Kind: UnitIMC, Transport: TransportMMIO, CounterWidth: 48, NumCounters: 4,
				// Real PCM resolves these MMIO bases from a UBOX BAR
				// register at runtime; this is a fixed placeholder
				// convention (base + socket*0x100000 handled by the
				// caller) documented in DESIGN.md, not a discovered address.
				MMIOBases: []uint64{0xFED40000, 0xFED41000, 0xFED42000, 0xFED43000, 0xFED44000, 0xFED45000},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitMesh2Mem: {
				Kind: UnitMesh2Mem, Transport: TransportMMIO, CounterWidth: 48, NumCounters: 4, NumInstances: 2,
				MMIOBases:    []uint64{0xFED50000, 0xFED51000},
				BoxCtlOffset: 0x438, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitUPILink: {
				Kind: UnitUPILink, Transport: TransportMMIO, CounterWidth: 48, NumCounters: 4, NumInstances: 3,
				MMIOBases:    []uint64{0xFED60000, 0xFED61000, 0xFED62000},
				BoxCtlOffset: 0x318, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitPCU: {
				Kind: UnitPCU, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				MSRBase: hsxPCUBoxCtl, CtlOffset0: hsxPCUCtl0 - hsxPCUBoxCtl, CtlStride: 1,
				CtrOffset0: hsxPCUCtr0 - hsxPCUBoxCtl, CtrStride: 1,
			},
			UnitCHA: {
				Kind: UnitCHA, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, HasFixedCounter: true, NumInstances: 1,
				// ICX_CHA_MSR_PMON_BOX_CTL[0], stride to [1].
				MSRBase: chaBoxCtlBase0, BoxStride: chaBoxStride,
				CtlOffset0: chaCtlOffset0, CtlStride: 1,
				CtrOffset0: chaCtrOffset0, CtrStride: 1,
			},
			UnitIIOStack: {
				Kind: UnitIIOStack, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 6,
				MSRBase: 0x0A40, BoxStride: 0x10, CtlOffset0: 1, CtlStride: 1, CtrOffset0: 5, CtrStride: 1,
			},
			UnitUBox: {
				Kind: UnitUBox, Transport: TransportPCI, CounterWidth: 48, NumCounters: 2, NumInstances: 1,
				PCIFunctions: []PCIFunction{{0, 1}},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
		},
	},
	cpumodel.ModelSapphireRapids: {
		Model:                       cpumodel.ModelSapphireRapids,
		NumIMCChannelsPerController: []int{2, 2, 2, 2},
		NumQPILinksPerSocket:        4,
		ChannelMaskWidth:            12,
		SPRUnitCtlLayout:            true,
		Units: map[UnitKind]UnitDescriptor{
			UnitIMC: {
				Kind: UnitIMC, Transport: TransportMMIO, CounterWidth: 48, NumCounters: 4,
				MMIOBases:    []uint64{0xFED70000, 0xFED71000, 0xFED72000, 0xFED73000, 0xFED74000, 0xFED75000, 0xFED76000, 0xFED77000},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitMesh2Mem: {
				Kind: UnitMesh2Mem, Transport: TransportMMIO, CounterWidth: 48, NumCounters: 4, NumInstances: 4,
				MMIOBases:    []uint64{0xFED80000, 0xFED81000, 0xFED82000, 0xFED83000},
				BoxCtlOffset: 0x438, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitUPILink: {
				Kind: UnitUPILink, Transport: TransportMMIO, CounterWidth: 48, NumCounters: 4, NumInstances: 4,
				MMIOBases:    []uint64{0xFED90000, 0xFED91000, 0xFED92000, 0xFED93000},
				BoxCtlOffset: 0x318, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
			UnitPCU: {
				Kind: UnitPCU, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 1,
				MSRBase: hsxPCUBoxCtl, CtlOffset0: hsxPCUCtl0 - hsxPCUBoxCtl, CtlStride: 1,
				CtrOffset0: hsxPCUCtr0 - hsxPCUBoxCtl, CtrStride: 1,
			},
			UnitCHA: {
				Kind: UnitCHA, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, HasFixedCounter: true, NumInstances: 1,
				MSRBase: chaBoxCtlBase0, BoxStride: chaBoxStride,
				CtlOffset0: chaCtlOffset0, CtlStride: 1,
				CtrOffset0: chaCtrOffset0, CtrStride: 1,
			},
			UnitIIOStack: {
				Kind: UnitIIOStack, Transport: TransportMSR, CounterWidth: 48, NumCounters: 4, NumInstances: 4,
				MSRBase: 0x0A40, BoxStride: 0x10, CtlOffset0: 1, CtlStride: 1, CtrOffset0: 5, CtrStride: 1,
			},
			UnitUBox: {
				Kind: UnitUBox, Transport: TransportMSR, CounterWidth: 48, NumCounters: 2, NumInstances: 1,
				MSRBase: 0x2FD0, CtlOffset0: 1, CtlStride: 1, CtrOffset0: 4, CtrStride: 1,
			},
			UnitCXLPort: {
				Kind: UnitCXLPort, Transport: TransportMMIO, CounterWidth: 48, NumCounters: 4, NumInstances: 2,
				MMIOBases:    []uint64{0xFEDA0000, 0xFEDA1000},
				BoxCtlOffset: xpfBoxCtl, CtlOffset0: xpfCtl0, CtlStride: xpfCtlStride,
				CtrOffset0: xpfCtr0, CtrStride: xpfCtrStride,
			},
		},
	},
}

// Lookup returns the descriptor for model and true, or the zero value
// and false if the model is not in the registry — the UnsupportedProcessor
// condition of spec §4.2/§4.3.
func Lookup(model cpumodel.Model) (ModelDescriptor, bool) {
	d, ok := registry[model]
	return d, ok
}

// MustLookup is a convenience for callers that have already checked
// Lookup succeeds (e.g. after a topology discovery that recorded
// Unsupported=false).
func MustLookup(model cpumodel.Model) (ModelDescriptor, error) {
	d, ok := Lookup(model)
	if !ok {
		return ModelDescriptor{}, pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "uncore.MustLookup", "model not in registry")
	}
	return d, nil
}

// FlattenIMCChannels returns the total channel count across all memory
// controllers and the channel index offset of each controller, per
// spec §4.3's "channel indices flatten across controllers in
// socket-local order" rule.
func FlattenIMCChannels(perController []int) (total int, offsets []int) {
	offsets = make([]int, len(perController))
	for i, n := range perController {
		offsets[i] = total
		total += n
	}
	return total, offsets
}
