// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pcm

import (
	"context"
	"fmt"

	"github.com/antimetal/pcm/pkg/pcm/hwreg"
	"github.com/antimetal/pcm/pkg/pcm/uncore"
	"github.com/antimetal/pcm/pkg/pcmerrors"
)

// socketUncoreHandles holds every uncore counter handle this session
// opened for one socket, so Snapshot can read them back and Cleanup can
// find them (closing itself happens via e.widened; this struct is just
// the per-field grouping Snapshot reads through).
type socketUncoreHandles struct {
	mcFullRead, mcFullWrite   []*hwreg.WidthExtender // per iMC channel
	mcPartialWrite            []*hwreg.WidthExtender
	mcPMMRead, mcPMMWrite     []*hwreg.WidthExtender

	haRequests, haLocalRequests *hwreg.WidthExtender

	pcuCounters [4]*hwreg.WidthExtender

	torOccupancy, torInserts, uncoreClocks *hwreg.WidthExtender

	linkIncoming, linkOutgoing []*hwreg.WidthExtender // per UPI/QPI link

	iioCounters map[int][]*hwreg.WidthExtender // stack index -> counters
}

func (e *Engine) handlesFor(socketID int) *socketUncoreHandles {
	h, ok := e.uncoreHandles[socketID]
	if !ok {
		h = &socketUncoreHandles{iioCounters: map[int][]*hwreg.WidthExtender{}}
		e.uncoreHandles[socketID] = h
	}
	return h
}

// pciBusForSocket resolves the PCI bus number a socket's PCI-transport
// uncore units live on. See EngineConfig.PCIBusBase: this is a fixed
// convention, not a runtime discovery of the real bus layout.
func (e *Engine) pciBusForSocket(socketID int) int {
	if e.config.PCIBusForSocket != nil {
		return e.config.PCIBusForSocket(socketID)
	}
	return e.config.PCIBusBase + socketID
}

// referenceCoreForSocket returns one online OS cpu id on socket, used to
// address MSR-transport uncore units (PCU, CHA) which PCM always
// accesses through a representative core on the target socket.
func (e *Engine) referenceCoreForSocket(socketID int) (int, error) {
	for _, socket := range e.topology.Sockets {
		if socket.ID != socketID {
			continue
		}
		for _, tile := range socket.Tiles {
			for _, core := range tile.Cores {
				for _, thread := range core.Threads {
					return thread.OSID, nil
				}
			}
		}
	}
	return 0, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.referenceCoreForSocket", fmt.Sprintf("no online core on socket %d", socketID))
}

// openUnitReg opens one register of unit instance on socket at the
// given byte offset from the instance's base, per desc's Transport.
// widthBytes is 4 or 8.
func (e *Engine) openUnitReg(desc uncore.UnitDescriptor, socketID, instance int, offset uint32, widthBytes int) (hwreg.HWRegister, error) {
	switch desc.Transport {
	case uncore.TransportPCI:
		if instance >= len(desc.PCIFunctions) {
			return nil, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.openUnitReg", "pci instance out of range for unit")
		}
		fn := desc.PCIFunctions[instance]
		bus := e.pciBusForSocket(socketID)
		if widthBytes == 8 {
			return hwreg.NewPCI64(0, bus, fn.Device, fn.Function, offset), nil
		}
		return hwreg.NewPCI32(0, bus, fn.Device, fn.Function, offset), nil

	case uncore.TransportMMIO:
		if instance >= len(desc.MMIOBases) {
			return nil, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.openUnitReg", "mmio instance out of range for unit")
		}
		base := desc.MMIOBases[instance] + uint64(socketID)*0x100000 + uint64(offset)
		return hwreg.NewMMIO(base, widthBytes, widthBytes, true)

	case uncore.TransportMSR:
		refCore, err := e.referenceCoreForSocket(socketID)
		if err != nil {
			return nil, err
		}
		address := desc.MSRBase + uint32(instance)*desc.BoxStride + offset
		return hwreg.NewMSR(refCore, address)

	default:
		return nil, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.openUnitReg", "unknown transport")
	}
}

// freezeUnit and unfreezeUnit write the unit's box-control register,
// honoring the model's box-control bit-layout generation.
func (e *Engine) freezeUnit(ctx context.Context, desc uncore.UnitDescriptor, socketID, instance int) (hwreg.HWRegister, error) {
	reg, err := e.openUnitReg(desc, socketID, instance, desc.BoxCtlOffset, 4)
	if err != nil {
		return nil, err
	}
	if err := reg.Write(ctx, uncore.FreezeWord(e.model.SPRUnitCtlLayout)); err != nil {
		reg.Close()
		return nil, err
	}
	return reg, nil
}

func (e *Engine) unfreezeUnit(ctx context.Context, reg hwreg.HWRegister) error {
	defer reg.Close()
	return reg.Write(ctx, uncore.UnfreezeWord(e.model.SPRUnitCtlLayout))
}

// writeUnitCtl writes control register i (0-based, relative to
// CtlOffset0/CtlStride) with an enable=false/enable=true sequence, per
// spec §4.4's write-ordering rule.
func (e *Engine) writeUnitCtl(ctx context.Context, desc uncore.UnitDescriptor, socketID, instance, ctlIndex int, event, umask uint8) error {
	reg, err := e.openUnitReg(desc, socketID, instance, desc.CtlOffset0+uint32(ctlIndex)*desc.CtlStride, 4)
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := reg.Write(ctx, 0); err != nil {
		return err
	}
	return reg.Write(ctx, uncore.EncodeUncoreEventSelect(event, umask, true))
}

// openUnitCounter opens and width-extends counter register i (0-based,
// relative to CtrOffset0/CtrStride).
func (e *Engine) openUnitCounter(desc uncore.UnitDescriptor, socketID, instance, ctrIndex int) (*hwreg.WidthExtender, error) {
	reg, err := e.openUnitReg(desc, socketID, instance, desc.CtrOffset0+uint32(ctrIndex)*desc.CtrStride, 8)
	if err != nil {
		return nil, err
	}
	return e.wrapWidener(reg, desc.CounterWidth)
}

// programUnitCounters is the generic raw-PMU path: freeze, write up to
// len(selectors) control registers (capped by desc.NumCounters), read
// each back through a width extender, unfreeze.
func (e *Engine) programUnitCounters(ctx context.Context, desc uncore.UnitDescriptor, socketID, instance int, selectors []EventSelect) ([]*hwreg.WidthExtender, error) {
	if len(selectors) > desc.NumCounters {
		return nil, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.programUnitCounters", "selector count exceeds unit's counter budget")
	}
	boxCtl, err := e.freezeUnit(ctx, desc, socketID, instance)
	if err != nil {
		return nil, err
	}
	regs := make([]*hwreg.WidthExtender, 0, len(selectors))
	for i, sel := range selectors {
		if err := e.writeUnitCtl(ctx, desc, socketID, instance, i, sel.Event, sel.UMask); err != nil {
			_ = e.unfreezeUnit(ctx, boxCtl)
			return nil, err
		}
		w, err := e.openUnitCounter(desc, socketID, instance, i)
		if err != nil {
			_ = e.unfreezeUnit(ctx, boxCtl)
			return nil, err
		}
		regs = append(regs, w)
	}
	if err := e.unfreezeUnit(ctx, boxCtl); err != nil {
		return nil, err
	}
	return regs, nil
}

// Standard iMC CAS_COUNT event/umask assignments: event 0x04, with the
// umask nibble selecting the transfer direction and, for the
// rank-filtered variant, an individual rank. This matches the public
// Xeon-EP uncore performance-monitoring event tables; PCM's own
// programming source for this sequence was not available to ground
// against directly, so treat these codes as the documented convention,
// not a byte-for-byte reproduction of upstream PCM.
const (
	imcEventCASCount   = 0x04
	imcUMaskReadAll    = 0x0F
	imcUMaskWriteAll   = 0xF0
	imcUMaskPartialWr  = 0x03
	imcUMaskPMMRead    = 0x0C
	imcUMaskPMMWrite   = 0xC0
)

func imcRankUMask(rank int, base uint8) uint8 {
	if rank < 0 || rank > 3 {
		return base
	}
	return base & (0x11 << uint(rank))
}

// programUncoreMemory programs every socket's iMC channels for
// full-line read/write counting, honoring the optional rank filter and
// partial-write/PMM-read counters, per spec §4.4's uncore-memory mode.
func (e *Engine) programUncoreMemory(ctx context.Context, params ProgramParams) error {
	desc, ok := e.model.Units[uncore.UnitIMC]
	if !ok {
		return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programUncoreMemory", "model has no iMC unit descriptor")
	}
	total, _ := uncore.FlattenIMCChannels(e.model.NumIMCChannelsPerController)

	var readUMask, writeUMask uint8 = imcUMaskReadAll, imcUMaskWriteAll
	if params.RankA != 0 || params.RankB != 0 {
		readUMask = imcRankUMask(params.RankA, imcUMaskReadAll)
		writeUMask = imcRankUMask(params.RankA, imcUMaskWriteAll)
	}

	for _, socket := range e.topology.Sockets {
		h := e.handlesFor(socket.ID)
		for ch := 0; ch < total; ch++ {
			boxCtl, err := e.freezeUnit(ctx, desc, socket.ID, ch)
			if err != nil {
				return err
			}
			if err := e.writeUnitCtl(ctx, desc, socket.ID, ch, 0, imcEventCASCount, readUMask); err != nil {
				_ = e.unfreezeUnit(ctx, boxCtl)
				return err
			}
			if err := e.writeUnitCtl(ctx, desc, socket.ID, ch, 1, imcEventCASCount, writeUMask); err != nil {
				_ = e.unfreezeUnit(ctx, boxCtl)
				return err
			}
			ctlIdx := 2
			if params.PartialWrite && desc.NumCounters > 2 {
				if err := e.writeUnitCtl(ctx, desc, socket.ID, ch, ctlIdx, imcEventCASCount, imcUMaskPartialWr); err != nil {
					_ = e.unfreezeUnit(ctx, boxCtl)
					return err
				}
			}
			if params.PMM && desc.NumCounters > 3 {
				if err := e.writeUnitCtl(ctx, desc, socket.ID, ch, ctlIdx+1, imcEventCASCount, imcUMaskPMMRead); err != nil {
					_ = e.unfreezeUnit(ctx, boxCtl)
					return err
				}
			}
			if err := e.unfreezeUnit(ctx, boxCtl); err != nil {
				return err
			}

			read, err := e.openUnitCounter(desc, socket.ID, ch, 0)
			if err != nil {
				return err
			}
			write, err := e.openUnitCounter(desc, socket.ID, ch, 1)
			if err != nil {
				return err
			}
			h.mcFullRead = append(h.mcFullRead, read)
			h.mcFullWrite = append(h.mcFullWrite, write)
			if params.PartialWrite && desc.NumCounters > 2 {
				pw, err := e.openUnitCounter(desc, socket.ID, ch, ctlIdx)
				if err != nil {
					return err
				}
				h.mcPartialWrite = append(h.mcPartialWrite, pw)
			}
			if params.PMM && desc.NumCounters > 3 {
				pr, err := e.openUnitCounter(desc, socket.ID, ch, ctlIdx+1)
				if err != nil {
					return err
				}
				h.mcPMMRead = append(h.mcPMMRead, pr)
			}
		}

		if haDesc, ok := e.pickHomeAgentLike(); ok {
			if reg, err := e.programHomeAgentRequests(ctx, haDesc, socket.ID); err == nil {
				h.haRequests = reg
			}
		}
	}
	return nil
}

// pickHomeAgentLike returns the home-agent-role unit for this model:
// UnitHomeAgent on Sandy Bridge-EP through Broadwell-EP, or its
// Skylake-X-onward replacement UnitMesh2Mem.
func (e *Engine) pickHomeAgentLike() (uncore.UnitDescriptor, bool) {
	if d, ok := e.model.Units[uncore.UnitHomeAgent]; ok {
		return d, true
	}
	d, ok := e.model.Units[uncore.UnitMesh2Mem]
	return d, ok
}

func (e *Engine) programHomeAgentRequests(ctx context.Context, desc uncore.UnitDescriptor, socketID int) (*hwreg.WidthExtender, error) {
	boxCtl, err := e.freezeUnit(ctx, desc, socketID, 0)
	if err != nil {
		return nil, err
	}
	if err := e.writeUnitCtl(ctx, desc, socketID, 0, 0, 0x01, 0x00); err != nil { // total requests
		_ = e.unfreezeUnit(ctx, boxCtl)
		return nil, err
	}
	if err := e.unfreezeUnit(ctx, boxCtl); err != nil {
		return nil, err
	}
	return e.openUnitCounter(desc, socketID, 0, 0)
}

// PCU event codes for each profile index (frequency residency, ILP,
// transitions, thermal/power throttling), the four canonical
// ProgramServerUncorePowerMetrics profiles.
var pcuProfileEvents = [4][4]uint8{
	{0x00, 0x01, 0x02, 0x03}, // profile 0: frequency residency bands
	{0x04, 0x05, 0x06, 0x07}, // profile 1: ILP/core-count residency
	{0x08, 0x09, 0x0A, 0x0B}, // profile 2: transition counts
	{0x0C, 0x0D, 0x0E, 0x0F}, // profile 3: thermal/power throttling
}

// programUncorePower loads the PCU's four counters from the selected
// profile and packs the three frequency bands into the PCU filter
// register, per spec §4.4's uncore-power mode. It also programs the
// per-socket UPI/QPI link counters, since link utilization is reported
// alongside uncore power.
func (e *Engine) programUncorePower(ctx context.Context, params ProgramParams) error {
	pcu, ok := e.model.Units[uncore.UnitPCU]
	if !ok {
		return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programUncorePower", "model has no PCU unit descriptor")
	}
	profile := params.PCUProfile
	if profile < 0 || profile >= len(pcuProfileEvents) {
		profile = 0
	}
	events := pcuProfileEvents[profile]

	link, hasLink := e.model.Units[uncore.UnitUPILink]

	for _, socket := range e.topology.Sockets {
		h := e.handlesFor(socket.ID)

		boxCtl, err := e.freezeUnit(ctx, pcu, socket.ID, 0)
		if err != nil {
			return err
		}
		for i, ev := range events {
			if err := e.writeUnitCtl(ctx, pcu, socket.ID, 0, i, ev, 0x00); err != nil {
				_ = e.unfreezeUnit(ctx, boxCtl)
				return err
			}
		}
		// Frequency-band filter: three 16-bit bands packed low to high,
		// written to the box's filter register, which on both grounded
		// families (JKTIVT 0x0C34, HSX 0x0715) sits immediately past the
		// last control register: CtlOffset0 + NumCounters*CtlStride.
		filterOffset := pcu.CtlOffset0 + uint32(pcu.NumCounters)*pcu.CtlStride
		filterReg, err := e.openUnitReg(pcu, socket.ID, 0, filterOffset, 4)
		if err == nil {
			word := uint64(params.FrequencyBands[0]&0xFFFF) |
				uint64(params.FrequencyBands[1]&0xFFFF)<<16 |
				uint64(params.FrequencyBands[2]&0xFFFF)<<32
			_ = filterReg.Write(ctx, word)
			filterReg.Close()
		}
		if err := e.unfreezeUnit(ctx, boxCtl); err != nil {
			return err
		}
		for i := range events {
			w, err := e.openUnitCounter(pcu, socket.ID, 0, i)
			if err != nil {
				return err
			}
			h.pcuCounters[i] = w
		}

		if hasLink {
			if err := e.programSocketLinks(ctx, link, socket.ID, h); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) programSocketLinks(ctx context.Context, desc uncore.UnitDescriptor, socketID int, h *socketUncoreHandles) error {
	links := desc.NumInstances
	if links == 0 {
		links = e.model.NumQPILinksPerSocket
	}
	for link := 0; link < links; link++ {
		boxCtl, err := e.freezeUnit(ctx, desc, socketID, link)
		if err != nil {
			return err
		}
		if err := e.writeUnitCtl(ctx, desc, socketID, link, 0, 0x03, 0x0F); err != nil { // incoming flits
			_ = e.unfreezeUnit(ctx, boxCtl)
			return err
		}
		if err := e.writeUnitCtl(ctx, desc, socketID, link, 1, 0x02, 0x0F); err != nil { // outgoing data flits
			_ = e.unfreezeUnit(ctx, boxCtl)
			return err
		}
		if err := e.unfreezeUnit(ctx, boxCtl); err != nil {
			return err
		}
		in, err := e.openUnitCounter(desc, socketID, link, 0)
		if err != nil {
			return err
		}
		out, err := e.openUnitCounter(desc, socketID, link, 1)
		if err != nil {
			return err
		}
		h.linkIncoming = append(h.linkIncoming, in)
		h.linkOutgoing = append(h.linkOutgoing, out)
	}
	return nil
}

// SKX-generation TOR-inserts umask bits selecting LLC-miss reads and
// prefetches, per original_source/src/types.h's
// SKX_CHA_TOR_INSERTS_UMASK_{IRQ,PRQ,MISS} macros (irq|prq selects the
// request-class bits, miss selects the LLC-miss qualifier).
const (
	torUMaskIRQ  = 0x01
	torUMaskPRQ  = 0x04
	torUMaskMiss = 0x20
)

// cboTIDEnable is CBO_MSR_PMON_CTL_TID_EN (1<<19) from types.h: when set,
// the TOR-inserts control register only counts requests from the thread
// id loaded into the box's filter register.
const cboTIDEnable = 1 << 19

// chaFilterOffset is SERVER_CHA_MSR_PMON_BOX_FILTER_OFFSET (5), relative
// to the box's control base, one past the last of its four control
// registers (CtlOffset0 + NumCounters*CtlStride).
func chaFilterOffset(desc uncore.UnitDescriptor) uint32 {
	return desc.CtlOffset0 + uint32(desc.NumCounters)*desc.CtlStride
}

// writeCHATORInsertsCtl writes CHA control register 1 (TOR_INSERTS),
// optionally gated to one thread id via the box's filter register, per
// types.h's CBO_MSR_PMON_CTL_TID_EN / SERVER_CHA_MSR_PMON_BOX_FILTER_OFFSET.
func (e *Engine) writeCHATORInsertsCtl(ctx context.Context, desc uncore.UnitDescriptor, socketID int, umask uint8, tid uint64) error {
	if tid != 0 {
		filterReg, err := e.openUnitReg(desc, socketID, 0, chaFilterOffset(desc), 4)
		if err != nil {
			return err
		}
		err = filterReg.Write(ctx, tid)
		filterReg.Close()
		if err != nil {
			return err
		}
	}

	reg, err := e.openUnitReg(desc, socketID, 0, desc.CtlOffset0+1*desc.CtlStride, 4)
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := reg.Write(ctx, 0); err != nil {
		return err
	}
	word := uncore.EncodeUncoreEventSelect(0x35, umask, true)
	if tid != 0 {
		word |= cboTIDEnable
	}
	return reg.Write(ctx, word)
}

// programUncoreLatency programs one CHA box per socket with TOR
// occupancy (counter 0), TOR inserts (counter 1, filtered to LLC-miss
// reads and prefetches), and uncore clocks (counter 2 or the unit's
// fixed counter), per spec §4.4's LLC-miss-latency method.
func (e *Engine) programUncoreLatency(ctx context.Context, params ProgramParams) error {
	cha, ok := e.model.Units[uncore.UnitCHA]
	if !ok {
		return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programUncoreLatency", "model has no CHA unit descriptor")
	}

	missUMask := uint8(torUMaskIRQ | torUMaskPRQ | torUMaskMiss)

	for _, socket := range e.topology.Sockets {
		h := e.handlesFor(socket.ID)
		boxCtl, err := e.freezeUnit(ctx, cha, socket.ID, 0)
		if err != nil {
			return err
		}
		if err := e.writeCHATORInsertsCtl(ctx, cha, socket.ID, missUMask, params.TIDFilter); err != nil {
			_ = e.unfreezeUnit(ctx, boxCtl)
			return err
		}
		if err := e.writeUnitCtl(ctx, cha, socket.ID, 0, 0, 0x36 /* TOR_OCCUPANCY */, missUMask); err != nil {
			_ = e.unfreezeUnit(ctx, boxCtl)
			return err
		}
		if !cha.HasFixedCounter && cha.NumCounters > 2 {
			if err := e.writeUnitCtl(ctx, cha, socket.ID, 0, 2, 0x01 /* uncore clockticks */, 0x00); err != nil {
				_ = e.unfreezeUnit(ctx, boxCtl)
				return err
			}
		}
		if err := e.unfreezeUnit(ctx, boxCtl); err != nil {
			return err
		}

		occ, err := e.openUnitCounter(cha, socket.ID, 0, 0)
		if err != nil {
			return err
		}
		ins, err := e.openUnitCounter(cha, socket.ID, 0, 1)
		if err != nil {
			return err
		}
		h.torOccupancy = occ
		h.torInserts = ins

		if cha.HasFixedCounter {
			clk, err := e.openUnitReg(cha, socket.ID, 0, cha.CtrOffset0+uint32(cha.NumCounters)*cha.CtrStride, 8)
			if err != nil {
				return err
			}
			w, err := e.wrapWidener(clk, cha.CounterWidth)
			if err != nil {
				return err
			}
			h.uncoreClocks = w
		} else if cha.NumCounters > 2 {
			clk, err := e.openUnitCounter(cha, socket.ID, 0, 2)
			if err != nil {
				return err
			}
			h.uncoreClocks = clk
		}
	}
	return nil
}

// programUncoreIIOCXL programs one IIO (or CXL, same register layout)
// stack with the opcode/channel-mask/function-mask filter spec §4.4
// names, honoring the model's channel-mask width (8 bits through
// Skylake-X, 12 bits Ice Lake-SP onward).
func (e *Engine) programUncoreIIOCXL(ctx context.Context, mode ProgramMode, params ProgramParams) error {
	kind := uncore.UnitIIOStack
	if mode == ModeUncoreCXL {
		kind = uncore.UnitCXLPort
	}
	desc, ok := e.model.Units[kind]
	if !ok {
		return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programUncoreIIOCXL", "model has no matching unit descriptor")
	}
	stack := params.Stack
	if stack < 0 {
		stack = 0
	}
	instances := desc.NumInstances
	if instances == 0 {
		instances = len(desc.MMIOBases) + len(desc.PCIFunctions)
	}
	if instances > 0 && stack >= instances {
		return pcmerrors.NewKind(pcmerrors.Invariant, "pcm.programUncoreIIOCXL", "stack index out of range")
	}

	for _, socket := range e.topology.Sockets {
		h := e.handlesFor(socket.ID)
		boxCtl, err := e.freezeUnit(ctx, desc, socket.ID, stack)
		if err != nil {
			return err
		}
		word := uncore.IIOEventSelect(e.model.ChannelMaskWidth, params.OpcodeMatch, params.ChannelMask, params.FunctionMask)
		word |= 1 << 22 // enable, same bit position as the generic uncore layout
		ctlReg, err := e.openUnitReg(desc, socket.ID, stack, desc.CtlOffset0, 4)
		if err != nil {
			_ = e.unfreezeUnit(ctx, boxCtl)
			return err
		}
		if err := ctlReg.Write(ctx, 0); err != nil {
			ctlReg.Close()
			_ = e.unfreezeUnit(ctx, boxCtl)
			return err
		}
		if err := ctlReg.Write(ctx, word); err != nil {
			ctlReg.Close()
			_ = e.unfreezeUnit(ctx, boxCtl)
			return err
		}
		ctlReg.Close()
		if err := e.unfreezeUnit(ctx, boxCtl); err != nil {
			return err
		}

		counter, err := e.openUnitCounter(desc, socket.ID, stack, 0)
		if err != nil {
			return err
		}
		h.iioCounters[stack] = []*hwreg.WidthExtender{counter}
	}
	return nil
}

// readSocketUncoreState reads every uncore bank this session programmed
// for socket into a SocketUncoreCounterState, per spec §4.4's "read
// each uncore bank per socket" snapshot step. Fields with no
// corresponding programmed handle stay zero rather than erroring, since
// not every mode programs every bank.
func (e *Engine) readSocketUncoreState(ctx context.Context, socket Socket) SocketUncoreCounterState {
	state := SocketUncoreCounterState{SocketID: socket.ID}
	h, ok := e.uncoreHandles[socket.ID]
	if !ok {
		return state
	}

	sum := func(regs []*hwreg.WidthExtender) uint64 {
		var total uint64
		for _, r := range regs {
			if v, err := r.Read(ctx); err == nil {
				total += v
			}
		}
		return total
	}

	state.MCFullReads = sum(h.mcFullRead)
	state.MCFullWrites = sum(h.mcFullWrite)
	state.MCPartialWrites = sum(h.mcPartialWrite)
	state.PMMReads = sum(h.mcPMMRead)
	state.PMMWrites = sum(h.mcPMMWrite)

	if h.haRequests != nil {
		if v, err := h.haRequests.Read(ctx); err == nil {
			state.HARequests = v
		}
	}
	if h.haLocalRequests != nil {
		if v, err := h.haLocalRequests.Read(ctx); err == nil {
			state.HALocalRequests = v
		}
	}
	if h.torOccupancy != nil {
		if v, err := h.torOccupancy.Read(ctx); err == nil {
			state.TOROccupancy = v
		}
	}
	if h.torInserts != nil {
		if v, err := h.torInserts.Read(ctx); err == nil {
			state.TORInserts = v
		}
	}
	if h.uncoreClocks != nil {
		if v, err := h.uncoreClocks.Read(ctx); err == nil {
			state.UncoreClocks = v
		}
	}

	if len(h.iioCounters) > 0 {
		state.MeshToIOCounters = map[string]uint64{}
		for stack, regs := range h.iioCounters {
			state.MeshToIOCounters[fmt.Sprintf("stack%d", stack)] = sum(regs)
		}
	}

	if reg, err := hwreg.NewMSR(mustRefCore(e, socket.ID), msrPkgEnergyStatus); err == nil {
		if v, err := reg.Read(ctx); err == nil {
			state.PackageEnergyStatus = v
		}
		reg.Close()
	}
	if reg, err := hwreg.NewMSR(mustRefCore(e, socket.ID), msrDRAMEnergyStatus); err == nil {
		if v, err := reg.Read(ctx); err == nil {
			state.DRAMEnergyStatus = v
		}
		reg.Close()
	}

	return state
}

func mustRefCore(e *Engine, socketID int) int {
	core, err := e.referenceCoreForSocket(socketID)
	if err != nil {
		return 0
	}
	return core
}

// buildLinkStates reads every programmed UPI/QPI link counter across
// all sockets into the system-wide link vector Snapshot returns.
func (e *Engine) buildLinkStates(ctx context.Context) []LinkCounterState {
	var links []LinkCounterState
	for _, socket := range e.topology.Sockets {
		h, ok := e.uncoreHandles[socket.ID]
		if !ok {
			continue
		}
		for i := range h.linkIncoming {
			var in, out uint64
			if v, err := h.linkIncoming[i].Read(ctx); err == nil {
				in = v
			}
			if i < len(h.linkOutgoing) {
				if v, err := h.linkOutgoing[i].Read(ctx); err == nil {
					out = v
				}
			}
			links = append(links, LinkCounterState{
				SocketID:        socket.ID,
				LinkID:          i,
				IncomingPackets: in,
				OutgoingFlits:   out,
			})
		}
	}
	return links
}

// GetRawPMUCounterState reads back the counters programRawPMU opened
// for name, per spec §6's raw-PMU process-boundary contract.
func (e *Engine) GetRawPMUCounterState(ctx context.Context, name string) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	regs, ok := e.rawUncore[name]
	if !ok {
		return nil, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.GetRawPMUCounterState", fmt.Sprintf("pmu %q was not programmed", name))
	}
	out := make([]uint64, len(regs))
	for i, r := range regs {
		v, err := r.Read(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
