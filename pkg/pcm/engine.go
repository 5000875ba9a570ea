// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pcm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/antimetal/pcm/pkg/pcm/hwreg"
	"github.com/antimetal/pcm/pkg/pcm/resctrl"
	"github.com/antimetal/pcm/pkg/pcm/semaphore"
	"github.com/antimetal/pcm/pkg/pcm/topology"
	"github.com/antimetal/pcm/pkg/pcm/uncore"
	"github.com/antimetal/pcm/pkg/pcmerrors"
)

// Core MSR addresses shared across every supported microarchitecture.
const (
	msrIA32TimeStampCounter = 0x10
	msrIA32PerfEvtSel0      = 0x186
	msrIA32PMC0             = 0xC1
	msrIA32MPerf            = 0xE7
	msrIA32APerf            = 0xE8
	msrIA32FixedCtr0        = 0x309 // instructions retired
	msrIA32FixedCtr1        = 0x30A // unhalted core cycles
	msrIA32FixedCtr2        = 0x30B // unhalted reference cycles
	msrIA32FixedCtrCtrl     = 0x38D
	msrIA32PerfGlobalCtrl   = 0x38F
	msrIA32PerfGlobalStatus = 0x38E
	msrCoreC3Residency      = 0x3FC
	msrCoreC6Residency      = 0x3FD
	msrCoreC7Residency      = 0x3FE
	msrPkgEnergyStatus      = 0x611
	msrDRAMEnergyStatus     = 0x619
	msrSMICount             = 0x34
	msrIA32ThermStatus      = 0x19C
)

// Engine is the process-wide PMU singleton described in spec §3's
// Lifecycle invariant: created lazily, programmed at most once per
// client session, and always safe to clean up.
type Engine struct {
	config EngineConfig
	logger logr.Logger

	topology *Topology
	model    uncore.ModelDescriptor
	hasModel bool

	sema *semaphore.Exclusion

	// mu guards programmed/mode and forbids calling program
	// concurrently with snapshot, per spec §4.4.
	mu        sync.Mutex
	programmed bool
	mode       ProgramMode
	params     ProgramParams

	coreFixed map[int]*coreFixedCounters // OS CPU id -> fixed-counter handles
	widened   []*hwreg.WidthExtender     // every widener this session created, for Cleanup

	resctrl *resctrl.Bridge

	uncoreHandles map[int]*socketUncoreHandles  // socket id -> programmed uncore handles
	rawUncore     map[string][]*hwreg.WidthExtender // raw-PMU name -> programmable counters

	updater *Updater
}

type coreFixedCounters struct {
	instrRetired *hwreg.WidthExtender
	coreCycles   *hwreg.WidthExtender
	refCycles    *hwreg.WidthExtender
	tsc          hwreg.HWRegister
	mperf        *hwreg.WidthExtender
	aperf        *hwreg.WidthExtender
	c3           *hwreg.WidthExtender
	c6           *hwreg.WidthExtender
	c7           *hwreg.WidthExtender
	pmc          [8]*hwreg.WidthExtender
}

var (
	instanceOnce sync.Once
	instance     *Engine
	instanceGrp  singleflight.Group
	instanceErr  error
)

// GetInstance returns the process-wide Engine, constructing it on first
// call. Concurrent first callers collapse onto one initialization via
// singleflight, and every caller observes the same *Engine afterward via
// sync.Once.
func GetInstance(logger logr.Logger, config EngineConfig) (*Engine, error) {
	instanceOnce.Do(func() {
		_, err, _ := instanceGrp.Do("init", func() (any, error) {
			config.ApplyDefaults()
			e := &Engine{
				config:        config,
				logger:        logger.WithName("pcm"),
				coreFixed:     map[int]*coreFixedCounters{},
				sema:          semaphore.New(config.SemaphorePath),
				resctrl:       resctrl.New(logger),
				uncoreHandles: map[int]*socketUncoreHandles{},
				rawUncore:     map[string][]*hwreg.WidthExtender{},
			}

			topo, err := topology.New(config.HostProcPath, config.HostSysPath).Discover()
			if err != nil {
				return nil, fmt.Errorf("discovering topology: %w", err)
			}
			e.topology = topo

			if !topo.Unsupported {
				if d, ok := uncore.Lookup(topo.Model); ok {
					e.model = d
					e.hasModel = true
				} else {
					topo.Unsupported = true
				}
			}

			instance = e
			return nil, nil
		})
		instanceErr = err
	})
	if instanceErr != nil {
		return nil, instanceErr
	}
	return instance, nil
}

// GetSystemTopology returns the discovered topology.
func (e *Engine) GetSystemTopology() *Topology {
	return e.topology
}

// Programmed reports whether a program is currently loaded, satisfying
// pcmmetrics.HealthSource.
func (e *Engine) Programmed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.programmed
}

// ProgramMode returns the numeric mode of the currently loaded program,
// satisfying pcmmetrics.HealthSource. Meaningless when Programmed is
// false.
func (e *Engine) ProgramMode() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.mode)
}

// Program loads mode onto the PMU. Pre: the engine is not already
// programmed, or ResetPMU was called. Post on Success: fixed counters
// are enabled for {instructions retired, unhalted core cycles, unhalted
// reference cycles}; general-purpose counters are loaded per mode;
// per-mode uncore units are unfrozen; programmed=true.
func (e *Engine) Program(ctx context.Context, mode ProgramMode, params ProgramParams) (ProgramResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.programmed {
		return UnknownError, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.Program", "program called twice without reset")
	}

	if !e.sema.Held() {
		if err := e.sema.Acquire(e.config.AllowMultipleInstances); err != nil {
			if pcmerrors.IsKind(err, pcmerrors.Busy) {
				return PMUBusy, err
			}
			return UnknownError, err
		}
	}

	if err := e.programCoreFixedCounters(ctx); err != nil {
		e.sema.Release()
		if pcmerrors.IsKind(err, pcmerrors.AccessDenied) {
			return MSRAccessDenied, err
		}
		return UnknownError, err
	}

	if err := e.programMode(ctx, mode, params); err != nil {
		e.sema.Release()
		if pcmerrors.IsKind(err, pcmerrors.AccessDenied) {
			return MSRAccessDenied, err
		}
		return UnknownError, err
	}

	if onlineCores := e.onlineCoreSocketMap(); len(onlineCores) > 0 {
		_ = e.resctrl.Init(onlineCores)
	}

	e.mode = mode
	e.params = params
	e.programmed = true
	return Success, nil
}

// ProgramServerUncoreMemoryMetrics is the dedicated entry point for
// ModeUncoreMemory, per spec §6's process-boundary contract.
func (e *Engine) ProgramServerUncoreMemoryMetrics(ctx context.Context, rankA, rankB int, partialWrites bool) (ProgramResult, error) {
	return e.Program(ctx, ModeUncoreMemory, ProgramParams{RankA: rankA, RankB: rankB, PartialWrite: partialWrites})
}

func (e *Engine) ProgramServerUncorePowerMetrics(ctx context.Context, pcuProfile int, imcProfiles [3]int, bands [3]uint64) (ProgramResult, error) {
	return e.Program(ctx, ModeUncorePower, ProgramParams{PCUProfile: pcuProfile, IMCProfiles: imcProfiles, FrequencyBands: bands})
}

func (e *Engine) ProgramServerUncoreLatencyMetrics(ctx context.Context, pmm bool) (ProgramResult, error) {
	return e.Program(ctx, ModeUncoreLatency, ProgramParams{PMM: pmm})
}

func (e *Engine) ProgramIIOCounters(ctx context.Context, events []EventSelect, stack int) (ProgramResult, error) {
	return e.Program(ctx, ModeUncoreIIO, ProgramParams{EventSelectors: events, Stack: stack})
}

func (e *Engine) ProgramCbo(ctx context.Context, events []EventSelect, opcode uint64) (ProgramResult, error) {
	return e.Program(ctx, ModeDefault, ProgramParams{EventSelectors: events, OpcodeMatch: opcode})
}

func (e *Engine) programCoreFixedCounters(ctx context.Context) error {
	for _, socket := range e.topology.Sockets {
		for _, tile := range socket.Tiles {
			for _, core := range tile.Cores {
				for _, thread := range core.Threads {
					if err := e.programThreadFixedCounters(ctx, thread.OSID); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// wrapWidener wraps reg in a WidthExtender, starts its watchdog, and
// registers it in e.widened so Cleanup always closes it regardless of
// which program mode created it.
func (e *Engine) wrapWidener(reg hwreg.HWRegister, width uint) (*hwreg.WidthExtender, error) {
	w, err := hwreg.NewWidthExtender(reg, width, e.config.WidthExtenderDefaultPeriod, e.logger)
	if err != nil {
		reg.Close()
		return nil, err
	}
	w.StartWatchdog()
	e.widened = append(e.widened, w)
	return w, nil
}

func (e *Engine) programThreadFixedCounters(ctx context.Context, osID int) error {
	if e.config.NoMSR {
		return nil
	}

	mkWidener := func(address uint32, width uint) (*hwreg.WidthExtender, error) {
		msr, err := hwreg.NewMSR(osID, address)
		if err != nil {
			return nil, err
		}
		return e.wrapWidener(msr, width)
	}

	ctrl, err := hwreg.NewMSR(osID, msrIA32FixedCtrCtrl)
	if err != nil {
		return err
	}
	// enable=0 first, then enable=1, per spec §4.4's write-ordering rule.
	if err := ctrl.Write(ctx, 0); err != nil {
		return err
	}
	if err := ctrl.Write(ctx, 0x333); err != nil { // os+user for FIXED_CTR0..2
		return err
	}
	ctrl.Close()

	fc := &coreFixedCounters{}
	if fc.instrRetired, err = mkWidener(msrIA32FixedCtr0, 48); err != nil {
		return err
	}
	if fc.coreCycles, err = mkWidener(msrIA32FixedCtr1, 48); err != nil {
		return err
	}
	if fc.refCycles, err = mkWidener(msrIA32FixedCtr2, 48); err != nil {
		return err
	}
	if fc.tsc, err = hwreg.NewMSR(osID, msrIA32TimeStampCounter); err != nil {
		return err
	}
	if fc.mperf, err = mkWidener(msrIA32MPerf, 64); err != nil {
		return err
	}
	if fc.aperf, err = mkWidener(msrIA32APerf, 64); err != nil {
		return err
	}
	if fc.c3, err = mkWidener(msrCoreC3Residency, 64); err != nil {
		return err
	}
	if fc.c6, err = mkWidener(msrCoreC6Residency, 64); err != nil {
		return err
	}
	if fc.c7, err = mkWidener(msrCoreC7Residency, 64); err != nil {
		return err
	}
	for i := 0; i < 8; i++ {
		if fc.pmc[i], err = mkWidener(msrIA32PMC0+uint32(i), 48); err != nil {
			return err
		}
	}

	global, err := hwreg.NewMSR(osID, msrIA32PerfGlobalCtrl)
	if err != nil {
		return err
	}
	defer global.Close()
	if err := global.Write(ctx, 0x7<<32|0xFF); err != nil { // unfreeze fixed(0..2) + GP(0..7)
		return err
	}

	e.coreFixed[osID] = fc
	return nil
}

// programMode writes the mode-specific payload. The general-purpose
// event-select writes always go enable=0 then enable=1, per spec §4.4.
func (e *Engine) programMode(ctx context.Context, mode ProgramMode, params ProgramParams) error {
	switch mode {
	case ModeDefault:
		return e.programDefaultGPCounters(ctx)
	case ModeCustomCore, ModeExtCustomCore:
		return e.programCustomCore(ctx, params.EventSelectors)
	case ModeRawPMU:
		return e.programRawPMU(ctx, params.RawEvents)
	case ModeUncoreMemory:
		if !e.hasModel {
			return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programMode", "no uncore registry entry for this model")
		}
		return e.programUncoreMemory(ctx, params)
	case ModeUncorePower:
		if !e.hasModel {
			return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programMode", "no uncore registry entry for this model")
		}
		return e.programUncorePower(ctx, params)
	case ModeUncoreLatency:
		if !e.hasModel {
			return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programMode", "no uncore registry entry for this model")
		}
		return e.programUncoreLatency(ctx, params)
	case ModeUncoreIIO, ModeUncoreCXL:
		if !e.hasModel {
			return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programMode", "no uncore registry entry for this model")
		}
		return e.programUncoreIIOCXL(ctx, mode, params)
	case ModeUncorePCIe:
		if !e.hasModel {
			return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programMode", "no uncore registry entry for this model")
		}
		// PCIe traffic rides the same home-agent/mesh-to-memory
		// counters as ModeUncoreMemory with a different event select;
		// the memory programming path already opens and stores those
		// handles, Snapshot reads them identically.
		return e.programUncoreMemory(ctx, params)
	default:
		return pcmerrors.NewKind(pcmerrors.Invariant, "pcm.programMode", "unknown program mode")
	}
}

func (e *Engine) programDefaultGPCounters(ctx context.Context) error {
	// DEFAULT loads L2/L3 reference+miss events into GP counters 0-3,
	// the canonical PCM "default" selection.
	defaults := []EventSelect{
		{Event: 0x24, UMask: 0xFF, User: true, OS: true, Enable: true}, // L2 refs
		{Event: 0x24, UMask: 0x41, User: true, OS: true, Enable: true}, // L2 misses
		{Event: 0x2E, UMask: 0x4F, User: true, OS: true, Enable: true}, // L3 refs
		{Event: 0x2E, UMask: 0x41, User: true, OS: true, Enable: true}, // L3 misses
	}
	return e.programCustomCore(ctx, defaults)
}

func (e *Engine) programCustomCore(ctx context.Context, selectors []EventSelect) error {
	if len(selectors) > 8 {
		return pcmerrors.NewKind(pcmerrors.Invariant, "pcm.programCustomCore", "too many event selectors for per-core counter budget")
	}
	for _, socket := range e.topology.Sockets {
		for _, tile := range socket.Tiles {
			for _, core := range tile.Cores {
				for _, thread := range core.Threads {
					if err := e.writeEventSelectors(ctx, thread.OSID, selectors); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (e *Engine) writeEventSelectors(ctx context.Context, osID int, selectors []EventSelect) error {
	for i, sel := range selectors {
		ctrl, err := hwreg.NewMSR(osID, msrIA32PerfEvtSel0+uint32(i))
		if err != nil {
			return err
		}
		if err := ctrl.Write(ctx, 0); err != nil {
			ctrl.Close()
			return err
		}
		cleared := sel
		cleared.Enable = false
		if err := ctrl.Write(ctx, uncore.EncodeEventSelect(cleared)); err != nil {
			ctrl.Close()
			return err
		}
		enabled := sel
		enabled.Enable = true
		if err := ctrl.Write(ctx, uncore.EncodeEventSelect(enabled)); err != nil {
			ctrl.Close()
			return err
		}
		ctrl.Close()
	}
	return nil
}

// programRawPMU programs each named PMU's event lists and keeps the
// opened, width-extended counter handles in e.rawUncore so a later
// GetRawPMUCounterState can read deltas back, per spec §4.4's "raw PMU
// mode ... programs each and records for deltas."
// Only the Programmable list is written to hardware; the Fixed list is
// checked against the three-counter budget but is not programmed.
//
// name "core" (or "core<N>", to scope to one OS cpu id) targets the
// per-thread programmable counters via the same IA32_PERFEVTSELx path
// programCustomCore uses. Any other name is parsed as
// "<unit-kind><instance-index>" (e.g. "imc0", "pcu1", "cha0") and
// resolved against socket 0's entry in the model's uncore registry.
func (e *Engine) programRawPMU(ctx context.Context, raw map[string]RawPMUEvents) error {
	for name, events := range raw {
		if len(events.Programmable) > 8 || len(events.Fixed) > 3 {
			return pcmerrors.NewKind(pcmerrors.Invariant, "pcm.programRawPMU", fmt.Sprintf("pmu %q exceeds its counter budget", name))
		}
	}

	for name, events := range raw {
		if name == "core" || strings.HasPrefix(name, "core") {
			if rest := strings.TrimPrefix(name, "core"); rest != "" {
				osID, err := strconv.Atoi(rest)
				if err != nil {
					return pcmerrors.NewKind(pcmerrors.Invariant, "pcm.programRawPMU", fmt.Sprintf("pmu name %q: bad cpu id suffix", name))
				}
				if err := e.writeEventSelectors(ctx, osID, events.Programmable); err != nil {
					return err
				}
				continue
			}
			if err := e.programCustomCore(ctx, events.Programmable); err != nil {
				return err
			}
			continue
		}

		if !e.hasModel {
			return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programRawPMU", "no uncore registry entry for this model")
		}
		kind, instance, err := parseRawPMUName(name)
		if err != nil {
			return err
		}
		desc, ok := e.model.Units[kind]
		if !ok {
			return pcmerrors.NewKind(pcmerrors.UnsupportedProcessor, "pcm.programRawPMU", fmt.Sprintf("pmu %q: unit not present on this model", name))
		}

		// Raw-PMU names address a unit instance, always on socket 0;
		// multi-socket raw access isn't expressible through this name
		// scheme (use the dedicated mode entry points for per-socket
		// programming instead).
		regs, err := e.programUnitCounters(ctx, desc, 0, instance, events.Programmable)
		if err != nil {
			return err
		}
		e.rawUncore[name] = regs
	}
	return nil
}

// parseRawPMUName splits a raw-PMU name into its unit kind and instance
// index, e.g. "imc0" -> (UnitIMC, 0).
func parseRawPMUName(name string) (uncore.UnitKind, int, error) {
	kinds := map[string]uncore.UnitKind{
		"imc": uncore.UnitIMC, "ha": uncore.UnitHomeAgent, "m2m": uncore.UnitMesh2Mem,
		"upi": uncore.UnitUPILink, "qpi": uncore.UnitUPILink, "m3upi": uncore.UnitM3UPI,
		"pcu": uncore.UnitPCU, "cha": uncore.UnitCHA, "cbo": uncore.UnitCHA,
		"iio": uncore.UnitIIOStack, "ubox": uncore.UnitUBox, "cxl": uncore.UnitCXLPort,
	}
	for prefix, kind := range kinds {
		if strings.HasPrefix(name, prefix) {
			idx := 0
			if rest := strings.TrimPrefix(name, prefix); rest != "" {
				n, err := strconv.Atoi(rest)
				if err != nil {
					return 0, 0, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.parseRawPMUName", fmt.Sprintf("pmu name %q: bad instance suffix", name))
				}
				idx = n
			}
			return kind, idx, nil
		}
	}
	return 0, 0, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.parseRawPMUName", fmt.Sprintf("pmu name %q: unrecognized unit prefix", name))
}

// onlineCoreSocketMap returns a map of every online thread's OS id to
// its socket id, used to seed the resctrl bridge with one monitor group
// per online OS cpu.
func (e *Engine) onlineCoreSocketMap() map[int]int {
	m := map[int]int{}
	for _, socket := range e.topology.Sockets {
		for _, tile := range socket.Tiles {
			for _, core := range tile.Cores {
				for _, thread := range core.Threads {
					m[thread.OSID] = socket.ID
				}
			}
		}
	}
	return m
}

// ResetPMU clears the fixed and programmable counter controls, global
// control and overflow status on every OS cpu this session programmed;
// cpus never programmed are not touched. Uncore box controls are not
// written. Safe to call without a prior Program.
func (e *Engine) ResetPMU(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for osID := range e.coreFixed {
		if fixed, err := hwreg.NewMSR(osID, msrIA32FixedCtrCtrl); err == nil {
			_ = fixed.Write(ctx, 0)
			fixed.Close()
		}
		if ctrl, err := hwreg.NewMSR(osID, msrIA32PerfGlobalCtrl); err == nil {
			_ = ctrl.Write(ctx, 0)
			ctrl.Close()
		}
		if status, err := hwreg.NewMSR(osID, msrIA32PerfGlobalStatus); err == nil {
			_ = status.Write(ctx, 0)
			status.Close()
		}
		for i := 0; i < 8; i++ {
			if sel, err := hwreg.NewMSR(osID, msrIA32PerfEvtSel0+uint32(i)); err == nil {
				_ = sel.Write(ctx, 0)
				sel.Close()
			}
		}
	}

	e.programmed = false
	return nil
}

// Cleanup is the idempotent inverse of Program: it always decrements the
// exclusion semaphore and is signal-safe (it touches only pre-allocated
// handles and performs no allocation on the fast "already clean" path).
func (e *Engine) Cleanup(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.programmed && !e.sema.Held() {
		return nil
	}

	if e.updater != nil {
		e.updater.Stop()
		e.updater = nil
	}

	for _, w := range e.widened {
		w.Close()
	}
	e.widened = nil

	for _, fc := range e.coreFixed {
		if fc.tsc != nil {
			fc.tsc.Close()
		}
	}
	e.coreFixed = map[int]*coreFixedCounters{}

	_ = e.resctrl.Cleanup()

	e.programmed = false
	return e.sema.Release()
}

// Snapshot reads each per-core fixed+custom counter, then each uncore
// bank per socket, then derives the system aggregate. Per-core reads
// for disjoint cores run concurrently via errgroup; snapshot must not
// be called concurrently with Program (both take e.mu), per spec §4.4.
// The returned cores are ordered by ascending OS cpu id.
func (e *Engine) Snapshot(ctx context.Context) (SystemCounterState, []SocketUncoreCounterState, []CoreCounterState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cores := make([]CoreCounterState, 0, len(e.coreFixed))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for osID, fc := range e.coreFixed {
		osID, fc := osID, fc
		g.Go(func() error {
			state, err := e.readCoreState(gctx, osID, fc)
			if err != nil {
				return err
			}
			mu.Lock()
			cores = append(cores, state)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SystemCounterState{}, nil, nil, err
	}
	sort.Slice(cores, func(i, j int) bool { return cores[i].OSID < cores[j].OSID })

	sockets := make([]SocketUncoreCounterState, 0, len(e.topology.Sockets))
	for _, socket := range e.topology.Sockets {
		sockets = append(sockets, e.readSocketUncoreState(gctx, socket))
	}

	system := SystemCounterState{Links: e.buildLinkStates(gctx)}

	return system, sockets, cores, nil
}

func (e *Engine) readCoreState(ctx context.Context, osID int, fc *coreFixedCounters) (CoreCounterState, error) {
	state := CoreCounterState{OSID: osID}

	var err error
	if state.InstructionsRetired, err = fc.instrRetired.Read(ctx); err != nil {
		return state, err
	}
	if state.UnhaltedCoreCycles, err = fc.coreCycles.Read(ctx); err != nil {
		return state, err
	}
	if state.UnhaltedRefCycles, err = fc.refCycles.Read(ctx); err != nil {
		return state, err
	}
	if state.InvariantTSC, err = fc.tsc.Read(ctx); err != nil {
		return state, err
	}

	if fc.c3 != nil {
		if v, err := fc.c3.Read(ctx); err == nil {
			state.CStateResidency[3] = v
		}
	}
	if fc.c6 != nil {
		if v, err := fc.c6.Read(ctx); err == nil {
			state.CStateResidency[6] = v
		}
	}
	if fc.c7 != nil {
		if v, err := fc.c7.Read(ctx); err == nil {
			state.CStateResidency[7] = v
		}
	}

	for i := 0; i < 8; i++ {
		if fc.pmc[i] == nil {
			continue
		}
		if v, err := fc.pmc[i].Read(ctx); err == nil {
			state.ProgrammableCounters[i] = v
		}
	}

	if e.resctrl.IsMounted() {
		if v, err := e.resctrl.GetL3Occupancy(osID); err == nil {
			state.L3Occupancy = v
		}
		if v, err := e.resctrl.GetMBL(osID); err == nil {
			state.LocalMemoryBandwidth = v
		}
		if v, err := e.resctrl.GetMBT(osID); err == nil {
			state.RemoteMemoryBandwidth = v
		}
	}

	state.ThermalHeadroom = NotAvailable
	if reg, err := hwreg.NewMSR(osID, msrIA32ThermStatus); err == nil {
		if v, err := reg.Read(ctx); err == nil {
			state.ThermalHeadroom = int32((v >> 16) & 0x7F) // digital readout, degrees below prochot
		}
		reg.Close()
	}
	if reg, err := hwreg.NewMSR(osID, msrSMICount); err == nil {
		if v, err := reg.Read(ctx); err == nil {
			state.SMICount = v
		}
		reg.Close()
	}

	return state, nil
}

// GetAllCounterStates is the convenience form of Snapshot matching the
// process-boundary contract's out-parameter style, per spec §6.
func (e *Engine) GetAllCounterStates(ctx context.Context) (SystemCounterState, []SocketUncoreCounterState, []CoreCounterState, error) {
	return e.Snapshot(ctx)
}

func (e *Engine) GetSocketCounterState(ctx context.Context, socketID int) (SocketUncoreCounterState, error) {
	_, sockets, _, err := e.Snapshot(ctx)
	if err != nil {
		return SocketUncoreCounterState{}, err
	}
	for _, s := range sockets {
		if s.SocketID == socketID {
			return s, nil
		}
	}
	return SocketUncoreCounterState{}, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.GetSocketCounterState", "unknown socket id")
}

func (e *Engine) GetCoreCounterState(ctx context.Context, osID int) (CoreCounterState, error) {
	_, _, cores, err := e.Snapshot(ctx)
	if err != nil {
		return CoreCounterState{}, err
	}
	for _, c := range cores {
		if c.OSID == osID {
			return c, nil
		}
	}
	return CoreCounterState{}, pcmerrors.NewKind(pcmerrors.Invariant, "pcm.GetCoreCounterState", "unknown cpu id")
}

func (e *Engine) GetServerUncoreCounterState(ctx context.Context, socketID int) (SocketUncoreCounterState, error) {
	return e.GetSocketCounterState(ctx, socketID)
}

// StartUpdater launches the optional async updater at config.UpdaterCadence.
func (e *Engine) StartUpdater() *Updater {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.updater != nil {
		return e.updater
	}
	e.updater = newUpdater(e, e.config.UpdaterCadence, e.logger)
	e.updater.start()
	return e.updater
}
