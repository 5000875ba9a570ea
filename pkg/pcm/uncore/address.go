// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package uncore

// PCIFunction is one channel/link instance's PCI device/function tuple,
// socket-local. The bus number itself is resolved by the caller (see
// pcm.EngineConfig.PCIBusBase): real hardware discovers it by probing a
// UBOX register at runtime, which this registry does not attempt to
// replicate. Grounded on the per-family *_REGISTER_DEV_ADDR/
// _REGISTER_FUNC_ADDR tables in original_source/src/types.h.
type PCIFunction struct {
	Device, Function int
}

// Generic uncore PMON control-word layout: event select in bits[7:0],
// unit mask in bits[15:8], enable in bit 22. Identical across iMC,
// home-agent, mesh-to-memory, UPI/QPI and PCU units in
// original_source/src/types.h (MC_CH_PCI_PMON_CTL_*, Q_P_PCI_PMON_CTL_*,
// PCU_MSR_PMON_CTL_*, CBO_MSR_PMON_CTL_* all share this layout).
const (
	uncEventShift  = 0
	uncUMaskShift  = 8
	uncEnableShift = 22
)

// EncodeUncoreEventSelect packs an uncore PMON control register. Unlike
// the core IA32_PERFEVTSELx layout (EncodeEventSelect), uncore PMON
// control registers carry no user/os/edge/invert/cmask fields.
func EncodeUncoreEventSelect(event, umask uint8, enable bool) uint64 {
	w := uint64(event)<<uncEventShift | uint64(umask)<<uncUMaskShift
	if enable {
		w |= 1 << uncEnableShift
	}
	return w
}

// Unit-control register bit flags, legacy generation (Sandy Bridge-EP
// through Ice Lake-SP), per types.h UNC_PMON_UNIT_CTL_*.
const (
	UnitCtlRstControl  uint64 = 1 << 0
	UnitCtlRstCounters uint64 = 1 << 1
	UnitCtlFrz         uint64 = 1 << 8
	UnitCtlFrzEn       uint64 = 1 << 16
)

// Unit-control bit flags, Sapphire Rapids-generation layout, per
// types.h SPR_UNC_PMON_UNIT_CTL_*: the freeze/reset bit positions move.
const (
	SPRUnitCtlFrz         uint64 = 1 << 0
	SPRUnitCtlRstControl  uint64 = 1 << 8
	SPRUnitCtlRstCounters uint64 = 1 << 9
)

// FreezeWord and UnfreezeWord return the box-control values to freeze
// (and reset counters) and to unfreeze a unit, honoring the per-model
// bit-layout generation.
func FreezeWord(sprLayout bool) uint64 {
	if sprLayout {
		return SPRUnitCtlFrz | SPRUnitCtlRstControl | SPRUnitCtlRstCounters
	}
	return UnitCtlFrz | UnitCtlRstControl | UnitCtlRstCounters
}

func UnfreezeWord(sprLayout bool) uint64 {
	if sprLayout {
		return 0
	}
	return 0
}
