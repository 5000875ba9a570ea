// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package cpumodel names the Intel (family, model) pairs the uncore
// registry and topology discoverer dispatch on. Family 6 covers every
// model relevant here; family is kept as a field rather than folded into
// the constant because non-6 families are always reported as unsupported.
package cpumodel

// Model enumerates the Intel Family 6 display-model ids this engine has
// uncore descriptors for. Values match CPUID.01H:EAX bits [19:16]<<4 |
// [7:4] (the standard "display model" convention used throughout the
// Intel SDM and by every open-source PMU tool that decodes it).
type Model int

const (
	ModelUnknown Model = 0

	ModelSandyBridge   Model = 0x2A
	ModelSandyBridgeEP Model = 0x2D
	ModelIvyBridge     Model = 0x3A
	ModelIvyBridgeEP   Model = 0x3E
	ModelHaswell       Model = 0x3C
	ModelHaswellEP     Model = 0x3F
	ModelBroadwell     Model = 0x3D
	ModelBroadwellEP   Model = 0x4F
	ModelSkylake       Model = 0x5E
	ModelSkylakeX      Model = 0x55
	ModelKabylake      Model = 0x9E
	ModelCascadeLakeX  Model = 0x55 // shares the SKX model id; stepping disambiguates
	ModelCooperLakeX   Model = 0x55
	ModelIceLake       Model = 0x7D
	ModelIceLakeX      Model = 0x6A
	ModelTigerLake     Model = 0x8C
	ModelSapphireRapids Model = 0x8F
	ModelEmeraldRapids Model = 0xCF
	ModelGraniteRapids Model = 0xAD
	ModelSierraForest  Model = 0xAF
	ModelAlderLake     Model = 0x97
	ModelKnightsLanding Model = 0x57
	ModelKnightsMill   Model = 0x85
	ModelAtomGoldmont  Model = 0x5C
)

// FamilyVendor reports whether (vendor, family) is a family this registry
// can possibly support. Anything outside GenuineIntel family 6 is
// reported unsupported without consulting Model at all.
func FamilyVendor(vendor string, family int) bool {
	return vendor == "GenuineIntel" && family == 6
}

// IsServerUncore reports whether model carries the full server uncore
// (iMC, home agent, UPI/QPI link PMUs, PCU, CHA, IIO) as opposed to the
// client uncore (single memory controller, no link PMUs).
func IsServerUncore(m Model) bool {
	switch m {
	case ModelSandyBridgeEP, ModelIvyBridgeEP, ModelHaswellEP, ModelBroadwellEP,
		ModelSkylakeX, ModelIceLakeX, ModelSapphireRapids, ModelEmeraldRapids,
		ModelGraniteRapids, ModelSierraForest, ModelKnightsLanding, ModelKnightsMill:
		return true
	default:
		return false
	}
}

// HasCXL reports whether model exposes CXL port uncore PMUs.
func HasCXL(m Model) bool {
	switch m {
	case ModelSapphireRapids, ModelEmeraldRapids, ModelGraniteRapids, ModelSierraForest:
		return true
	default:
		return false
	}
}

// IIOChannelMaskWidth returns the bit width of the IIO channel-mask
// filter field, which the registry needs to build per-stack event
// controls: 8 bits through Skylake-X, 12 bits from Ice Lake-SP onward.
func IIOChannelMaskWidth(m Model) int {
	switch m {
	case ModelIceLakeX, ModelSapphireRapids, ModelEmeraldRapids, ModelGraniteRapids, ModelSierraForest:
		return 12
	default:
		return 8
	}
}

// SupportsREAD2WRITE2 reports whether the memory controller uncore adds
// the READ2/WRITE2 position variants that must be summed with READ/WRITE
// (Sapphire Rapids and later server parts).
func SupportsREAD2WRITE2(m Model) bool {
	switch m {
	case ModelSapphireRapids, ModelEmeraldRapids, ModelGraniteRapids, ModelSierraForest:
		return true
	default:
		return false
	}
}

// DRAMEnergyUnitJoules returns the fixed DRAM RAPL energy unit for
// families that hardcode it rather than deriving it from
// MSR_RAPL_POWER_UNIT, per the PCM formula notes.
func DRAMEnergyUnitJoules(m Model) (joules float64, fixed bool) {
	switch m {
	case ModelHaswellEP, ModelBroadwellEP, ModelSkylakeX, ModelKnightsLanding:
		return 15.3e-6, true
	default:
		return 0, false
	}
}
