// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package resctrl

import (
	"github.com/go-logr/logr"

	"github.com/antimetal/pcm/pkg/pcmerrors"
)

// Bridge is a stub on non-Linux platforms: resctrl is a Linux-only
// kernel filesystem, per spec §4.7.
type Bridge struct{}

func New(logger logr.Logger) *Bridge { return &Bridge{} }

func (b *Bridge) IsMounted() bool                     { return false }
func (b *Bridge) Init(onlineCores map[int]int) error  { return nil }
func (b *Bridge) GetL3Occupancy(core int) (uint64, error) {
	return 0, pcmerrors.NewKind(pcmerrors.HardwareAbsent, "resctrl", "not supported on this platform")
}
func (b *Bridge) GetMBL(core int) (uint64, error) {
	return 0, pcmerrors.NewKind(pcmerrors.HardwareAbsent, "resctrl", "not supported on this platform")
}
func (b *Bridge) GetMBT(core int) (uint64, error) {
	return 0, pcmerrors.NewKind(pcmerrors.HardwareAbsent, "resctrl", "not supported on this platform")
}
func (b *Bridge) Cleanup() error { return nil }
