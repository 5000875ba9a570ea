// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package hwreg provides uniform read/write access to hardware registers
// over the transports the PMU engine addresses uniformly: per-core MSR,
// PCI configuration space, memory-mapped I/O, and the Linux kernel perf
// descriptor. All four conform to the same HWRegister capability; the
// rest of the system never type-switches on which one it holds.
package hwreg

import (
	"context"

	"github.com/antimetal/pcm/pkg/pcmerrors"
)

var errUnsupportedPlatform = pcmerrors.NewKind(pcmerrors.HardwareAbsent, "hwreg", "not supported on this platform")

// HWRegister is an addressable 32- or 64-bit slot supporting read and
// write of unsigned integers. Implementations: MSR, PCI, MMIO, Perf, and
// WidthExtender (which wraps any other HWRegister).
type HWRegister interface {
	Read(ctx context.Context) (uint64, error)
	Write(ctx context.Context, value uint64) error
	Close() error
}

// ReadOnlyError is returned by Write on registers that do not support
// writes (Perf, and any WidthExtender write of a non-zero value).
type ReadOnlyError struct {
	Register string
}

func (e *ReadOnlyError) Error() string {
	return e.Register + " is read-only"
}
